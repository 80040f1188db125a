package stannp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/tyemirov/stannp/pkg/attachments"
	"github.com/tyemirov/stannp/pkg/idempotency"
	"github.com/tyemirov/stannp/pkg/payload"
)

// DefaultBaseURL is the US Stannp API root.
const DefaultBaseURL = "https://us.stannp.com/api/v1"

const (
	apiKeyParameter   = "api_key"
	redactedAPIKey    = "REDACTED"
	fileFieldName     = "file"
	frontFieldName    = "front"
	backFieldName     = "back"
	formContentType   = "application/x-www-form-urlencoded"
	noResponseContent = "No response"
)

var (
	// ErrMissingAPIKey indicates that the client was built without credentials.
	ErrMissingAPIKey = errors.New("stannp: missing_api_key")
	// ErrInvalidBaseURL indicates that the configured API root cannot be parsed.
	ErrInvalidBaseURL = errors.New("stannp: invalid_base_url")
	// ErrMissingGroupID indicates that a recipient listing was requested without a group.
	ErrMissingGroupID = errors.New("stannp: missing_group_id")
)

// KeyGenerator issues idempotency keys.
type KeyGenerator interface {
	NewKey(ctx context.Context) (string, error)
}

// Settings carries the values a Client is built from.
type Settings struct {
	BaseURL           string
	APIKey            string
	Verbose           bool
	InlineAttachments bool
}

// Client talks to the Stannp REST API. The API key travels as a query
// parameter on every request.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Verbose enables debug diagnostics that include request payloads and
	// response bodies.
	Verbose bool
	// InlineAttachments sends files base64-encoded in a form field instead of
	// as multipart file parts.
	InlineAttachments bool
	Keys              KeyGenerator
	OpenFile          attachments.Opener
}

// NewClient creates a Client with a default HTTP client and a crypto-backed
// idempotency key generator.
func NewClient(logger *slog.Logger, settings Settings) (*Client, error) {
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimSpace(settings.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := parseBaseURL(baseURL); err != nil {
		return nil, err
	}

	keys, err := idempotency.NewCryptoGenerator()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		BaseURL:           baseURL,
		APIKey:            settings.APIKey,
		HTTPClient:        &http.Client{},
		Logger:            logger,
		Verbose:           settings.Verbose,
		InlineAttachments: settings.InlineAttachments,
		Keys:              keys,
		OpenFile:          attachments.OpenFile,
	}, nil
}

// WhoAmI returns the raw account description for the configured key.
func (client *Client) WhoAmI(ctx context.Context) (string, error) {
	return client.get(ctx, "users", "me")
}

// Authenticate reports whether the API key is accepted. Any non-2xx status or
// transport error counts as a failure.
func (client *Client) Authenticate(ctx context.Context) bool {
	responseBody, err := client.WhoAmI(ctx)
	if err != nil {
		if client.Verbose {
			client.logger().Debug("Authentication failed", "error", err)
		}
		return false
	}
	if client.Verbose {
		client.logger().Debug("Authentication response", "body", responseBody)
	}
	return true
}

// ListRecipients returns the raw recipient list of a group.
func (client *Client) ListRecipients(ctx context.Context, groupID string) (string, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return "", ErrMissingGroupID
	}
	responseBody, err := client.get(ctx, "recipients", "list", groupID)
	if err != nil {
		return "", err
	}
	if client.Verbose {
		client.logger().Debug("Recipients list response", "body", responseBody)
	}
	return responseBody, nil
}

// CreateLetter posts the fields and an optional PDF to letters/create. The
// attachment is closed before CreateLetter returns.
func (client *Client) CreateLetter(ctx context.Context, fields payload.Document, attachment *attachments.Attachment) (string, error) {
	return client.submit(ctx, "Letter", fields, []filePart{{field: fileFieldName, attachment: attachment}}, "letters", "create")
}

// CreatePostcard posts caller-supplied fields with optional front and back
// artwork to postcards/create.
func (client *Client) CreatePostcard(ctx context.Context, fields payload.Document, front *attachments.Attachment, back *attachments.Attachment) (string, error) {
	parts := []filePart{
		{field: frontFieldName, attachment: front},
		{field: backFieldName, attachment: back},
	}
	return client.submit(ctx, "Postcard", fields, parts, "postcards", "create")
}

type filePart struct {
	field      string
	attachment *attachments.Attachment
}

func (client *Client) submit(ctx context.Context, kind string, fields payload.Document, parts []filePart, segments ...string) (string, error) {
	endpoint, err := client.endpoint(segments...)
	if err != nil {
		return "", err
	}
	if client.Keys == nil {
		return "", idempotency.ErrMissingRandomSource
	}
	idempotencyKey, err := client.Keys.NewKey(ctx)
	if err != nil {
		return "", err
	}
	form, err := fields.Form()
	if err != nil {
		return "", fmt.Errorf("stannp: encode fields: %w", err)
	}

	var handles []io.Closer
	defer func() {
		for _, handle := range handles {
			if closeErr := handle.Close(); closeErr != nil {
				client.logger().Warn("Failed to close attachment", "error", closeErr)
			}
		}
	}()

	var requestBody io.Reader
	var contentType string
	if client.InlineAttachments {
		requestBody, contentType, err = client.inlineBody(form, parts, &handles)
	} else {
		requestBody, contentType, err = client.multipartBody(form, parts, &handles)
	}
	if err != nil {
		return "", err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, requestBody)
	if err != nil {
		return "", fmt.Errorf("stannp: build request: %w", err)
	}
	request.Header.Set("Content-Type", contentType)
	request.Header.Set(idempotency.HeaderName, idempotencyKey)

	responseBody, err := client.do(request)
	if err != nil {
		if client.Verbose {
			responseContent := noResponseContent
			var apiError *APIError
			if errors.As(err, &apiError) {
				responseContent = apiError.Body
			}
			client.logger().Debug(kind+" request failed",
				"error", err,
				"response_content", responseContent,
				"request_data", form,
				"file_paths", partPaths(parts),
			)
		}
		return "", err
	}
	if client.Verbose {
		client.logger().Debug(kind+" sent response", "body", responseBody, "idempotency_key", idempotencyKey)
	}
	return responseBody, nil
}

func (client *Client) multipartBody(form url.Values, parts []filePart, handles *[]io.Closer) (io.Reader, string, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)

	for _, key := range sortedKeys(form) {
		for _, value := range form[key] {
			if err := writer.WriteField(key, value); err != nil {
				return nil, "", fmt.Errorf("stannp: write field %q: %w", key, err)
			}
		}
	}

	for _, part := range parts {
		if part.attachment == nil {
			continue
		}
		handle, err := client.open(part.attachment, handles)
		if err != nil {
			return nil, "", err
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(part.field), quoteEscaper.Replace(part.attachment.Filename)))
		header.Set("Content-Type", part.attachment.ContentType)
		partWriter, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("stannp: create part %q: %w", part.field, err)
		}
		if _, err := io.Copy(partWriter, handle); err != nil {
			return nil, "", fmt.Errorf("stannp: copy %s: %w", part.attachment.Path, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("stannp: close multipart body: %w", err)
	}
	return &buffer, writer.FormDataContentType(), nil
}

func (client *Client) inlineBody(form url.Values, parts []filePart, handles *[]io.Closer) (io.Reader, string, error) {
	encoded := maps.Clone(form)
	for _, part := range parts {
		if part.attachment == nil {
			continue
		}
		handle, err := client.open(part.attachment, handles)
		if err != nil {
			return nil, "", err
		}
		contents, err := io.ReadAll(handle)
		if err != nil {
			return nil, "", fmt.Errorf("stannp: read %s: %w", part.attachment.Path, err)
		}
		encoded.Set(part.field, base64.StdEncoding.EncodeToString(contents))
	}
	return strings.NewReader(encoded.Encode()), formContentType, nil
}

func (client *Client) open(attachment *attachments.Attachment, handles *[]io.Closer) (io.Reader, error) {
	opener := client.OpenFile
	if opener == nil {
		opener = attachments.OpenFile
	}
	handle, err := opener(attachment.Path)
	if err != nil {
		return nil, fmt.Errorf("stannp: open attachment %s: %w", attachment.Path, err)
	}
	*handles = append(*handles, handle)
	return handle, nil
}

func (client *Client) get(ctx context.Context, segments ...string) (string, error) {
	endpoint, err := client.endpoint(segments...)
	if err != nil {
		return "", err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("stannp: build request: %w", err)
	}
	return client.do(request)
}

func (client *Client) do(request *http.Request) (string, error) {
	httpClient := client.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	response, err := httpClient.Do(request)
	if err != nil {
		var urlError *url.Error
		if errors.As(err, &urlError) {
			urlError.URL = redactURL(urlError.URL)
		}
		return "", fmt.Errorf("stannp: request failed: %w", err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("stannp: read response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", &APIError{StatusCode: response.StatusCode, Body: string(responseBody)}
	}
	return string(responseBody), nil
}

func (client *Client) endpoint(segments ...string) (string, error) {
	if strings.TrimSpace(client.APIKey) == "" {
		return "", ErrMissingAPIKey
	}
	base, err := parseBaseURL(client.BaseURL)
	if err != nil {
		return "", err
	}
	endpoint := base.JoinPath(segments...)
	query := endpoint.Query()
	query.Set(apiKeyParameter, client.APIKey)
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}
	return parsed, nil
}

func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := parsed.Query()
	if query.Has(apiKeyParameter) {
		query.Set(apiKeyParameter, redactedAPIKey)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

func partPaths(parts []filePart) []string {
	var paths []string
	for _, part := range parts {
		if part.attachment != nil {
			paths = append(paths, part.attachment.Path)
		}
	}
	return paths
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (client *Client) logger() *slog.Logger {
	if client.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return client.Logger
}
