package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tyemirov/stannp/internal/config"
	"github.com/tyemirov/stannp/pkg/attachments"
	"github.com/tyemirov/stannp/pkg/payload"
	"github.com/tyemirov/stannp/pkg/stannp"
)

var (
	// ErrAuthenticationFailed means the API key was rejected and nothing was submitted.
	ErrAuthenticationFailed = errors.New("authentication failed; check your API key")
	// ErrInvalidInput means an input file could not be used and nothing was submitted.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSubmissionFailed means the API did not accept the mail piece.
	ErrSubmissionFailed = errors.New("submission failed")
	// ErrPostcardFieldsUndefined means a postcard was requested without any fields to send.
	ErrPostcardFieldsUndefined = errors.New("postcard fields are not defined; provide a postcard parameters file")
)

// Mail piece kinds.
const (
	KindLetter   = "Letter"
	KindPostcard = "Postcard"
)

// MailClient is the subset of the Stannp API the workflows rely on.
type MailClient interface {
	Authenticate(ctx context.Context) bool
	WhoAmI(ctx context.Context) (string, error)
	CreateLetter(ctx context.Context, fields payload.Document, attachment *attachments.Attachment) (string, error)
	CreatePostcard(ctx context.Context, fields payload.Document, front *attachments.Attachment, back *attachments.Attachment) (string, error)
	ListRecipients(ctx context.Context, groupID string) (string, error)
}

// LetterRequest names the input files of a letter submission.
type LetterRequest struct {
	RecipientFile    string
	LetterParamsFile string
	PDFFile          string
}

// PostcardRequest names the input files of a postcard submission.
type PostcardRequest struct {
	ParamsFile string
	FrontFile  string
	BackFile   string
}

// SendRequest sends a letter when a recipient file is given and a postcard otherwise.
type SendRequest struct {
	Letter   LetterRequest
	Postcard PostcardRequest
}

// Submission is what the API returned for an accepted mail piece.
type Submission struct {
	Kind     string
	Response string
	Result   stannp.Result
	// Parsed is false when the response body did not match the documented envelope.
	Parsed bool
}

// MailService runs the authenticate, read, merge and submit sequence.
type MailService struct {
	config *config.Config
	client MailClient
	logger *slog.Logger
}

// NewMailService wires a MailService.
func NewMailService(cfg *config.Config, client MailClient, logger *slog.Logger) *MailService {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &MailService{
		config: cfg,
		client: client,
		logger: logger,
	}
}

// Send dispatches to SendLetter or SendPostcard depending on whether a
// recipient file was supplied.
func (mailService *MailService) Send(ctx context.Context, request SendRequest) (Submission, error) {
	if strings.TrimSpace(request.Letter.RecipientFile) != "" {
		return mailService.SendLetter(ctx, request.Letter)
	}
	return mailService.SendPostcard(ctx, request.Postcard)
}

// SendLetter authenticates, merges the recipient and letter parameter files
// (parameters win on key collisions) and posts the letter with the optional PDF.
func (mailService *MailService) SendLetter(ctx context.Context, request LetterRequest) (Submission, error) {
	if strings.TrimSpace(request.RecipientFile) == "" {
		return Submission{}, fmt.Errorf("%w: recipient file is required", ErrInvalidInput)
	}
	if err := mailService.authenticate(ctx); err != nil {
		return Submission{}, err
	}

	recipient, recipientErr := mailService.readDocument(request.RecipientFile)
	var letterParams payload.Document
	var letterParamsErr error
	if strings.TrimSpace(request.LetterParamsFile) != "" {
		letterParams, letterParamsErr = mailService.readDocument(request.LetterParamsFile)
	}
	if err := errors.Join(recipientErr, letterParamsErr); err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	attachment, err := mailService.loadAttachment(request.PDFFile)
	if err != nil {
		return Submission{}, err
	}

	fields := payload.Merge(recipient, letterParams)
	mailService.logger.Debug("Submitting letter", "fields", len(fields), "attachment", request.PDFFile != "")

	response, err := mailService.client.CreateLetter(ctx, fields, attachment)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	return mailService.submission(KindLetter, response), nil
}

// SendPostcard posts the fields of the postcard parameters file with optional
// front and back artwork. No fields are invented when the file is absent.
func (mailService *MailService) SendPostcard(ctx context.Context, request PostcardRequest) (Submission, error) {
	if strings.TrimSpace(request.ParamsFile) == "" {
		return Submission{}, ErrPostcardFieldsUndefined
	}
	if err := mailService.authenticate(ctx); err != nil {
		return Submission{}, err
	}

	fields, err := mailService.readDocument(request.ParamsFile)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	front, err := mailService.loadAttachment(request.FrontFile)
	if err != nil {
		return Submission{}, err
	}
	back, err := mailService.loadAttachment(request.BackFile)
	if err != nil {
		return Submission{}, err
	}

	response, err := mailService.client.CreatePostcard(ctx, fields, front, back)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	return mailService.submission(KindPostcard, response), nil
}

// ListRecipients authenticates and returns the raw recipient list of a group.
func (mailService *MailService) ListRecipients(ctx context.Context, groupID string) (string, error) {
	if err := mailService.authenticate(ctx); err != nil {
		return "", err
	}
	response, err := mailService.client.ListRecipients(ctx, groupID)
	if err != nil {
		return "", fmt.Errorf("list recipients: %w", err)
	}
	return response, nil
}

// WhoAmI returns the account description for the configured key.
func (mailService *MailService) WhoAmI(ctx context.Context) (string, error) {
	response, err := mailService.client.WhoAmI(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	return response, nil
}

func (mailService *MailService) authenticate(ctx context.Context) error {
	if !mailService.client.Authenticate(ctx) {
		return ErrAuthenticationFailed
	}
	mailService.logger.Debug("Authenticated", "base_url", mailService.config.BaseURL)
	return nil
}

func (mailService *MailService) readDocument(path string) (payload.Document, error) {
	document, err := payload.ReadDocument(path)
	if err != nil {
		mailService.logger.Error("Error reading JSON file", "path", path, "error", err)
		return nil, err
	}
	return document, nil
}

func (mailService *MailService) loadAttachment(path string) (*attachments.Attachment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	attachment, err := attachments.LoadFile(path)
	if err != nil {
		mailService.logger.Error("Error loading attachment", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return attachment, nil
}

func (mailService *MailService) submission(kind string, response string) Submission {
	submission := Submission{Kind: kind, Response: response}
	result, err := stannp.ParseResult(response)
	if err != nil {
		mailService.logger.Debug("Response did not match the expected envelope", "error", err)
		return submission
	}
	submission.Result = result
	submission.Parsed = true
	return submission
}
