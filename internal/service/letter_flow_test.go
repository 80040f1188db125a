package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/tyemirov/stannp/internal/config"
	"github.com/tyemirov/stannp/pkg/idempotency"
	"github.com/tyemirov/stannp/pkg/stannp"
)

type closeRecorder struct {
	io.Reader
	closed bool
}

func (recorder *closeRecorder) Close() error {
	recorder.closed = true
	return nil
}

type letterServer struct {
	mutex           sync.Mutex
	letterStatus    int
	authStatus      int
	letterRequests  int
	postedFields    map[string][]string
	idempotencyKeys []string
}

func (server *letterServer) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	switch request.URL.Path {
	case "/users/me":
		writer.WriteHeader(server.authStatus)
		_, _ = writer.Write([]byte(`{"success":true,"data":{"id":1}}`))
	case "/letters/create":
		server.letterRequests++
		server.idempotencyKeys = append(server.idempotencyKeys, request.Header.Get(idempotency.HeaderName))
		if err := request.ParseMultipartForm(1 << 20); err == nil {
			server.postedFields = request.MultipartForm.Value
		}
		writer.WriteHeader(server.letterStatus)
		_, _ = writer.Write([]byte(`{"success":true,"data":{"id":"1001","status":"test"}}`))
	default:
		writer.WriteHeader(http.StatusNotFound)
	}
}

func newFlowService(t *testing.T, handler http.Handler) (*MailService, *[]*closeRecorder) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{APIKey: "flow-key", BaseURL: server.URL, LogLevel: "DEBUG", Debug: true}
	client, err := stannp.NewClient(newDiscardLogger(), stannp.Settings{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Verbose: cfg.Debug,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	var handles []*closeRecorder
	client.OpenFile = func(path string) (io.ReadCloser, error) {
		contents, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, readErr
		}
		recorder := &closeRecorder{Reader: bytes.NewReader(contents)}
		handles = append(handles, recorder)
		return recorder, nil
	}
	return NewMailService(cfg, client, newDiscardLogger()), &handles
}

func TestLetterFlowEndToEnd(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		letterStatus int
		expectError  bool
	}{
		{name: "accepted", letterStatus: http.StatusOK},
		{name: "server error", letterStatus: http.StatusInternalServerError, expectError: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			handler := &letterServer{authStatus: http.StatusOK, letterStatus: testCase.letterStatus}
			mailService, handles := newFlowService(t, handler)

			request := LetterRequest{
				RecipientFile:    writeInput(t, "recipient.json", `{"recipient[firstname]":"Adam"}`),
				LetterParamsFile: writeInput(t, "letter.json", `{"pages":"Hello {firstname}"}`),
				PDFFile:          writeInput(t, "letter.pdf", "%PDF-1.4\n%%EOF\n"),
			}

			submission, err := mailService.SendLetter(context.Background(), request)
			if testCase.expectError {
				if !errors.Is(err, ErrSubmissionFailed) {
					t.Fatalf("expected ErrSubmissionFailed, got %v", err)
				}
				if submission.Response != "" {
					t.Fatalf("expected no result on failure")
				}
			} else {
				if err != nil {
					t.Fatalf("SendLetter returned error: %v", err)
				}
				if submission.Result.ID != "1001" {
					t.Fatalf("unexpected submission %+v", submission)
				}
			}

			handler.mutex.Lock()
			defer handler.mutex.Unlock()
			if handler.letterRequests != 1 {
				t.Fatalf("expected one letter request, got %d", handler.letterRequests)
			}
			if got := handler.postedFields["recipient[firstname]"]; len(got) != 1 || got[0] != "Adam" {
				t.Fatalf("expected recipient field, got %v", handler.postedFields)
			}
			if got := handler.postedFields["pages"]; len(got) != 1 || got[0] != "Hello {firstname}" {
				t.Fatalf("expected pages field, got %v", handler.postedFields)
			}

			if len(*handles) != 1 {
				t.Fatalf("expected one attachment handle, got %d", len(*handles))
			}
			if !(*handles)[0].closed {
				t.Fatalf("expected attachment handle to be closed")
			}
		})
	}
}

func TestLetterFlowNeverSubmitsWhenAuthenticationFails(t *testing.T) {
	t.Parallel()

	handler := &letterServer{authStatus: http.StatusUnauthorized, letterStatus: http.StatusOK}
	mailService, handles := newFlowService(t, handler)

	_, err := mailService.SendLetter(context.Background(), LetterRequest{
		RecipientFile:    writeInput(t, "recipient.json", `{"recipient[firstname]":"Adam"}`),
		LetterParamsFile: writeInput(t, "letter.json", `{"pages":"Hello {firstname}"}`),
		PDFFile:          writeInput(t, "letter.pdf", "%PDF-1.4\n%%EOF\n"),
	})
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}

	handler.mutex.Lock()
	defer handler.mutex.Unlock()
	if handler.letterRequests != 0 {
		t.Fatalf("expected no letter request, got %d", handler.letterRequests)
	}
	if len(*handles) != 0 {
		t.Fatalf("expected attachment never to be opened")
	}
}

func TestLetterFlowUsesDistinctIdempotencyKeys(t *testing.T) {
	t.Parallel()

	handler := &letterServer{authStatus: http.StatusOK, letterStatus: http.StatusOK}
	mailService, _ := newFlowService(t, handler)

	request := LetterRequest{
		RecipientFile:    writeInput(t, "recipient.json", `{"recipient[firstname]":"Adam"}`),
		LetterParamsFile: writeInput(t, "letter.json", `{"pages":"Hello {firstname}"}`),
	}
	for attempt := 0; attempt < 3; attempt++ {
		if _, err := mailService.SendLetter(context.Background(), request); err != nil {
			t.Fatalf("SendLetter returned error: %v", err)
		}
	}

	handler.mutex.Lock()
	defer handler.mutex.Unlock()
	seen := make(map[string]struct{})
	for _, key := range handler.idempotencyKeys {
		if key == "" {
			t.Fatalf("expected idempotency key")
		}
		if _, duplicate := seen[key]; duplicate {
			t.Fatalf("idempotency key %q reused", key)
		}
		seen[key] = struct{}{}
	}
	if len(seen) != 3 {
		t.Fatalf("expected three keys, got %d", len(seen))
	}
}
