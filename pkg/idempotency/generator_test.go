package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
)

type stubRandomReader struct {
	buffer []byte
	index  int
	err    error
}

func (reader *stubRandomReader) Read(p []byte) (int, error) {
	if reader.err != nil {
		return 0, reader.err
	}
	if reader.index >= len(reader.buffer) {
		return 0, io.EOF
	}
	n := copy(p, reader.buffer[reader.index:])
	reader.index += n
	return n, nil
}

func TestNewGeneratorRequiresRandomSource(t *testing.T) {
	t.Parallel()

	_, err := NewGenerator(nil)
	if !errors.Is(err, ErrMissingRandomSource) {
		t.Fatalf("expected ErrMissingRandomSource, got %v", err)
	}
}

func TestNewKeyIsDeterministicForSource(t *testing.T) {
	t.Parallel()

	data := make([]byte, 16)
	for index := range data {
		data[index] = byte(index)
	}

	key, err := NewKey(context.Background(), &stubRandomReader{buffer: data})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	parsed, parseErr := uuid.Parse(key)
	if parseErr != nil {
		t.Fatalf("expected valid uuid, got %q: %v", key, parseErr)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected version 4 uuid, got %d", parsed.Version())
	}
	if key != "00010203-0405-4607-8809-0a0b0c0d0e0f" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestCryptoGeneratorProducesDistinctKeys(t *testing.T) {
	t.Parallel()

	generator, err := NewCryptoGenerator()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	seen := make(map[string]struct{})
	for attempt := 0; attempt < 64; attempt++ {
		key, keyErr := generator.NewKey(context.Background())
		if keyErr != nil {
			t.Fatalf("expected nil error, got %v", keyErr)
		}
		if _, duplicate := seen[key]; duplicate {
			t.Fatalf("duplicate key %q after %d attempts", key, attempt)
		}
		seen[key] = struct{}{}
	}
}

func TestNewKeyRandomFailure(t *testing.T) {
	t.Parallel()

	expectedErr := errors.New("read failure")
	_, err := NewKey(context.Background(), &stubRandomReader{err: expectedErr})
	if err == nil {
		t.Fatalf("expected error but got nil")
	}
	if !errors.Is(err, ErrRandomSourceFailure) {
		t.Fatalf("expected ErrRandomSourceFailure, got %v", err)
	}
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected wrapped read error, got %v", err)
	}
}

func TestNewKeyHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewKey(ctx, bytes.NewReader(make([]byte, 16)))
	if err == nil {
		t.Fatalf("expected error but got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancelled error, got %v", err)
	}
}

func TestNilGeneratorReportsMissingSource(t *testing.T) {
	t.Parallel()

	var generator *Generator
	if _, err := generator.NewKey(context.Background()); !errors.Is(err, ErrMissingRandomSource) {
		t.Fatalf("expected ErrMissingRandomSource, got %v", err)
	}
}
