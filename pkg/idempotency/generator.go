package idempotency

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// HeaderName is the request header carrying the key.
const HeaderName = "X-Idempotency-Key"

var (
	// ErrRandomSourceFailure indicates that entropy retrieval failed.
	ErrRandomSourceFailure = errors.New("idempotency: random_source_failure")
	// ErrMissingRandomSource indicates that a nil entropy source was provided.
	ErrMissingRandomSource = errors.New("idempotency: missing_random_source")
)

// Generator produces version 4 UUID keys from an entropy source.
type Generator struct {
	randomSource io.Reader
}

// NewGenerator constructs a Generator that draws entropy from the provided reader.
func NewGenerator(randomSource io.Reader) (*Generator, error) {
	if randomSource == nil {
		return nil, ErrMissingRandomSource
	}
	return &Generator{
		randomSource: randomSource,
	}, nil
}

// NewCryptoGenerator creates a Generator backed by crypto/rand.Reader.
func NewCryptoGenerator() (*Generator, error) {
	return NewGenerator(rand.Reader)
}

// NewKey returns a fresh key for one submission.
func (generator *Generator) NewKey(ctx context.Context) (string, error) {
	if generator == nil {
		return "", ErrMissingRandomSource
	}
	return NewKey(ctx, generator.randomSource)
}

// NewKey creates a version 4 UUID string using the provided entropy source.
func NewKey(ctx context.Context, randomSource io.Reader) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("%w: nil context", ErrRandomSourceFailure)
	}
	if randomSource == nil {
		return "", ErrMissingRandomSource
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("idempotency: context canceled: %w", err)
	}

	key, err := uuid.NewRandomFromReader(randomSource)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRandomSourceFailure, err)
	}
	return key.String(), nil
}
