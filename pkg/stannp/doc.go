// Package stannp provides an HTTP client for the Stannp postal-mail API.
// It checks API keys, creates letters and postcards from flat form fields
// with optional file attachments, and lists recipients. Each submission
// carries a fresh idempotency key and releases its attachment handles before
// returning.
package stannp
