// Package idempotency generates the per-request keys sent in the
// X-Idempotency-Key header so the Stannp API can discard duplicate
// submissions of the same letter or postcard.
package idempotency
