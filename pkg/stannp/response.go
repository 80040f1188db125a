package stannp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// APIError reports a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (apiError *APIError) Error() string {
	body := strings.TrimSpace(apiError.Body)
	if body == "" {
		return fmt.Sprintf("stannp: unexpected status %d", apiError.StatusCode)
	}
	return fmt.Sprintf("stannp: unexpected status %d: %s", apiError.StatusCode, body)
}

// Result is the summary of a created letter or postcard.
type Result struct {
	ID     string
	Status string
	PDF    string
	Cost   string
}

type responseEnvelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// ParseResult extracts the mail piece summary from a creation response body.
func ParseResult(body string) (Result, error) {
	var envelope responseEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return Result{}, fmt.Errorf("stannp: decode response: %w", err)
	}
	if !envelope.Success {
		if envelope.Error != "" {
			return Result{}, fmt.Errorf("stannp: request unsuccessful: %s", envelope.Error)
		}
		return Result{}, fmt.Errorf("stannp: request unsuccessful")
	}

	decoder := json.NewDecoder(bytes.NewReader(envelope.Data))
	decoder.UseNumber()
	var data map[string]any
	if err := decoder.Decode(&data); err != nil {
		return Result{}, fmt.Errorf("stannp: decode response data: %w", err)
	}

	return Result{
		ID:     stringField(data, "id"),
		Status: stringField(data, "status"),
		PDF:    stringField(data, "pdf"),
		Cost:   stringField(data, "cost"),
	}, nil
}

func stringField(data map[string]any, key string) string {
	value, exists := data[key]
	if !exists || value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func sortedKeys(values url.Values) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
