package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strconv"
)

var (
	// ErrInvalidDocument indicates that a JSON input file could not be used.
	ErrInvalidDocument = errors.New("payload: invalid_document")
)

// Document is a flat set of form fields decoded from a JSON object.
// Numbers are kept as json.Number so they are sent exactly as written.
type Document map[string]any

// ReadDocument parses the JSON object stored at path. Any I/O error, malformed
// JSON, non-object top level or empty object yields a nil Document.
func ReadDocument(path string) (Document, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDocument, path, openErr)
	}
	defer file.Close()

	document, decodeErr := DecodeDocument(file)
	if decodeErr != nil {
		return nil, fmt.Errorf("%s: %w", path, decodeErr)
	}
	return document, nil
}

// DecodeDocument parses a single JSON object from reader.
func DecodeDocument(reader io.Reader) (Document, error) {
	decoder := json.NewDecoder(reader)
	decoder.UseNumber()

	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidDocument)
	}

	object, isObject := raw.(map[string]any)
	if !isObject {
		return nil, fmt.Errorf("%w: top level must be a JSON object", ErrInvalidDocument)
	}
	if len(object) == 0 {
		return nil, fmt.Errorf("%w: JSON object is empty", ErrInvalidDocument)
	}
	return Document(object), nil
}

// Merge combines documents left to right. When two documents share a key the
// value from the later document wins. The inputs are not modified.
func Merge(documents ...Document) Document {
	size := 0
	for _, document := range documents {
		size += len(document)
	}
	merged := make(Document, size)
	for _, document := range documents {
		for key, value := range document {
			merged[key] = value
		}
	}
	return merged
}

// Keys returns the document keys in sorted order.
func (document Document) Keys() []string {
	keys := make([]string, 0, len(document))
	for key := range document {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Form converts the document into form values. Arrays become repeated values
// of the same key, nested objects are sent as compact JSON and nulls are
// dropped.
func (document Document) Form() (url.Values, error) {
	form := make(url.Values, len(document))
	for _, key := range document.Keys() {
		values, err := formValues(document[key])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		for _, value := range values {
			form.Add(key, value)
		}
	}
	return form, nil
}

func formValues(value any) ([]string, error) {
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case []any:
		var values []string
		for _, element := range typed {
			elementValues, err := formValues(element)
			if err != nil {
				return nil, err
			}
			values = append(values, elementValues...)
		}
		return values, nil
	default:
		scalar, err := formScalar(typed)
		if err != nil {
			return nil, err
		}
		return []string{scalar}, nil
	}
}

func formScalar(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case json.Number:
		return typed.String(), nil
	case bool:
		return strconv.FormatBool(typed), nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(typed), nil
	default:
		var buffer bytes.Buffer
		encoder := json.NewEncoder(&buffer)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(typed); err != nil {
			return "", err
		}
		return string(bytes.TrimRight(buffer.Bytes(), "\n")), nil
	}
}
