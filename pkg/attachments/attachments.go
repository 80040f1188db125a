package attachments

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const contentTypeSeparator = "::"

var (
	// ErrMissingPath indicates that an attachment specifier carried no path.
	ErrMissingPath = errors.New("attachments: missing_path")
	// ErrNotRegularFile indicates that the path points at a directory or device.
	ErrNotRegularFile = errors.New("attachments: not_regular_file")
)

// Attachment describes a file that is streamed into a request body.
// The file itself is only opened while the request is being built.
type Attachment struct {
	Path        string
	Filename    string
	ContentType string
}

// Opener opens an attachment for reading. The caller closes the handle.
type Opener func(path string) (io.ReadCloser, error)

// OpenFile is the default Opener backed by the local filesystem.
func OpenFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Load converts CLI specifiers of the form "path" or "path::content/type"
// into attachments, inferring the content type from the file contents when
// none is given.
func Load(inputs []string) ([]Attachment, error) {
	loaded := make([]Attachment, 0, len(inputs))
	for _, input := range inputs {
		attachment, err := LoadFile(input)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, *attachment)
	}
	return loaded, nil
}

// LoadFile validates a single specifier.
func LoadFile(input string) (*Attachment, error) {
	path, contentType := splitInput(input)
	if path == "" {
		return nil, ErrMissingPath
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return nil, fmt.Errorf("attachments: stat %s: %w", path, statErr)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}

	if contentType == "" {
		detected, detectErr := mimetype.DetectFile(path)
		if detectErr != nil {
			return nil, fmt.Errorf("attachments: detect content type of %s: %w", path, detectErr)
		}
		contentType = detected.String()
	}

	return &Attachment{
		Path:        path,
		Filename:    filepath.Base(path),
		ContentType: contentType,
	}, nil
}

func splitInput(input string) (string, string) {
	path, contentType, _ := strings.Cut(input, contentTypeSeparator)
	return strings.TrimSpace(path), strings.TrimSpace(contentType)
}
