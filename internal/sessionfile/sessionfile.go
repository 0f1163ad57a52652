// Package sessionfile loads run settings from a JSON file validated against an
// embedded JSON schema.
package sessionfile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/user/scribe/internal/scribe"
)

//go:embed schema.json
var schemaJSON string

// File is a parsed session file. Zero fields mean "use the default".
type File struct {
	Text               *string `json:"text,omitempty"`
	TextFile           string  `json:"text_file,omitempty"`
	IntervalMs         int64   `json:"interval_ms,omitempty"`
	Writers            int     `json:"writers,omitempty"`
	Processes          int     `json:"processes,omitempty"`
	Distributed        bool    `json:"distributed,omitempty"`
	Server             string  `json:"server,omitempty"`
	Document           string  `json:"document,omitempty"`
	ReportDB           string  `json:"report_db,omitempty"`
	SampleStore        string  `json:"sample_store,omitempty"`
	SampleDir          string  `json:"sample_dir,omitempty"`
	ProgressIntervalMs int64   `json:"progress_interval_ms,omitempty"`

	dir string
}

type ValidationErrorItem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationError lists every schema violation of a session file.
type ValidationError struct {
	Path   string
	Errors []ValidationErrorItem
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		parts = append(parts, item.Path+": "+item.Message)
	}
	return fmt.Sprintf("invalid session file %s: %s", e.Path, strings.Join(parts, "; "))
}

func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// Load reads and validates the session file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	f, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	f.dir = filepath.Dir(path)
	return f, nil
}

// Parse validates data and decodes it. name is used in error messages.
func Parse(name string, data []byte) (*File, error) {
	res, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validate session file: %w", err)
	}
	if !res.Valid() {
		items := make([]ValidationErrorItem, 0, len(res.Errors()))
		for _, item := range res.Errors() {
			items = append(items, ValidationErrorItem{
				Path:    item.Field(),
				Message: item.Description(),
				Value:   item.Value(),
			})
		}
		return nil, &ValidationError{Path: name, Errors: items}
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return &f, nil
}

// Session overlays the file's settings on base.
func (f *File) Session(base scribe.Session) scribe.Session {
	if f.IntervalMs > 0 {
		base.Interval = time.Duration(f.IntervalMs) * time.Millisecond
	}
	if f.Writers > 0 {
		base.Writers = f.Writers
	}
	if f.Processes > 0 {
		base.Processes = f.Processes
	}
	if f.Distributed {
		base.Distributed = true
	}
	return base
}

// ReadText returns the inline text or the contents of text_file, resolved
// relative to the session file's directory.
func (f *File) ReadText() (string, error) {
	if f.Text != nil {
		return *f.Text, nil
	}
	path := f.TextFile
	if !filepath.IsAbs(path) && f.dir != "" {
		path = filepath.Join(f.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	return string(data), nil
}
