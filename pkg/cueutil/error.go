// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// ErrValidation is the sentinel wrapped by ValidationError.
var ErrValidation = errors.New("schema validation failed")

type (
	// ValidationError collects the CUE errors reported for one input file.
	ValidationError struct {
		// FilePath is the file being validated.
		FilePath string

		// Fields holds one entry per reported problem, in CUE's order.
		Fields []FieldError
	}

	// FieldError is a single problem at a JSON path (e.g. "services[0].ports[1].host").
	FieldError struct {
		Path    string
		Message string
	}
)

// Error formats as "<file>: <path>: <message>", or one problem per line when there
// are several.
func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Path == "" {
			lines = append(lines, f.Message)
			continue
		}
		lines = append(lines, f.Path+": "+f.Message)
	}

	if len(lines) == 1 {
		return fmt.Sprintf("%s: %s", e.FilePath, lines[0])
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.FilePath, strings.Join(lines, "\n  "))
}

// Unwrap returns ErrValidation for errors.Is() compatibility.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// FormatError converts a CUE error into a *ValidationError with JSON-path field
// locations. Non-CUE errors are wrapped with the file path.
func FormatError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	// cueerrors.Errors promotes any error, so plain ones must be caught first.
	var cueErr cueerrors.Error
	if !errors.As(err, &cueErr) {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	cueErrs := cueerrors.Errors(err)

	verr := &ValidationError{FilePath: filePath}
	for _, e := range cueErrs {
		pathStr := formatPath(cueerrors.Path(e))
		msg := e.Error()

		// CUE sometimes repeats the path at the start of the message.
		if pathStr != "" && strings.HasPrefix(msg, pathStr) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, pathStr), ":"))
		}

		verr.Fields = append(verr.Fields, FieldError{Path: pathStr, Message: msg})
	}
	return verr
}

// formatPath converts a CUE error path (["services", "0", "ports"]) to JSON-path
// notation ("services[0].ports").
func formatPath(path []string) string {
	if len(path) == 0 {
		return ""
	}

	var result strings.Builder
	for i, part := range path {
		if i > 0 && isIndex(part) {
			result.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			result.WriteString(".")
		}
		result.WriteString(part)
	}
	return result.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CheckFileSize returns an error if data exceeds maxSize bytes.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes",
			filename, len(data), maxSize)
	}
	return nil
}
