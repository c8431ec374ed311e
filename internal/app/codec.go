package app

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hylla/journeymap/internal/domain"
	"gopkg.in/yaml.v3"
)

// Format names a document interchange encoding.
type Format string

// Supported interchange formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat normalizes a format name. Empty means JSON.
func ParseFormat(raw string) (Format, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, path)
	}
	return ParseFormat(ext)
}

// EncodeDocument writes doc in the requested format.
func EncodeDocument(w io.Writer, doc domain.Document, format Format) error {
	return encode(w, doc, format)
}

// DecodeDocument reads one document. The result is not repaired.
func DecodeDocument(r io.Reader, format Format) (domain.Document, error) {
	var doc domain.Document
	if err := decode(r, &doc, format); err != nil {
		return domain.Document{}, fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}
	return doc, nil
}

// EncodeSnapshot writes snap in the requested format.
func EncodeSnapshot(w io.Writer, snap Snapshot, format Format) error {
	return encode(w, snap, format)
}

// DecodeSnapshot reads one snapshot. The result is not validated.
func DecodeSnapshot(r io.Reader, format Format) (Snapshot, error) {
	var snap Snapshot
	if err := decode(r, &snap, format); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return snap, nil
}

func encode(w io.Writer, v any, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func decode(r io.Reader, v any, format Format) error {
	switch format {
	case FormatJSON, "":
		return json.NewDecoder(r).Decode(v)
	case FormatYAML:
		return yaml.NewDecoder(r).Decode(v)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
