package openapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for spec loading. Callers match with errors.Is.
var (
	ErrParse      = errors.New("spec parse error")
	ErrValidation = errors.New("spec validation error")
	ErrFileFormat = errors.New("unrecognized spec file format")
)

// LoadMetadata describes how a spec document was loaded.
type LoadMetadata struct {
	Path        string    `json:"path"`
	Format      string    `json:"format"` // "json" or "yaml"
	SpecVersion string    `json:"spec_version"`
	SizeBytes   int       `json:"size_bytes"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Load reads and parses a spec file, selecting the parser by extension.
func Load(path string) (*Spec, *LoadMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read spec: %w", err)
	}

	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = "json"
	case ".yaml", ".yml":
		format = "yaml"
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrFileFormat, filepath.Ext(path))
	}

	spec, err := Parse(data, format)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	meta := &LoadMetadata{
		Path:        path,
		Format:      format,
		SpecVersion: spec.Version(),
		SizeBytes:   len(data),
		LoadedAt:    time.Now().UTC(),
	}
	return spec, meta, nil
}

// Parse parses raw spec bytes in the given format ("json" or "yaml")
// and validates the result.
func Parse(data []byte, format string) (*Spec, error) {
	var spec Spec
	switch format {
	case "json":
		if err := json.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrFileFormat, format)
	}

	if err := validate(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// validate checks the document is structurally usable for comparison.
func validate(s *Spec) error {
	version := s.Version()
	if version == "" {
		return fmt.Errorf("%w: missing openapi/swagger version field", ErrValidation)
	}
	if s.OpenAPI != "" && !strings.HasPrefix(s.OpenAPI, "3.") {
		return fmt.Errorf("%w: unsupported openapi version %q", ErrValidation, s.OpenAPI)
	}
	if s.Swagger != "" && s.Swagger != "2.0" {
		return fmt.Errorf("%w: unsupported swagger version %q", ErrValidation, s.Swagger)
	}
	if s.Info.Title == "" && s.Info.Version == "" {
		return fmt.Errorf("%w: missing info section", ErrValidation)
	}
	if s.Paths == nil {
		return fmt.Errorf("%w: missing paths section", ErrValidation)
	}
	return nil
}
