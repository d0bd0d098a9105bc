package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// YAMLLoader decodes model documents from YAML.
type YAMLLoader struct {
	validator *validator.Validate
}

// NewYAMLLoader creates a YAML model loader.
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{validator: validator.New()}
}

// Load reads and validates a YAML model file. Unknown fields are
// rejected so typos surface as errors rather than silent defaults.
func (l *YAMLLoader) Load(path string) (*ParsedModel, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}
	return l.parse(content, path)
}

// LoadBytes decodes an in-memory YAML document.
func (l *YAMLLoader) LoadBytes(content []byte) (*ParsedModel, error) {
	return l.parse(content, "inline")
}

func (l *YAMLLoader) parse(content []byte, source string) (*ParsedModel, error) {
	parsed := &ParsedModel{
		SourceFiles: []string{source},
		ParsedAt:    time.Now(),
	}

	var mf ModelFile
	if err := strictUnmarshal(content, &mf); err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			File:     source,
			Message:  err.Error(),
			Severity: "error",
		})
		return parsed, nil
	}

	if err := l.validator.Struct(mf); err != nil {
		for _, ve := range validationErrors(err) {
			ve.File = source
			parsed.Errors = append(parsed.Errors, ve)
		}
		return parsed, nil
	}

	parsed.Model = mf
	return parsed, nil
}

func strictUnmarshal(content []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// validationErrors converts validator errors into located errors.
func validationErrors(err error) []ValidationError {
	var out []ValidationError
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			out = append(out, ValidationError{
				Path:     fe.Namespace(),
				Message:  fmt.Sprintf("failed %q constraint", fe.Tag()),
				Severity: "error",
			})
		}
		return out
	}
	return []ValidationError{{Message: err.Error(), Severity: "error"}}
}
