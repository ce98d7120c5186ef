package usecase

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
)

const (
	PayloadCreateTenant = "create_tenant"
	PayloadGenerateKey  = "generate_key"
)

//go:embed schemas/*.json
var payloadSchemaFS embed.FS

// PayloadValidator checks management request bodies against embedded JSON
// schemas before they are decoded.
type PayloadValidator struct {
	schemas map[string]*santhosh.Schema
}

func NewPayloadValidator() (*PayloadValidator, error) {
	entries, err := payloadSchemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read payload schemas: %w", err)
	}

	v := &PayloadValidator{schemas: make(map[string]*santhosh.Schema, len(entries))}
	for _, entry := range entries {
		raw, err := payloadSchemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		compiled, err := compileSchema(raw)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", entry.Name(), err)
		}
		v.schemas[entry.Name()[:len(entry.Name())-len(path.Ext(entry.Name()))]] = compiled
	}
	return v, nil
}

// Validate returns *domain.ErrSchemaViolation when data does not match the
// named schema.
func (v *PayloadValidator) Validate(name string, data json.RawMessage) error {
	sch, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown payload schema %q", name)
	}
	return runValidation(sch, data)
}

// compileSchema builds a *santhosh.Schema from raw JSON.
func compileSchema(schemaJSON json.RawMessage) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	compiler.AssertFormat = true
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

// runValidation validates data against a pre-compiled schema.
func runValidation(sch *santhosh.Schema, data json.RawMessage) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return &domain.ErrSchemaViolation{Errors: []string{"body must be valid json"}}
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ErrSchemaViolation{Errors: collectValidationErrors(ve)}
		}
		return &domain.ErrSchemaViolation{Errors: []string{err.Error()}}
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
