package usecase

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
)

func TestPayloadValidator(t *testing.T) {
	v, err := NewPayloadValidator()
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	tests := []struct {
		name    string
		schema  string
		body    string
		wantErr bool
	}{
		{name: "tenant ok", schema: PayloadCreateTenant, body: `{"name":"Acme","plan_type":"pro"}`},
		{name: "tenant missing name", schema: PayloadCreateTenant, body: `{"domain":"acme.com"}`, wantErr: true},
		{name: "tenant unknown field", schema: PayloadCreateTenant, body: `{"name":"Acme","schema_name":"x"}`, wantErr: true},
		{name: "tenant bad plan", schema: PayloadCreateTenant, body: `{"name":"Acme","plan_type":"gold"}`, wantErr: true},
		{name: "key ok", schema: PayloadGenerateKey, body: `{"tenant_name":"Acme","expires_in_days":30}`},
		{name: "key without tenant", schema: PayloadGenerateKey, body: `{"key_name":"ci"}`, wantErr: true},
		{name: "key negative expiry", schema: PayloadGenerateKey, body: `{"tenant_name":"Acme","expires_in_days":-1}`, wantErr: true},
		{name: "not json", schema: PayloadGenerateKey, body: `{`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.schema, json.RawMessage(tc.body))
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var violation *domain.ErrSchemaViolation
			if !errors.As(err, &violation) || len(violation.Errors) == 0 {
				t.Fatalf("expected schema violation, got %v", err)
			}
		})
	}

	if err := v.Validate("missing", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for unknown schema")
	}
}
