package domain

import (
	"fmt"
	"strings"
)

// ErrSchemaViolation is returned when a request payload does not conform to
// its JSON schema. The Errors field contains machine-readable details.
type ErrSchemaViolation struct {
	Errors []string
}

func (e *ErrSchemaViolation) Error() string {
	return fmt.Sprintf("schema validation failed: %s", strings.Join(e.Errors, "; "))
}
