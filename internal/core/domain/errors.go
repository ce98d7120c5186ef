package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Resolution-layer errors. Strategies absorb these and report a non-match.
var (
	ErrTenantNotFound     = fmt.Errorf("tenant %w", ErrNotFound)
	ErrTenantInactive     = errors.New("tenant inactive")
	ErrCredentialNotFound = fmt.Errorf("credential %w", ErrNotFound)
	ErrCredentialExpired  = errors.New("credential expired")
	ErrCredentialRevoked  = errors.New("credential revoked")
)

// Partition errors are fatal to the request that hits them.
var (
	ErrPartitionValidationFailed = errors.New("partition validation failed")
	ErrPartitionBindFailed       = errors.New("partition bind failed")
)
