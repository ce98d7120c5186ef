package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	publicPartitionName = "public"
	maxPartitionLength  = 63
)

var partitionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Partition is a validated storage-partition identifier. Values are only
// produced by ParsePartition, DerivePartition and PublicPartition, so a
// non-zero Partition is always safe to quote into a statement.
type Partition struct {
	name string
}

// PublicPartition is the shared partition holding cross-tenant metadata.
func PublicPartition() Partition {
	return Partition{name: publicPartitionName}
}

// ParsePartition validates a stored partition name.
func ParsePartition(name string) (Partition, error) {
	if len(name) == 0 || len(name) > maxPartitionLength || !partitionPattern.MatchString(name) {
		return Partition{}, fmt.Errorf("%w: %q", ErrPartitionValidationFailed, name)
	}
	return Partition{name: name}, nil
}

// DerivePartition builds the tenant partition for a display name. The result
// is deterministic for a given name and never one of the reserved schemas.
func DerivePartition(tenantName string) (Partition, error) {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), tenantName)
	if err != nil {
		return Partition{}, fmt.Errorf("%w: %v", ErrPartitionValidationFailed, err)
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(folded)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == ' ', r == '-', r == '_':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	name := strings.TrimRight(b.String(), "_")

	if isReservedPartition(name) {
		return Partition{}, fmt.Errorf("%w: %q is reserved", ErrPartitionValidationFailed, name)
	}
	return ParsePartition(name)
}

func isReservedPartition(name string) bool {
	return name == publicPartitionName || name == "information_schema" || strings.HasPrefix(name, "pg_")
}

func (p Partition) Name() string {
	return p.name
}

func (p Partition) String() string {
	return p.name
}

func (p Partition) IsZero() bool {
	return p.name == ""
}

func (p Partition) IsPublic() bool {
	return p.name == publicPartitionName
}
