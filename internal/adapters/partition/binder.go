package partition

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

const (
	resetStatement        = "RESET search_path"
	currentSchemaQuery    = "SELECT current_schema()"
	publicSearchPathQuery = "SET search_path TO public"
)

// Binder switches a single Postgres connection to a tenant partition by
// setting its search_path. The shared public schema stays second in the path
// so registry tables remain visible.
type Binder struct{}

func NewBinder() Binder {
	return Binder{}
}

// Bind fails closed: if the partition cannot be verified as the connection's
// current schema, the caller must not run tenant queries on conn.
func (Binder) Bind(ctx context.Context, conn *sql.Conn, partition domain.Partition) error {
	if partition.IsZero() {
		return fmt.Errorf("%w: empty partition", domain.ErrPartitionValidationFailed)
	}
	if _, err := domain.ParsePartition(partition.Name()); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, SearchPathStatement(partition)); err != nil {
		return fmt.Errorf("%w: set search_path for %s: %v", domain.ErrPartitionBindFailed, partition, err)
	}

	var current sql.NullString
	if err := conn.QueryRowContext(ctx, currentSchemaQuery).Scan(&current); err != nil {
		return fmt.Errorf("%w: verify %s: %v", domain.ErrPartitionBindFailed, partition, err)
	}
	if !current.Valid || current.String != partition.Name() {
		return fmt.Errorf("%w: partition %s does not exist (current schema %q)", domain.ErrPartitionBindFailed, partition, current.String)
	}
	return nil
}

// Reset restores the connection's default search_path. It is idempotent.
func (Binder) Reset(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, resetStatement); err != nil {
		return fmt.Errorf("reset search_path: %w", err)
	}
	return nil
}

// SearchPathStatement renders the bind statement for partition. The name is
// quoted with pgx.Identifier even though Partition values are pre-validated.
func SearchPathStatement(partition domain.Partition) string {
	if partition.IsPublic() {
		return publicSearchPathQuery
	}
	return "SET search_path TO " + pgx.Identifier{partition.Name()}.Sanitize() + ", public"
}
