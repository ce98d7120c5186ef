package store

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"
)

// Provisioner creates the storage partition for a new tenant. It runs on the
// connection of the registry write transaction.
type Provisioner interface {
	Provision(ctx context.Context, conn gorm.ConnPool, partition domain.Partition) error
}

type ProvisionerFunc func(ctx context.Context, conn gorm.ConnPool, partition domain.Partition) error

func (f ProvisionerFunc) Provision(ctx context.Context, conn gorm.ConnPool, partition domain.Partition) error {
	return f(ctx, conn, partition)
}

//go:embed ddl/partition.sql
var partitionDDL string

var partitionDDLTemplate = template.Must(template.New("partition").Parse(partitionDDL))

// SchemaProvisioner creates one Postgres schema per tenant and the storefront
// tables inside it. An existing schema with the same name is never adopted. Table names are schema-qualified so the surrounding
// transaction never changes its search_path.
type SchemaProvisioner struct{}

func NewSchemaProvisioner() SchemaProvisioner {
	return SchemaProvisioner{}
}

func (SchemaProvisioner) Provision(ctx context.Context, conn gorm.ConnPool, partition domain.Partition) error {
	stmts, err := PartitionStatements(partition)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			if isDuplicateSchema(err) {
				return fmt.Errorf("provision partition %s: schema already exists: %w", partition, domain.ErrConflict)
			}
			return fmt.Errorf("provision partition %s: %w", partition, err)
		}
	}
	return nil
}

// PartitionStatements renders the provisioning statements for partition in
// execution order.
func PartitionStatements(partition domain.Partition) ([]string, error) {
	if partition.IsZero() || partition.IsPublic() {
		return nil, fmt.Errorf("%w: cannot provision %q", domain.ErrPartitionValidationFailed, partition.Name())
	}
	schema := pgx.Identifier{partition.Name()}.Sanitize()

	var buf bytes.Buffer
	if err := partitionDDLTemplate.Execute(&buf, struct{ Schema string }{Schema: schema}); err != nil {
		return nil, fmt.Errorf("render partition ddl: %w", err)
	}

	stmts := []string{"CREATE SCHEMA " + schema}
	for _, stmt := range strings.Split(buf.String(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}
