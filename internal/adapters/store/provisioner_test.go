package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionStatementsQualifyEveryTable(t *testing.T) {
	p, err := domain.ParsePartition("acme_shop")
	require.NoError(t, err)

	stmts, err := PartitionStatements(p)
	require.NoError(t, err)
	require.NotEmpty(t, stmts)
	assert.Equal(t, `CREATE SCHEMA "acme_shop"`, stmts[0])
	for _, stmt := range stmts {
		assert.NotContains(t, stmt, "CREATE SCHEMA IF NOT EXISTS")
	}

	joined := strings.Join(stmts, "\n")
	for _, table := range []string{"products", "orders", "order_items"} {
		assert.Contains(t, joined, `"acme_shop".`+table)
	}
	assert.NotContains(t, joined, "{{")
	assert.NotContains(t, joined, "search_path")
}

func TestPartitionStatementsRejectReservedPartitions(t *testing.T) {
	_, err := PartitionStatements(domain.PublicPartition())
	assert.ErrorIs(t, err, domain.ErrPartitionValidationFailed)

	_, err = PartitionStatements(domain.Partition{})
	assert.ErrorIs(t, err, domain.ErrPartitionValidationFailed)
}

func TestSchemaProvisionerExecutesStatementsInOrder(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	p, err := domain.ParsePartition("acme")
	require.NoError(t, err)
	stmts, err := PartitionStatements(p)
	require.NoError(t, err)
	for _, stmt := range stmts {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, NewSchemaProvisioner().Provision(context.Background(), db, p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaProvisionerStopsOnFirstError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	p, err := domain.ParsePartition("acme")
	require.NoError(t, err)
	mock.ExpectExec(`CREATE SCHEMA "acme"`).WillReturnError(errors.New("permission denied"))

	err = NewSchemaProvisioner().Provision(context.Background(), db, p)
	assert.ErrorContains(t, err, "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaProvisionerRefusesExistingSchema(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	p, err := domain.ParsePartition("acme")
	require.NoError(t, err)
	mock.ExpectExec(`CREATE SCHEMA "acme"`).
		WillReturnError(&pgconn.PgError{Code: "42P06", Message: `schema "acme" already exists`})

	err = NewSchemaProvisioner().Provision(context.Background(), db, p)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorContains(t, err, "already exists")
	assert.NoError(t, mock.ExpectationsWereMet())
}
