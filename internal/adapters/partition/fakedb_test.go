package partition

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeServer emulates the search_path behaviour of a Postgres server: every
// connection has its own path and current_schema() is the first existing
// schema on it.
type fakeServer struct {
	mu         sync.Mutex
	schemas    map[string]bool
	nextID     int
	opened     int
	closed     int
	resets     int
	failResets int
}

func newFakeServer(schemas ...string) *fakeServer {
	s := &fakeServer{schemas: map[string]bool{"public": true}}
	for _, name := range schemas {
		s.schemas[name] = true
	}
	return s
}

func (s *fakeServer) Connect(context.Context) (driver.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.opened++
	return &fakeConn{srv: s, id: s.nextID, path: defaultSearchPath()}, nil
}

func (s *fakeServer) Driver() driver.Driver { return fakeDriver{} }

func (s *fakeServer) counts() (opened, closed, resets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed, s.resets
}

func (s *fakeServer) failNextResets(n int) {
	s.mu.Lock()
	s.failResets = n
	s.mu.Unlock()
}

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("fake driver only supports connectors")
}

func defaultSearchPath() []string {
	return []string{`"$user"`, "public"}
}

type fakeConn struct {
	srv  *fakeServer
	id   int
	path []string
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *fakeConn) Close() error {
	c.srv.mu.Lock()
	c.srv.closed++
	c.srv.mu.Unlock()
	return nil
}

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *fakeConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	switch {
	case query == resetStatement:
		if c.srv.failResets > 0 {
			c.srv.failResets--
			return nil, errors.New("connection lost during reset")
		}
		c.srv.resets++
		c.path = defaultSearchPath()
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(query, "SET search_path TO "):
		var path []string
		for _, part := range strings.Split(strings.TrimPrefix(query, "SET search_path TO "), ",") {
			path = append(path, strings.Trim(strings.TrimSpace(part), `"`))
		}
		c.path = path
		return driver.RowsAffected(0), nil
	default:
		return nil, fmt.Errorf("unsupported exec %q", query)
	}
}

func (c *fakeConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	switch query {
	case currentSchemaQuery:
		var current driver.Value
		for _, schema := range c.path {
			if c.srv.schemas[schema] {
				current = schema
				break
			}
		}
		return &fakeRows{columns: []string{"current_schema"}, values: []driver.Value{current}}, nil
	case "SELECT pg_backend_pid()":
		return &fakeRows{columns: []string{"pg_backend_pid"}, values: []driver.Value{int64(c.id)}}, nil
	default:
		return nil, fmt.Errorf("unsupported query %q", query)
	}
}

type fakeRows struct {
	columns []string
	values  []driver.Value
	done    bool
}

func (r *fakeRows) Columns() []string { return r.columns }

func (r *fakeRows) Close() error { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	copy(dest, r.values)
	r.done = true
	return nil
}

func openFakePool(t *testing.T, srv *fakeServer, maxConns int, opts ...PoolOption) *Pool {
	t.Helper()
	sqlDB := sql.OpenDB(srv)
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	base, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	pool, err := NewPool(base, NewBinder(), opts...)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return pool
}

func currentSchema(ctx context.Context, t *testing.T, s *Session) string {
	t.Helper()
	var name sql.NullString
	if err := s.Conn().QueryRowContext(ctx, currentSchemaQuery).Scan(&name); err != nil {
		t.Errorf("current schema: %v", err)
		return ""
	}
	return name.String
}

func backendID(ctx context.Context, t *testing.T, s *Session) int64 {
	t.Helper()
	var id int64
	if err := s.Conn().QueryRowContext(ctx, "SELECT pg_backend_pid()").Scan(&id); err != nil {
		t.Errorf("backend id: %v", err)
	}
	return id
}
