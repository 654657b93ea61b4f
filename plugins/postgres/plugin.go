package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BDNK1/flowtest/runtime/plugin"
	"github.com/lib/pq"
)

// Config holds the Postgres plugin configuration
type Config struct {
	Driver            string `yaml:"driver" default:"postgres" validate:"required"`
	ConnectionString  string `yaml:"connection_string"`
	MaxOpenConns      int    `yaml:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns      int    `yaml:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetimeMs int    `yaml:"conn_max_lifetime_ms" default:"300000" validate:"gte=0"` // 5 min default
}

// ConnectInput defines input for postgres.connect task
type ConnectInput struct {
	Name             string `json:"name"`
	ConnectionString string `json:"connection_string"`
}

// GetInput defines input for postgres.get task
type GetInput struct {
	Query  string `json:"query" validate:"required"`
	Params []any  `json:"params"`
}

// GetOutput defines output for postgres.get task
type GetOutput struct {
	Row   map[string]any `json:"row"`
	Found bool           `json:"found"`
}

// QueryInput defines input for postgres.query task
type QueryInput struct {
	Query  string `json:"query" validate:"required"`
	Params []any  `json:"params"`
	Limit  int    `json:"limit" validate:"gte=0"`
}

// QueryOutput defines output for postgres.query task
type QueryOutput struct {
	Rows  []any `json:"rows"`
	Count int   `json:"count"`
}

// ExecInput defines input for postgres.exec task
type ExecInput struct {
	Query  string `json:"query" validate:"required"`
	Params []any  `json:"params"`
}

// ExecOutput defines output for postgres.exec task
type ExecOutput struct {
	AffectedRows int64 `json:"affected_rows"`
}

// PostgresPlugin provides PostgreSQL database operations against a
// *Database resource.
type PostgresPlugin struct {
	Config Config
	shared *sql.DB
}

// Initialize opens the shared pool when a connection string is configured.
func (p *PostgresPlugin) Initialize(ctx context.Context) error {
	if p.Config.ConnectionString == "" {
		return nil
	}
	db, err := p.open(ctx, p.Config.ConnectionString)
	if err != nil {
		return err
	}
	p.shared = db
	return nil
}

// Shutdown closes the shared pool
func (p *PostgresPlugin) Shutdown(ctx context.Context) error {
	if p.shared == nil {
		return nil
	}
	err := p.shared.Close()
	p.shared = nil
	return err
}

// DefaultResource hands out the shared pool. Closing it is a no-op; the
// pool lives until Shutdown.
func (p *PostgresPlugin) DefaultResource(ctx context.Context) (plugin.Resource, error) {
	if p.shared == nil {
		return nil, errors.New("postgres: no connection_string configured")
	}
	return &Database{name: "default", db: p.shared}, nil
}

// Connect opens a dedicated connection pool and returns it as a resource.
// Output: db.
func (p *PostgresPlugin) Connect(call *plugin.Call, input ConnectInput) (plugin.Output, error) {
	dsn := input.ConnectionString
	if dsn == "" {
		dsn = p.Config.ConnectionString
	}
	if dsn == "" {
		return nil, errors.New("postgres.connect: connection_string is required")
	}

	db, err := p.open(call, dsn)
	if err != nil {
		return nil, err
	}

	name := input.Name
	if name == "" {
		name = call.StepID
	}
	call.Logger.InfoContext(call, fmt.Sprintf("Connected to %s", maskConnectionString(dsn)), "resource", name)
	return plugin.Output{"db": &Database{name: name, db: db, owned: true}}, nil
}

// Get executes a SELECT query and returns a single row
func (p *PostgresPlugin) Get(call *plugin.Call, input GetInput) (GetOutput, error) {
	db, err := database(call)
	if err != nil {
		return GetOutput{}, err
	}

	rows, err := db.db.QueryContext(call, input.Query, input.Params...)
	if err != nil {
		return GetOutput{}, queryError("postgres.get", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return GetOutput{}, fmt.Errorf("postgres.get: failed to get columns: %w", err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return GetOutput{}, fmt.Errorf("postgres.get: failed to get column types: %w", err)
	}

	if !rows.Next() {
		return GetOutput{Found: false, Row: map[string]any{}}, rows.Err()
	}

	row, err := scanRow(cols, colTypes, rows)
	if err != nil {
		return GetOutput{}, fmt.Errorf("postgres.get: failed to scan row: %w", err)
	}
	return GetOutput{Found: true, Row: row}, nil
}

// Query executes a SELECT query and returns every row, up to Limit when set.
func (p *PostgresPlugin) Query(call *plugin.Call, input QueryInput) (QueryOutput, error) {
	db, err := database(call)
	if err != nil {
		return QueryOutput{}, err
	}

	rows, err := db.db.QueryContext(call, input.Query, input.Params...)
	if err != nil {
		return QueryOutput{}, queryError("postgres.query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return QueryOutput{}, fmt.Errorf("postgres.query: failed to get columns: %w", err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return QueryOutput{}, fmt.Errorf("postgres.query: failed to get column types: %w", err)
	}

	out := QueryOutput{Rows: []any{}}
	for rows.Next() {
		if input.Limit > 0 && out.Count == input.Limit {
			break
		}
		row, err := scanRow(cols, colTypes, rows)
		if err != nil {
			return QueryOutput{}, fmt.Errorf("postgres.query: failed to scan row: %w", err)
		}
		out.Rows = append(out.Rows, row)
		out.Count++
	}
	return out, rows.Err()
}

// Exec executes INSERT, UPDATE, or DELETE query
func (p *PostgresPlugin) Exec(call *plugin.Call, input ExecInput) (ExecOutput, error) {
	db, err := database(call)
	if err != nil {
		return ExecOutput{}, err
	}

	result, err := db.db.ExecContext(call, input.Query, input.Params...)
	if err != nil {
		return ExecOutput{}, queryError("postgres.exec", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return ExecOutput{}, fmt.Errorf("postgres.exec: failed to get affected rows: %w", err)
	}
	return ExecOutput{AffectedRows: affected}, nil
}

func (p *PostgresPlugin) open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(p.Config.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(p.Config.MaxOpenConns)
	db.SetMaxIdleConns(p.Config.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(p.Config.ConnMaxLifetimeMs) * time.Millisecond)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping %s: %w", maskConnectionString(dsn), err)
	}
	return db, nil
}

func database(call *plugin.Call) (*Database, error) {
	db, ok := call.Resource.(*Database)
	if !ok || db == nil {
		return nil, fmt.Errorf("%s: resource %T is not a database connection", call.Function, call.Resource)
	}
	return db, nil
}

// queryError attaches the SQLSTATE of server-side errors to the report.
func queryError(fn string, err error) error {
	taskErr := plugin.NewTaskError(fmt.Errorf("%s: query failed: %w", fn, err))
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		taskErr.WithType("sql").
			WithMetadata("sqlstate", string(pqErr.Code)).
			WithMetadata("constraint", pqErr.Constraint)
	}
	return taskErr
}

// scanRow scans a single row into a map, handling postgres-specific types
func scanRow(cols []string, colTypes []*sql.ColumnType, rows *sql.Rows) (map[string]any, error) {
	values := make([]any, len(cols))
	valuePtrs := make([]any, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	result := make(map[string]any, len(cols))
	for i, col := range cols {
		val := values[i]

		b, isBytes := val.([]byte)
		switch {
		case !isBytes:
			result[col] = val
		case colTypes[i].DatabaseTypeName() == "BYTEA":
			result[col] = append([]byte(nil), b...)
		default:
			// JSONB, UUID, NUMERIC and text arrive as bytes
			result[col] = string(b)
		}
	}
	return result, nil
}

// maskConnectionString masks the password in a connection string for logging
func maskConnectionString(connStr string) string {
	scheme, rest, ok := strings.Cut(connStr, "://")
	if !ok {
		return connStr
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return connStr
	}
	user, _, hasPassword := strings.Cut(rest[:at], ":")
	if !hasPassword {
		return connStr
	}
	return scheme + "://" + user + ":***" + rest[at:]
}
