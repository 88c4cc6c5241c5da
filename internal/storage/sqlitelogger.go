package storage

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// statementLogger wraps the sqlite3 driver so every statement against the
// rule store is logged with its arguments, outcome and elapsed time. Enabled
// via DB_LOG_SQL; useful when chasing rule persistence issues (the store
// writes the whole custom rule list as one blob, so each mutation is exactly
// one upsert here).
type statementLogger struct {
	dsn    string
	logger *slog.Logger
}

type loggedConn struct {
	conn   driver.Conn
	logger *slog.Logger
}

type loggedStmt struct {
	stmt   driver.Stmt
	query  string
	logger *slog.Logger
}

// NewLoggingConnector returns a driver.Connector logging all rule-store SQL
// through the given logger. Use sql.OpenDB(connector) to get a *sql.DB.
// If logger is nil, slog.Default() is used.
func NewLoggingConnector(dsn string, logger *slog.Logger) (driver.Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &statementLogger{dsn: dsn, logger: logger.With("subsystem", "rulestore")}, nil
}

func (c *statementLogger) Driver() driver.Driver { return &noDirectOpen{} }

func (c *statementLogger) Connect(ctx context.Context) (driver.Conn, error) {
	underlying := &sqlite3.SQLiteDriver{}
	conn, err := underlying.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &loggedConn{conn: conn, logger: c.logger}, nil
}

// noDirectOpen satisfies Connector.Driver(); connections come from Connect only.
type noDirectOpen struct{}

func (d *noDirectOpen) Open(name string) (driver.Conn, error) {
	return nil, fmt.Errorf("sqlite3-log: use sql.OpenDB(NewLoggingConnector(...)) instead of sql.Open")
}

func (c *loggedConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &loggedStmt{stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *loggedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if prep, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err := prep.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		return &loggedStmt{stmt: stmt, query: query, logger: c.logger}, nil
	}
	return c.Prepare(query)
}

func (c *loggedConn) Close() error { return c.conn.Close() }

func (c *loggedConn) Begin() (driver.Tx, error) {
	//nolint:staticcheck // SA1019: required when underlying conn does not implement ConnBeginTx
	return c.conn.Begin()
}

func (c *loggedConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if beginTx, ok := c.conn.(driver.ConnBeginTx); ok {
		return beginTx.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019: fallback when underlying conn does not implement ConnBeginTx
	return c.conn.Begin()
}

func (s *loggedStmt) Exec(args []driver.Value) (driver.Result, error) {
	start := time.Now()
	//nolint:staticcheck // SA1019: required when underlying stmt does not implement StmtExecContext
	res, err := s.stmt.Exec(args)
	s.logStatement("exec", valuesToArgs(args), start, err)
	return res, err
}

func (s *loggedStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	execCtx, ok := s.stmt.(driver.StmtExecContext)
	if !ok {
		//nolint:staticcheck // SA1019: fallback when underlying stmt does not implement StmtExecContext
		res, err := s.stmt.Exec(namedValuesToValues(args))
		s.logStatement("exec", namedValuesToArgs(args), start, err)
		return res, err
	}
	res, err := execCtx.ExecContext(ctx, args)
	s.logStatement("exec", namedValuesToArgs(args), start, err)
	return res, err
}

func (s *loggedStmt) Query(args []driver.Value) (driver.Rows, error) {
	start := time.Now()
	//nolint:staticcheck // SA1019: required when underlying stmt does not implement StmtQueryContext
	rows, err := s.stmt.Query(args)
	s.logStatement("query", valuesToArgs(args), start, err)
	return rows, err
}

func (s *loggedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	queryCtx, ok := s.stmt.(driver.StmtQueryContext)
	if !ok {
		//nolint:staticcheck // SA1019: fallback when underlying stmt does not implement StmtQueryContext
		rows, err := s.stmt.Query(namedValuesToValues(args))
		s.logStatement("query", namedValuesToArgs(args), start, err)
		return rows, err
	}
	rows, err := queryCtx.QueryContext(ctx, args)
	s.logStatement("query", namedValuesToArgs(args), start, err)
	return rows, err
}

func (s *loggedStmt) Close() error { return s.stmt.Close() }

func (s *loggedStmt) NumInput() int { return s.stmt.NumInput() }

// logStatement emits one record per executed statement. Failures are logged
// at warn so they surface without DB_LOG_SQL debug noise enabled globally.
func (s *loggedStmt) logStatement(op string, args []any, start time.Time, err error) {
	attrs := []any{
		"op", op,
		"sql", s.query,
		"args", args,
		"elapsed", time.Since(start),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
		s.logger.Warn("sql", attrs...)
		return
	}
	s.logger.Debug("sql", attrs...)
}

func valuesToArgs(args []driver.Value) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = formatArg(a)
	}
	return out
}

func namedValuesToArgs(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if a.Name != "" {
			out[i] = a.Name + "=" + formatArg(a.Value)
		} else {
			out[i] = formatArg(a.Value)
		}
	}
	return out
}

func namedValuesToValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
