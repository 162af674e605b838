package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/vk/taskgrid/internal/ctxlog"
)

// Supported credential types.
const (
	TypeSQLite = "sqlite"
	TypeMySQL  = "mysql"
)

// ErrUnknownDatabase is returned when a task references a database that is
// not part of the pool.
var ErrUnknownDatabase = errors.New("unknown database")

// DB is a named connection of a known dialect.
type DB struct {
	Name string
	Type string
	*sql.DB
}

// Pool holds every connection of a run.
type Pool struct {
	dbs map[string]*DB
}

// NewPool assembles a pool from already opened connections.
func NewPool(dbs ...*DB) *Pool {
	p := &Pool{dbs: make(map[string]*DB, len(dbs))}
	for _, db := range dbs {
		p.dbs[db.Name] = db
	}
	return p
}

// Open connects to every credential of a database type. Credentials of any
// other type are ignored; they belong to runners that manage their own
// connections.
func Open(ctx context.Context, credentials map[string]map[string]any) (*Pool, error) {
	logger := ctxlog.FromContext(ctx)

	names := make([]string, 0, len(credentials))
	for name := range credentials {
		names = append(names, name)
	}
	sort.Strings(names)

	p := NewPool()
	for _, name := range names {
		cred := credentials[name]
		typ, _ := cred["type"].(string)

		var (
			db  *sql.DB
			err error
		)
		switch typ {
		case TypeSQLite:
			db, err = openSQLite(cred)
		case TypeMySQL:
			db, err = openMySQL(cred)
		default:
			logger.Debug("Credential is not a database, skipping.", "credential", name, "type", typ)
			continue
		}
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("credential %q: %w", name, err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			p.Close()
			return nil, fmt.Errorf("credential %q: failed to connect: %w", name, err)
		}

		p.dbs[name] = &DB{Name: name, Type: typ, DB: db}
		logger.Debug("Database connected.", "credential", name, "type", typ)
	}
	return p, nil
}

func openSQLite(cred map[string]any) (*sql.DB, error) {
	path := stringOr(cred, "database", ":memory:")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is a distinct database.
	db.SetMaxOpenConns(1)
	return db, nil
}

func openMySQL(cred map[string]any) (*sql.DB, error) {
	dsn, err := MySQLDSN(cred)
	if err != nil {
		return nil, err
	}
	return sql.Open("mysql", dsn)
}

// MySQLDSN builds a go-sql-driver DSN from a credential mapping with the keys
// host, port, user, password and database. A "dsn" key is used verbatim.
func MySQLDSN(cred map[string]any) (string, error) {
	if dsn, ok := cred["dsn"].(string); ok && dsn != "" {
		return dsn, nil
	}

	host := stringOr(cred, "host", "127.0.0.1")
	port := stringOr(cred, "port", "3306")
	if v, ok := cred["port"].(int); ok {
		port = strconv.Itoa(v)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = host + ":" + port
	cfg.User = stringOr(cred, "user", "")
	cfg.Passwd = stringOr(cred, "password", "")
	cfg.DBName = stringOr(cred, "database", "")
	cfg.ParseTime = true
	if cfg.User == "" {
		return "", errors.New("mysql credential requires a user")
	}
	return cfg.FormatDSN(), nil
}

func stringOr(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Get returns the named connection.
func (p *Pool) Get(name string) (*DB, error) {
	if p == nil {
		return nil, fmt.Errorf("%w %q: no databases configured", ErrUnknownDatabase, name)
	}
	db, ok := p.dbs[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDatabase, name)
	}
	return db, nil
}

// Names returns the connection names in sorted order.
func (p *Pool) Names() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.dbs))
	for n := range p.dbs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Close closes every connection.
func (p *Pool) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, db := range p.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", db.Name, err))
		}
	}
	return errors.Join(errs...)
}
