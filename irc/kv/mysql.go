// Copyright (c) 2020 Shivaram Lingamneni
// released under the MIT license

// This file implements the Store abstraction on a single MySQL table.

package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/cartisim/relayd/irc/utils"
)

const (
	latestDbSchema   = "1"
	keySchemaVersion = "db.version"

	// maximum key length; longer keys are rejected by the server
	maxKeyLength = 255

	defaultMySQLTimeout = 10 * time.Second
)

// MySQLConfig is the `datastore.mysql` config block.
type MySQLConfig struct {
	Host            string        `yaml:"host" toml:"host"`
	Port            int           `yaml:"port" toml:"port"`
	SocketPath      string        `yaml:"socket-path" toml:"socket-path"`
	User            string        `yaml:"user" toml:"user"`
	Password        string        `yaml:"password" toml:"password"`
	Database        string        `yaml:"database" toml:"database" validate:"required_with=User"`
	Timeout         time.Duration `yaml:"timeout" toml:"timeout"`
	MaxConns        int           `yaml:"max-conns" toml:"max-conns"`
	ConnMaxLifetime time.Duration `yaml:"conn-max-lifetime" toml:"conn-max-lifetime"`
}

// IncompatibleSchemaError is returned when the table was written by a newer
// (or unknown) schema version.
type IncompatibleSchemaError struct {
	CurrentVersion  string
	RequiredVersion string
}

func (err *IncompatibleSchemaError) Error() string {
	return fmt.Sprintf("Database requires update. Expected schema v%s, got v%s", err.RequiredVersion, err.CurrentVersion)
}

// driverConfig translates our config into the driver's.
func (config MySQLConfig) driverConfig() *mysql.Config {
	result := mysql.NewConfig()
	result.User = config.User
	result.Passwd = config.Password
	result.DBName = config.Database
	if config.SocketPath != "" {
		result.Net = "unix"
		result.Addr = config.SocketPath
	} else {
		result.Net = "tcp"
		port := config.Port
		if port == 0 {
			port = 3306
		}
		result.Addr = fmt.Sprintf("%s:%d", config.Host, port)
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultMySQLTimeout
	}
	result.Timeout = timeout
	result.ReadTimeout = timeout
	result.WriteTimeout = timeout
	return result
}

// DSN returns the driver connection string for config.
func (config MySQLConfig) DSN() string {
	return config.driverConfig().FormatDSN()
}

type MySQLStore struct {
	db      *sql.DB
	timeout time.Duration
}

// MySQLOpen connects and creates the kv table if needed.
func MySQLOpen(config MySQLConfig) (Store, error) {
	connector, err := mysql.NewConnector(config.driverConfig())
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	if config.MaxConns != 0 {
		db.SetMaxOpenConns(config.MaxConns)
		db.SetMaxIdleConns(config.MaxConns)
	}
	if config.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	store := &MySQLStore{db: db, timeout: config.driverConfig().Timeout}
	if err := store.fixSchemas(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (m *MySQLStore) fixSchemas() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	_, err = m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS metadata (
		key_name VARCHAR(32) primary key,
		value VARCHAR(32) NOT NULL
	) CHARSET=ascii COLLATE=ascii_bin;`)
	if err != nil {
		return err
	}

	var schema string
	err = m.db.QueryRowContext(ctx, `select value from metadata where key_name = ?;`, keySchemaVersion).Scan(&schema)
	if err == sql.ErrNoRows {
		_, err = m.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kv (
			k VARBINARY(%d) NOT NULL PRIMARY KEY,
			v MEDIUMBLOB NOT NULL
		);`, maxKeyLength))
		if err != nil {
			return err
		}
		_, err = m.db.ExecContext(ctx, `insert into metadata (key_name, value) values (?, ?);`, keySchemaVersion, latestDbSchema)
		return err
	} else if err != nil {
		return err
	} else if schema != latestDbSchema {
		return &IncompatibleSchemaError{CurrentVersion: schema, RequiredVersion: latestDbSchema}
	}
	return nil
}

func (m *MySQLStore) Close() error {
	return m.db.Close()
}

func (m *MySQLStore) Update(fn func(tx Tx) error) error {
	return m.transact(false, fn)
}

func (m *MySQLStore) View(fn func(tx Tx) error) error {
	return m.transact(true, fn)
}

func (m *MySQLStore) transact(readOnly bool, fn func(tx Tx) error) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	sqlTx, err := m.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return err
	}
	err = fn(&MySQLTx{ctx: ctx, tx: sqlTx, readOnly: readOnly})
	if err != nil || readOnly {
		rollbackErr := sqlTx.Rollback()
		if err == nil {
			err = rollbackErr
		}
		return err
	}
	return sqlTx.Commit()
}

type MySQLTx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (tx *MySQLTx) AscendKeys(pattern string, iterator func(key, value string) bool) error {
	rows, err := tx.tx.QueryContext(tx.ctx, `SELECT k, v FROM kv WHERE k LIKE ? ESCAPE '\\' ORDER BY k;`, utils.GlobToLike(pattern))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		if !iterator(key, value) {
			break
		}
	}
	return rows.Err()
}

func (tx *MySQLTx) get(key string, forUpdate bool) (val string, err error) {
	query := `SELECT v FROM kv WHERE k = ?;`
	if forUpdate {
		query = `SELECT v FROM kv WHERE k = ? FOR UPDATE;`
	}
	err = tx.tx.QueryRowContext(tx.ctx, query, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return val, err
}

func (tx *MySQLTx) Get(key string) (val string, err error) {
	return tx.get(key, false)
}

func (tx *MySQLTx) Delete(key string) (val string, err error) {
	if tx.readOnly {
		return "", ErrTxNotWritable
	}
	val, err = tx.get(key, true)
	if err != nil {
		return "", err
	}
	_, err = tx.tx.ExecContext(tx.ctx, `DELETE FROM kv WHERE k = ?;`, key)
	return val, err
}

func (tx *MySQLTx) Set(key string, value string) (previousValue string, replaced bool, err error) {
	if tx.readOnly {
		return "", false, ErrTxNotWritable
	}
	if len(key) > maxKeyLength {
		return "", false, fmt.Errorf("kv: key too long (%d bytes)", len(key))
	}
	previousValue, err = tx.get(key, true)
	switch {
	case err == nil:
		replaced = true
	case errors.Is(err, ErrNotFound):
		err = nil
	default:
		return "", false, err
	}
	_, err = tx.tx.ExecContext(tx.ctx, `INSERT INTO kv (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v);`, key, value)
	if err != nil {
		return "", false, err
	}
	return previousValue, replaced, nil
}
