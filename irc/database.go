// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2016 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package irc

import (
	"errors"
	"fmt"
	"os"

	"github.com/cartisim/relayd/irc/kv"
)

const (
	// 'version' of the datastore schema
	keySchemaVersion = "db.version"
	// latest schema of the datastore
	latestDbSchema = "1"

	datastoreBuntdb = "buntdb"
	datastoreMySQL  = "mysql"
)

var (
	errDatastoreExists = errors.New("datastore already exists (delete it manually to continue)")
)

// InitDB creates the datastore, implementing the `relayd initdb` command.
func InitDB(config *Config) error {
	if config.Datastore.Driver != datastoreMySQL {
		path := config.Datastore.Path
		_, err := os.Stat(path)
		if err == nil {
			return fmt.Errorf("%w: %s", errDatastoreExists, path)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("datastore path is inaccessible: %w", err)
		}
	}

	store, err := openStore(config)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Update(func(tx kv.Tx) error {
		if version, err := tx.Get(keySchemaVersion); err == nil {
			return fmt.Errorf("%w: schema v%s", errDatastoreExists, version)
		}
		_, _, err := tx.Set(keySchemaVersion, latestDbSchema)
		return err
	})
}

// OpenDatabase returns an existing datastore, performing a schema version check.
func OpenDatabase(config *Config) (store kv.Store, err error) {
	store, err = openStore(config)
	if err != nil {
		return
	}

	// an in-memory store is always new
	if config.Datastore.Driver != datastoreMySQL && config.Datastore.Path == ":memory:" {
		err = store.Update(func(tx kv.Tx) error {
			_, _, err := tx.Set(keySchemaVersion, latestDbSchema)
			return err
		})
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	var version string
	err = store.View(func(tx kv.Tx) error {
		version, err = tx.Get(keySchemaVersion)
		return err
	})
	if err == nil && version != latestDbSchema {
		err = &kv.IncompatibleSchemaError{CurrentVersion: version, RequiredVersion: latestDbSchema}
	} else if errors.Is(err, kv.ErrNotFound) {
		err = fmt.Errorf("datastore is not initialized (run `relayd initdb`): %w", err)
	}
	if err != nil {
		store.Close()
		store = nil
	}
	return
}

func openStore(config *Config) (kv.Store, error) {
	switch config.Datastore.Driver {
	case datastoreMySQL:
		return kv.MySQLOpen(config.Datastore.MySQL)
	case datastoreBuntdb, "":
		return kv.BuntdbOpen(config.Datastore.Path)
	default:
		return nil, ErrUnknownDatastore
	}
}
