// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartisim/relayd/irc/kv"
)

func datastoreConfig(t *testing.T) *Config {
	config := minimalConfig()
	config.Datastore.Path = filepath.Join(t.TempDir(), "relayd.db")
	return config
}

func TestInitAndOpenDatabase(t *testing.T) {
	config := datastoreConfig(t)
	require.NoError(t, InitDB(config))
	assert.ErrorIs(t, InitDB(config), errDatastoreExists)

	store, err := OpenDatabase(config)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.View(func(tx kv.Tx) error {
		version, err := tx.Get(keySchemaVersion)
		assert.Equal(t, latestDbSchema, version)
		return err
	}))
}

func TestOpenDatabaseSchemaMismatch(t *testing.T) {
	config := datastoreConfig(t)
	require.NoError(t, InitDB(config))

	store, err := kv.BuntdbOpen(config.Datastore.Path)
	require.NoError(t, err)
	require.NoError(t, store.Update(func(tx kv.Tx) error {
		_, _, err := tx.Set(keySchemaVersion, "0")
		return err
	}))
	require.NoError(t, store.Close())

	_, err = OpenDatabase(config)
	var schemaErr *kv.IncompatibleSchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "0", schemaErr.CurrentVersion)
	assert.Equal(t, latestDbSchema, schemaErr.RequiredVersion)
}

func TestOpenUninitializedDatabase(t *testing.T) {
	config := datastoreConfig(t)
	_, err := OpenDatabase(config)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestOpenMemoryDatabase(t *testing.T) {
	config := minimalConfig()
	store, err := OpenDatabase(config)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestUnknownDatastoreDriver(t *testing.T) {
	config := minimalConfig()
	config.Datastore.Driver = "postgres"
	assert.ErrorIs(t, InitDB(config), ErrUnknownDatastore)
	_, err := OpenDatabase(config)
	assert.ErrorIs(t, err, ErrUnknownDatastore)
}
