// Copyright (c) 2022 Valentin Lorentz
// released under the MIT license

// This file implements the Store abstraction using buntdb.
// As the abstraction itself is based on buntdb's API, this is mostly
// a pass-through.

package kv

import (
	"errors"

	"github.com/tidwall/buntdb"
)

func buntdbError(err error) error {
	switch {
	case errors.Is(err, buntdb.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, buntdb.ErrTxNotWritable):
		return ErrTxNotWritable
	default:
		return err
	}
}

/**********************
 * Transactions
 */
type BuntdbTx struct {
	tx *buntdb.Tx
}

func (tx BuntdbTx) AscendKeys(pattern string, iterator func(key, value string) bool) error {
	return buntdbError(tx.tx.AscendKeys(pattern, iterator))
}

func (tx BuntdbTx) Delete(key string) (val string, err error) {
	val, err = tx.tx.Delete(key)
	return val, buntdbError(err)
}

func (tx BuntdbTx) Get(key string) (val string, err error) {
	val, err = tx.tx.Get(key)
	return val, buntdbError(err)
}

func (tx BuntdbTx) Set(key string, value string) (previousValue string, replaced bool, err error) {
	previousValue, replaced, err = tx.tx.Set(key, value, nil)
	return previousValue, replaced, buntdbError(err)
}

/**********************
 * Database
 */

type BuntdbStore struct {
	db *buntdb.DB
}

// BuntdbOpen opens (creating if necessary) a buntdb file; ":memory:" gives
// a non-persistent store.
func BuntdbOpen(path string) (Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return BuntdbStore{db}, nil
}

func (kv BuntdbStore) Close() error {
	return kv.db.Close()
}

func (kv BuntdbStore) Update(fn func(tx Tx) error) error {
	return kv.db.Update(func(tx *buntdb.Tx) error {
		return fn(BuntdbTx{tx})
	})
}

func (kv BuntdbStore) View(fn func(tx Tx) error) error {
	return kv.db.View(func(tx *buntdb.Tx) error {
		return fn(BuntdbTx{tx})
	})
}
