// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

// Package gallerydb provides access to the gallery catalog: packages,
// their registrations, authors, edit history and the queue of pending
// metadata edits.
package gallerydb

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	mon = monkit.Package()

	// Error is the default gallerydb error class.
	Error = errs.Class("gallerydb")
)

// DB is a connection to the gallery catalog.
type DB struct {
	log *zap.Logger
	db  *sql.DB
}

// Open connects to the catalog database. A database that cannot be
// reached fails the whole run; callers do not retry per edit.
func Open(ctx context.Context, log *zap.Logger, path string) (db *DB, err error) {
	defer mon.Task()(&ctx)(&err)

	handle, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := handle.PingContext(ctx); err != nil {
		return nil, errs.Combine(Error.Wrap(err), handle.Close())
	}
	return &DB{log: log, db: handle}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

// withTx runs fn inside a transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, tx.Rollback())
			return
		}
		err = Error.Wrap(tx.Commit())
	}()
	return fn(tx)
}
