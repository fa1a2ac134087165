// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

package gallerydb

import "context"

// MigrateToLatest creates the catalog tables consumed by the edit
// engine. The engine depends on these exact column semantics; the
// schema is shared with the rest of the gallery.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	db.log.Debug("ensuring catalog tables")
	_, err = db.db.ExecContext(ctx, schema)
	return Error.Wrap(err)
}

const schema = `
	CREATE TABLE IF NOT EXISTS package_registrations (
		key INTEGER PRIMARY KEY AUTOINCREMENT,
		id  TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS packages (
		key                         INTEGER PRIMARY KEY AUTOINCREMENT,
		package_registration_key    INTEGER NOT NULL REFERENCES package_registrations ( key ),
		normalized_version          TEXT NOT NULL,
		title                       TEXT,
		flattened_authors           TEXT,
		copyright                   TEXT,
		description                 TEXT,
		icon_url                    TEXT,
		license_url                 TEXT,
		project_url                 TEXT,
		release_notes               TEXT,
		requires_license_acceptance INTEGER NOT NULL DEFAULT 0,
		summary                     TEXT,
		tags                        TEXT,
		hash                        TEXT NOT NULL,
		hash_algorithm              TEXT NOT NULL,
		package_file_size           INTEGER NOT NULL,
		user_key                    INTEGER,
		last_edited                 TIMESTAMP,
		last_updated                TIMESTAMP NOT NULL,
		published                   TIMESTAMP,
		UNIQUE ( package_registration_key, normalized_version )
	);

	CREATE TABLE IF NOT EXISTS package_authors (
		key         INTEGER PRIMARY KEY AUTOINCREMENT,
		package_key INTEGER NOT NULL REFERENCES packages ( key ),
		name        TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS package_histories (
		key                         INTEGER PRIMARY KEY AUTOINCREMENT,
		package_key                 INTEGER NOT NULL REFERENCES packages ( key ),
		user_key                    INTEGER,
		timestamp                   TIMESTAMP NOT NULL,
		title                       TEXT,
		authors                     TEXT,
		copyright                   TEXT,
		description                 TEXT,
		icon_url                    TEXT,
		license_url                 TEXT,
		project_url                 TEXT,
		release_notes               TEXT,
		requires_license_acceptance INTEGER,
		summary                     TEXT,
		tags                        TEXT,
		hash                        TEXT,
		hash_algorithm              TEXT,
		package_file_size           INTEGER,
		last_updated                TIMESTAMP,
		published                   TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS package_edits (
		key                         INTEGER PRIMARY KEY AUTOINCREMENT,
		package_key                 INTEGER NOT NULL REFERENCES packages ( key ),
		user_key                    INTEGER NOT NULL,
		timestamp                   TIMESTAMP NOT NULL,
		tried_count                 INTEGER NOT NULL DEFAULT 0,
		last_error                  TEXT,
		title                       TEXT,
		authors                     TEXT,
		copyright                   TEXT,
		description                 TEXT,
		icon_url                    TEXT,
		license_url                 TEXT,
		project_url                 TEXT,
		release_notes               TEXT,
		requires_license_acceptance INTEGER,
		summary                     TEXT,
		tags                        TEXT
	);

	CREATE INDEX IF NOT EXISTS package_edits_package_key_index
		ON package_edits ( package_key );
`
