// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

package gallerydb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/zeebo/errs"

	"github.com/gonuget/gallery/gallery/editqueue"
)

// Package is a catalog row snapshot. Used by tests and tooling; the
// gallery frontend owns the write path for these rows.
type Package struct {
	Key               int64
	RegistrationID    string
	NormalizedVersion string

	Title                     string
	FlattenedAuthors          string
	Copyright                 string
	Description               string
	IconURL                   string
	LicenseURL                string
	ProjectURL                string
	ReleaseNotes              string
	RequiresLicenseAcceptance bool
	Summary                   string
	Tags                      string

	Hash            string
	HashAlgorithm   string
	PackageFileSize int64
	UserKey         int64
	LastEdited      time.Time
	LastUpdated     time.Time
	Published       time.Time
}

// History is one immutable pre-edit snapshot row.
type History struct {
	PackageKey int64
	UserKey    int64
	Timestamp  time.Time
	Title      string
	Authors    string
	Tags       string
	Hash       string
}

// TestingCreatePackage inserts a registration (reusing it when the id
// already exists), a package row, and author rows split from
// FlattenedAuthors. It returns the new package key.
func (db *DB) TestingCreatePackage(ctx context.Context, pkg Package) (packageKey int64, err error) {
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO package_registrations ( id ) VALUES ( ? )
			ON CONFLICT ( id ) DO NOTHING
		`, pkg.RegistrationID)
		if err != nil {
			return Error.Wrap(err)
		}

		var registrationKey int64
		err = tx.QueryRowContext(ctx, `
			SELECT key FROM package_registrations WHERE id = ?
		`, pkg.RegistrationID).Scan(&registrationKey)
		if err != nil {
			return Error.Wrap(err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO packages (
				package_registration_key, normalized_version,
				title, flattened_authors, copyright, description,
				icon_url, license_url, project_url, release_notes,
				requires_license_acceptance, summary, tags,
				hash, hash_algorithm, package_file_size,
				user_key, last_updated, published)
			VALUES ( ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ? )
		`, registrationKey, pkg.NormalizedVersion,
			pkg.Title, pkg.FlattenedAuthors, pkg.Copyright, pkg.Description,
			pkg.IconURL, pkg.LicenseURL, pkg.ProjectURL, pkg.ReleaseNotes,
			pkg.RequiresLicenseAcceptance, pkg.Summary, pkg.Tags,
			pkg.Hash, pkg.HashAlgorithm, pkg.PackageFileSize,
			pkg.UserKey, pkg.LastUpdated, pkg.Published)
		if err != nil {
			return Error.Wrap(err)
		}
		packageKey, err = res.LastInsertId()
		if err != nil {
			return Error.Wrap(err)
		}

		if pkg.FlattenedAuthors == "" {
			return nil
		}
		for _, name := range strings.Split(pkg.FlattenedAuthors, ",") {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO package_authors ( package_key, name ) VALUES ( ?, ? )
			`, packageKey, name)
			if err != nil {
				return Error.Wrap(err)
			}
		}
		return nil
	})
	return packageKey, err
}

// TestingQueueEdit inserts an edit row for the given package and
// returns its key.
func (db *DB) TestingQueueEdit(ctx context.Context, packageKey, userKey int64, timestamp time.Time, patch editqueue.MetadataPatch) (key int64, err error) {
	res, err := db.db.ExecContext(ctx, `
		INSERT INTO package_edits (
			package_key, user_key, timestamp,
			title, authors, copyright, description,
			icon_url, license_url, project_url, release_notes,
			requires_license_acceptance, summary, tags)
		VALUES ( ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ? )
	`, packageKey, userKey, timestamp,
		patch.Title, patch.Authors, patch.Copyright, patch.Description,
		patch.IconURL, patch.LicenseURL, patch.ProjectURL, patch.ReleaseNotes,
		patch.RequiresLicenseAcceptance, patch.Summary, patch.Tags)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	key, err = res.LastInsertId()
	return key, Error.Wrap(err)
}

// TestingPackage reads a package row back, joined with its
// registration id.
func (db *DB) TestingPackage(ctx context.Context, packageKey int64) (pkg Package, err error) {
	var title, flattened, copyright, description sql.NullString
	var iconURL, licenseURL, projectURL, releaseNotes sql.NullString
	var summary, tags sql.NullString
	var userKey sql.NullInt64
	var lastEdited, published sql.NullTime

	err = db.db.QueryRowContext(ctx, `
		SELECT p.key, pr.id, p.normalized_version,
		       p.title, p.flattened_authors, p.copyright, p.description,
		       p.icon_url, p.license_url, p.project_url, p.release_notes,
		       p.requires_license_acceptance, p.summary, p.tags,
		       p.hash, p.hash_algorithm, p.package_file_size,
		       p.user_key, p.last_edited, p.last_updated, p.published
		FROM packages p
		INNER JOIN package_registrations pr ON pr.key = p.package_registration_key
		WHERE p.key = ?
	`, packageKey).Scan(
		&pkg.Key, &pkg.RegistrationID, &pkg.NormalizedVersion,
		&title, &flattened, &copyright, &description,
		&iconURL, &licenseURL, &projectURL, &releaseNotes,
		&pkg.RequiresLicenseAcceptance, &summary, &tags,
		&pkg.Hash, &pkg.HashAlgorithm, &pkg.PackageFileSize,
		&userKey, &lastEdited, &pkg.LastUpdated, &published)
	if err != nil {
		return Package{}, Error.Wrap(err)
	}

	pkg.Title = title.String
	pkg.FlattenedAuthors = flattened.String
	pkg.Copyright = copyright.String
	pkg.Description = description.String
	pkg.IconURL = iconURL.String
	pkg.LicenseURL = licenseURL.String
	pkg.ProjectURL = projectURL.String
	pkg.ReleaseNotes = releaseNotes.String
	pkg.Summary = summary.String
	pkg.Tags = tags.String
	pkg.UserKey = userKey.Int64
	pkg.LastEdited = lastEdited.Time
	pkg.Published = published.Time
	return pkg, nil
}

// TestingAuthors returns the package's author rows in insertion order.
func (db *DB) TestingAuthors(ctx context.Context, packageKey int64) (names []string, err error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT name FROM package_authors
		WHERE package_key = ?
		ORDER BY key
	`, packageKey)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(rows.Close()))
	}()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, Error.Wrap(err)
		}
		names = append(names, name)
	}
	return names, Error.Wrap(rows.Err())
}

// TestingHistories returns the package's history snapshots, oldest
// first.
func (db *DB) TestingHistories(ctx context.Context, packageKey int64) (histories []History, err error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT package_key, user_key, timestamp, title, authors, tags, hash
		FROM package_histories
		WHERE package_key = ?
		ORDER BY key
	`, packageKey)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(rows.Close()))
	}()

	for rows.Next() {
		var history History
		var userKey sql.NullInt64
		var title, authors, tags, hash sql.NullString
		err := rows.Scan(&history.PackageKey, &userKey, &history.Timestamp,
			&title, &authors, &tags, &hash)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		history.UserKey = userKey.Int64
		history.Title = title.String
		history.Authors = authors.String
		history.Tags = tags.String
		history.Hash = hash.String
		histories = append(histories, history)
	}
	return histories, Error.Wrap(rows.Err())
}

// TestingEditState reads back an edit row's retry counter and last
// error text.
func (db *DB) TestingEditState(ctx context.Context, key int64) (triedCount int, lastError string, err error) {
	var nullError sql.NullString
	err = db.db.QueryRowContext(ctx, `
		SELECT tried_count, last_error FROM package_edits WHERE key = ?
	`, key).Scan(&triedCount, &nullError)
	if err != nil {
		return 0, "", Error.Wrap(err)
	}
	return triedCount, nullError.String, nil
}

// TestingQueuedEditKeys returns the keys of all queued edits for a
// package, in key order.
func (db *DB) TestingQueuedEditKeys(ctx context.Context, packageKey int64) (keys []int64, err error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT key FROM package_edits
		WHERE package_key = ?
		ORDER BY key
	`, packageKey)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(rows.Close()))
	}()

	for rows.Next() {
		var key int64
		if err := rows.Scan(&key); err != nil {
			return nil, Error.Wrap(err)
		}
		keys = append(keys, key)
	}
	return keys, Error.Wrap(rows.Err())
}
