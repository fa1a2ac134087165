// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

package gallerydb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gonuget/gallery/gallery/editqueue"
)

// ApplyEdit commits one successfully rewritten package in a single
// transaction: it snapshots the pre-edit row into the history table,
// updates the package row with the edit's values and the recomputed
// hash and size, rebuilds the per-author rows, and deletes the applied
// edit together with any older queued edits for the same package. Any
// failure rolls the whole transaction back.
func (db *DB) ApplyEdit(ctx context.Context, edit editqueue.Edit, hash, hashAlgorithm string, size int64, now time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO package_histories (
				package_key, user_key, timestamp,
				title, authors, copyright, description,
				icon_url, license_url, project_url, release_notes,
				requires_license_acceptance, summary, tags,
				hash, hash_algorithm, package_file_size,
				last_updated, published)
			SELECT
				p.key, ?, ?,
				p.title,
				( SELECT group_concat(a.name, ',')
				  FROM package_authors a
				  WHERE a.package_key = p.key ),
				p.copyright, p.description,
				p.icon_url, p.license_url, p.project_url, p.release_notes,
				p.requires_license_acceptance, p.summary, p.tags,
				p.hash, p.hash_algorithm, p.package_file_size,
				p.last_updated, p.published
			FROM packages p
			WHERE p.key = ?
		`, edit.UserKey, now, edit.PackageKey)
		if err != nil {
			return Error.Wrap(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return Error.Wrap(err)
		}
		if affected == 0 {
			return Error.New("package %d not found", edit.PackageKey)
		}

		patch := edit.Patch
		_, err = tx.ExecContext(ctx, `
			UPDATE packages
			SET title = coalesce(?, title),
			    copyright = coalesce(?, copyright),
			    description = coalesce(?, description),
			    icon_url = coalesce(?, icon_url),
			    license_url = coalesce(?, license_url),
			    project_url = coalesce(?, project_url),
			    release_notes = coalesce(?, release_notes),
			    requires_license_acceptance = coalesce(?, requires_license_acceptance),
			    summary = coalesce(?, summary),
			    tags = coalesce(?, tags),
			    flattened_authors = coalesce(?, flattened_authors),
			    hash = ?,
			    hash_algorithm = ?,
			    package_file_size = ?,
			    user_key = ?,
			    last_edited = ?,
			    last_updated = ?
			WHERE key = ?
		`, patch.Title, patch.Copyright, patch.Description,
			patch.IconURL, patch.LicenseURL, patch.ProjectURL,
			patch.ReleaseNotes, patch.RequiresLicenseAcceptance,
			patch.Summary, patch.Tags, patch.Authors,
			hash, hashAlgorithm, size,
			edit.UserKey, now, now,
			edit.PackageKey)
		if err != nil {
			return Error.Wrap(err)
		}

		if patch.Authors != nil {
			_, err = tx.ExecContext(ctx, `
				DELETE FROM package_authors WHERE package_key = ?
			`, edit.PackageKey)
			if err != nil {
				return Error.Wrap(err)
			}
			// a literal comma split: empty segments between consecutive
			// commas become empty-named author rows
			for _, name := range strings.Split(*patch.Authors, ",") {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO package_authors ( package_key, name )
					VALUES ( ?, ? )
				`, edit.PackageKey, name)
				if err != nil {
					return Error.Wrap(err)
				}
			}
		}

		// the applied edit plus any older, now superseded edits
		_, err = tx.ExecContext(ctx, `
			DELETE FROM package_edits
			WHERE package_key = ? AND key <= ?
		`, edit.PackageKey, edit.Key)
		return Error.Wrap(err)
	})
}
