// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

package gallerydb

import (
	"context"
	"database/sql"

	"github.com/zeebo/errs"

	"github.com/gonuget/gallery/gallery/editqueue"
)

// QueuedEdits returns every queued edit joined with the owning
// package's id, normalized version and current hash.
func (db *DB) QueuedEdits(ctx context.Context) (edits []editqueue.Edit, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.QueryContext(ctx, `
		SELECT e.key, e.package_key, pr.id, p.normalized_version, p.hash,
		       e.user_key, e.timestamp, e.tried_count, e.last_error,
		       e.title, e.authors, e.copyright, e.description,
		       e.icon_url, e.license_url, e.project_url, e.release_notes,
		       e.requires_license_acceptance, e.summary, e.tags
		FROM package_edits e
		INNER JOIN packages p ON p.key = e.package_key
		INNER JOIN package_registrations pr ON pr.key = p.package_registration_key
	`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(rows.Close()))
	}()

	for rows.Next() {
		var edit editqueue.Edit
		var lastError sql.NullString
		var title, authors, copyright, description sql.NullString
		var iconURL, licenseURL, projectURL, releaseNotes sql.NullString
		var summary, tags sql.NullString
		var requiresLicense sql.NullBool

		err := rows.Scan(
			&edit.Key, &edit.PackageKey,
			&edit.PackageID, &edit.PackageVersion, &edit.PackageHash,
			&edit.UserKey, &edit.Timestamp, &edit.TriedCount, &lastError,
			&title, &authors, &copyright, &description,
			&iconURL, &licenseURL, &projectURL, &releaseNotes,
			&requiresLicense, &summary, &tags)
		if err != nil {
			return nil, Error.Wrap(err)
		}

		edit.LastError = lastError.String
		edit.Patch = editqueue.MetadataPatch{
			Title:                     optString(title),
			Authors:                   optString(authors),
			Copyright:                 optString(copyright),
			Description:               optString(description),
			IconURL:                   optString(iconURL),
			LicenseURL:                optString(licenseURL),
			ProjectURL:                optString(projectURL),
			ReleaseNotes:              optString(releaseNotes),
			RequiresLicenseAcceptance: optBool(requiresLicense),
			Summary:                   optString(summary),
			Tags:                      optString(tags),
		}
		edits = append(edits, edit)
	}
	return edits, Error.Wrap(rows.Err())
}

// RecordFailure increments the edit's retry counter and stores the
// full failure text. The row itself stays queued so the edit is
// retried on a later run; callers log and swallow errors from here so
// one broken update cannot halt the remaining edits.
func (db *DB) RecordFailure(ctx context.Context, edit editqueue.Edit, cause error) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.db.ExecContext(ctx, `
		UPDATE package_edits
		SET tried_count = tried_count + 1,
		    last_error = ?
		WHERE key = ?
	`, cause.Error(), edit.Key)
	return Error.Wrap(err)
}

func optString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func optBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}
