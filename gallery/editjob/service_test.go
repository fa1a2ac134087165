// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

package editjob_test

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"github.com/gonuget/gallery/gallery/editjob"
	"github.com/gonuget/gallery/gallery/editqueue"
	"github.com/gonuget/gallery/gallery/gallerydb"
	"github.com/gonuget/gallery/gallery/nupkg"
	"github.com/gonuget/gallery/gallery/packagestore"
)

const fooManifest = `<?xml version="1.0"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">
  <metadata>
    <id>Foo</id>
    <version>1.0.0</version>
    <title>Old</title>
    <authors>Old Author</authors>
    <description>A package.</description>
    <tags>a b</tags>
  </metadata>
</package>`

type fixture struct {
	db    *gallerydb.DB
	store *packagestore.Dir
	chore *editjob.Chore
}

func newFixture(ctx *testcontext.Context, t *testing.T) *fixture {
	t.Helper()

	log := zaptest.NewLogger(t)

	db, err := gallerydb.Open(ctx, log.Named("db"), ctx.File("gallery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	require.NoError(t, db.MigrateToLatest(ctx))

	store, err := packagestore.NewDir(ctx.Dir("storage"))
	require.NoError(t, err)

	chore := editjob.NewChore(log.Named("editjob"), db, store, editjob.Config{
		Interval: time.Minute,
	})
	t.Cleanup(func() { require.NoError(t, chore.Close()) })

	return &fixture{db: db, store: store, chore: chore}
}

func writeArchive(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()

	file, err := os.Create(path)
	require.NoError(t, err)

	writer := zip.NewWriter(file)
	for name, data := range entries {
		w, err := writer.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())
}

func readArchiveManifest(t *testing.T, path string) *nupkg.Manifest {
	t.Helper()

	reader, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, reader.Close()) }()

	for _, file := range reader.File {
		if file.Name == "Foo.nuspec" {
			rc, err := file.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())

			manifest, err := nupkg.ReadManifest(bytes.NewReader(data))
			require.NoError(t, err)
			return manifest
		}
	}
	t.Fatalf("no manifest entry in %q", path)
	return nil
}

func seedPackage(ctx *testcontext.Context, t *testing.T, fx *fixture) int64 {
	t.Helper()

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	packageKey, err := fx.db.TestingCreatePackage(ctx, gallerydb.Package{
		RegistrationID:    "Foo",
		NormalizedVersion: "1.0.0",
		Title:             "Old",
		FlattenedAuthors:  "Old Author",
		Description:       "A package.",
		Tags:              "a b",
		Hash:              "oldhash",
		HashAlgorithm:     "SHA512",
		PackageFileSize:   10,
		LastUpdated:       now,
		Published:         now,
	})
	require.NoError(t, err)
	return packageKey
}

func ptr[T any](v T) *T { return &v }

func TestRunOnceAppliesEdit(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	fx := newFixture(ctx, t)

	payload := []byte("MZ payload bytes")
	livePath := fx.store.PackagePath("Foo", "1.0.0")
	writeArchive(t, livePath, map[string][]byte{
		"Foo.nuspec":        []byte(fooManifest),
		"lib/net45/Foo.dll": payload,
	})

	packageKey := seedPackage(ctx, t, fx)

	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// an older edit that must be superseded, then the authoritative one
	_, err := fx.db.TestingQueueEdit(ctx, packageKey, 42, when, editqueue.MetadataPatch{
		Title: ptr("Stale"),
	})
	require.NoError(t, err)
	_, err = fx.db.TestingQueueEdit(ctx, packageKey, 42, when.Add(time.Hour), editqueue.MetadataPatch{
		Title:   ptr("New"),
		Tags:    ptr("x y"),
		Authors: ptr("Alice,Bob"),
	})
	require.NoError(t, err)

	require.NoError(t, fx.chore.RunOnce(ctx))

	// live archive reflects the latest edit only
	manifest := readArchiveManifest(t, livePath)
	require.Equal(t, "New", manifest.MetadataField("title"))
	require.Equal(t, "x y", manifest.MetadataField("tags"))
	require.Equal(t, "Alice,Bob", manifest.MetadataField("authors"))
	require.Equal(t, "Foo", manifest.ID())

	// catalog row updated, hash matches the archive on disk
	pkg, err := fx.db.TestingPackage(ctx, packageKey)
	require.NoError(t, err)
	require.Equal(t, "New", pkg.Title)
	require.Equal(t, "Alice,Bob", pkg.FlattenedAuthors)
	require.Equal(t, "SHA512", pkg.HashAlgorithm)

	digest, size, err := packagestore.ContentHash(ctx, livePath, packagestore.HashAlgorithm)
	require.NoError(t, err)
	require.Equal(t, digest, pkg.Hash)
	require.Equal(t, size, pkg.PackageFileSize)

	authors, err := fx.db.TestingAuthors(ctx, packageKey)
	require.NoError(t, err)
	require.Equal(t, []string{"Alice", "Bob"}, authors)

	// one history row capturing the pre-edit state
	histories, err := fx.db.TestingHistories(ctx, packageKey)
	require.NoError(t, err)
	require.Len(t, histories, 1)
	require.Equal(t, "Old", histories[0].Title)
	require.Equal(t, "oldhash", histories[0].Hash)

	// both queued edits are gone
	keys, err := fx.db.TestingQueuedEditKeys(ctx, packageKey)
	require.NoError(t, err)
	require.Empty(t, keys)

	// backup holds the pre-edit archive
	backup := readArchiveManifest(t, fx.store.BackupPath("Foo", "1.0.0"))
	require.Equal(t, "Old", backup.MetadataField("title"))

	// scratch space is gone
	entries, err := os.ReadDir(fx.store.TempDir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRunOnceMissingManifest(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	fx := newFixture(ctx, t)

	livePath := fx.store.PackagePath("Foo", "1.0.0")
	writeArchive(t, livePath, map[string][]byte{
		"lib/net45/Foo.dll": []byte("MZ payload bytes"),
	})
	before, err := os.ReadFile(livePath)
	require.NoError(t, err)

	packageKey := seedPackage(ctx, t, fx)
	editKey, err := fx.db.TestingQueueEdit(ctx, packageKey, 42, time.Now().UTC(), editqueue.MetadataPatch{
		Title: ptr("New"),
	})
	require.NoError(t, err)

	// the run completes; the failure is recorded on the edit row
	require.NoError(t, fx.chore.RunOnce(ctx))

	tried, lastError, err := fx.db.TestingEditState(ctx, editKey)
	require.NoError(t, err)
	require.Equal(t, 1, tried)
	require.NotEmpty(t, lastError)

	// no catalog change, no backup, live archive untouched
	pkg, err := fx.db.TestingPackage(ctx, packageKey)
	require.NoError(t, err)
	require.Equal(t, "Old", pkg.Title)
	require.Equal(t, "oldhash", pkg.Hash)

	histories, err := fx.db.TestingHistories(ctx, packageKey)
	require.NoError(t, err)
	require.Empty(t, histories)

	_, err = os.Stat(fx.store.BackupPath("Foo", "1.0.0"))
	require.True(t, os.IsNotExist(err))

	after, err := os.ReadFile(livePath)
	require.NoError(t, err)
	require.Equal(t, before, after)

	entries, err := os.ReadDir(fx.store.TempDir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRunOnceFailureDoesNotBlockOtherEdits(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	fx := newFixture(ctx, t)

	// Foo has no archive on disk at all, Bar is fine
	fooKey := seedPackage(ctx, t, fx)

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	barKey, err := fx.db.TestingCreatePackage(ctx, gallerydb.Package{
		RegistrationID:    "Bar",
		NormalizedVersion: "2.0.0",
		Title:             "Bar Old",
		FlattenedAuthors:  "Old Author",
		Hash:              "oldhash",
		HashAlgorithm:     "SHA512",
		PackageFileSize:   10,
		LastUpdated:       now,
		Published:         now,
	})
	require.NoError(t, err)

	writeArchive(t, fx.store.PackagePath("Bar", "2.0.0"), map[string][]byte{
		"Bar.nuspec": []byte(`<?xml version="1.0"?>
<package>
  <metadata>
    <id>Bar</id>
    <version>2.0.0</version>
    <title>Bar Old</title>
  </metadata>
</package>`),
	})

	fooEdit, err := fx.db.TestingQueueEdit(ctx, fooKey, 42, time.Now().UTC(), editqueue.MetadataPatch{
		Title: ptr("Foo New"),
	})
	require.NoError(t, err)
	_, err = fx.db.TestingQueueEdit(ctx, barKey, 42, time.Now().UTC(), editqueue.MetadataPatch{
		Title: ptr("Bar New"),
	})
	require.NoError(t, err)

	require.NoError(t, fx.chore.RunOnce(ctx))

	// Foo failed and stays queued
	tried, lastError, err := fx.db.TestingEditState(ctx, fooEdit)
	require.NoError(t, err)
	require.Equal(t, 1, tried)
	require.NotEmpty(t, lastError)

	// Bar applied
	bar, err := fx.db.TestingPackage(ctx, barKey)
	require.NoError(t, err)
	require.Equal(t, "Bar New", bar.Title)

	keys, err := fx.db.TestingQueuedEditKeys(ctx, barKey)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestRunOnceNoEdits(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	fx := newFixture(ctx, t)

	require.NoError(t, fx.chore.RunOnce(ctx))
}

func TestRunOnceRewriteIsIdempotent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	fx := newFixture(ctx, t)

	livePath := fx.store.PackagePath("Foo", "1.0.0")
	writeArchive(t, livePath, map[string][]byte{
		"Foo.nuspec": []byte(fooManifest),
	})
	packageKey := seedPackage(ctx, t, fx)

	patch := editqueue.MetadataPatch{Title: ptr("New")}
	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := fx.db.TestingQueueEdit(ctx, packageKey, 42, when, patch)
	require.NoError(t, err)
	require.NoError(t, fx.chore.RunOnce(ctx))
	first := readArchiveManifest(t, livePath)

	// the same edit queued again, as after a crash between replace and
	// commit, applies cleanly on top of the already-updated archive
	_, err = fx.db.TestingQueueEdit(ctx, packageKey, 42, when.Add(time.Hour), patch)
	require.NoError(t, err)
	require.NoError(t, fx.chore.RunOnce(ctx))
	second := readArchiveManifest(t, livePath)

	require.Equal(t, first.MetadataField("title"), second.MetadataField("title"))
	require.Equal(t, "New", second.MetadataField("title"))
}
