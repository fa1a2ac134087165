// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

// Package packagestore manages the gallery's on-disk package archives:
// the live packages directory, the backups of replaced archives, and
// the disposable scratch space used while rewriting.
package packagestore

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/gonuget/gallery/gallery/nupkg"
)

var (
	mon = monkit.Package()

	// Error is the default packagestore error class.
	Error = errs.Class("packagestore")
	// ErrReplace means the atomic live-archive swap could not complete;
	// the live archive is guaranteed untouched.
	ErrReplace = errs.Class("replace failed")
	// ErrHashAlgorithm means the requested digest is not available.
	ErrHashAlgorithm = errs.Class("hash algorithm unavailable")
)

const (
	packagesFolder = "packages"
	backupsFolder  = "package-backups"
	tempFolder     = "packages-temp"
)

// HashAlgorithm identifies the digest recorded alongside package
// hashes in the catalog.
const HashAlgorithm = "SHA512"

// Dir is the gallery file-storage root. All three subdirectories live
// on the same volume, which Replace depends on.
type Dir struct {
	root string
}

// NewDir opens the file-storage root, creating the layout if absent.
func NewDir(root string) (*Dir, error) {
	dir := &Dir{root: root}
	for _, sub := range []string{dir.PackagesDir(), dir.BackupsDir(), dir.TempDir()} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, Error.Wrap(err)
		}
	}
	return dir, nil
}

// PackagesDir returns the directory holding live archives.
func (dir *Dir) PackagesDir() string { return filepath.Join(dir.root, packagesFolder) }

// BackupsDir returns the directory holding pre-edit archives.
func (dir *Dir) BackupsDir() string { return filepath.Join(dir.root, backupsFolder) }

// TempDir returns the scratch directory root.
func (dir *Dir) TempDir() string { return filepath.Join(dir.root, tempFolder) }

// FileName returns the canonical archive name for a package version,
// lowercased.
func FileName(id, version string) string {
	return strings.ToLower(id + "." + version + nupkg.PackageExtension)
}

// PackagePath returns the live archive path for a package version.
func (dir *Dir) PackagePath(id, version string) string {
	return filepath.Join(dir.PackagesDir(), FileName(id, version))
}

// BackupPath returns the backup archive path for a package version.
func (dir *Dir) BackupPath(id, version string) string {
	return filepath.Join(dir.BackupsDir(), FileName(id, version))
}

// NewRunDir creates a uniquely named scratch directory for one engine
// run. Callers remove it when the run finishes, whatever the outcome.
func (dir *Dir) NewRunDir() (string, error) {
	run := filepath.Join(dir.TempDir(), uuid.NewString())
	if err := os.MkdirAll(run, 0o755); err != nil {
		return "", Error.Wrap(err)
	}
	return run, nil
}

// CopyFile copies src to dst, truncating dst if it already exists.
func CopyFile(dst, src string) (err error) {
	source, err := os.Open(src)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(source.Close()))
	}()

	target, err := os.Create(dst)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(target.Close()))
	}()

	_, err = io.Copy(target, source)
	return Error.Wrap(err)
}

// Replace swaps workingCopy into live's position, preserving the
// previous live content at backup. The backup is a hardlink to the
// live inode taken before the swap and the swap itself is a single
// rename, so a failure at any point leaves the live archive exactly
// as it was.
func (dir *Dir) Replace(ctx context.Context, workingCopy, live, backup string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
		return ErrReplace.Wrap(err)
	}
	if err := os.Link(live, backup); err != nil {
		return ErrReplace.Wrap(err)
	}
	if err := os.Rename(workingCopy, live); err != nil {
		return ErrReplace.Wrap(err)
	}
	return nil
}

// ContentHash reads the file at path fully and returns its digest,
// base64-encoded, along with its byte length.
func ContentHash(ctx context.Context, path, algorithm string) (digest string, size int64, err error) {
	defer mon.Task()(&ctx)(&err)

	hasher, err := newHasher(algorithm)
	if err != nil {
		return "", 0, err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", 0, Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(file.Close()))
	}()

	size, err = io.Copy(hasher, file)
	if err != nil {
		return "", 0, Error.Wrap(err)
	}
	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), size, nil
}

func newHasher(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case HashAlgorithm:
		return sha512.New(), nil
	default:
		return nil, ErrHashAlgorithm.New("%q", algorithm)
	}
}
