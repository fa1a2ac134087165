// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

// Package nupkg reads and rewrites package archives and their
// embedded manifests.
package nupkg

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

const (
	// PackageExtension is the archive extension for published packages.
	PackageExtension = ".nupkg"
	// ManifestExtension is the extension of the manifest entry at the
	// archive root.
	ManifestExtension = ".nuspec"
)

var (
	// ErrManifestMissing means the archive has no root-level manifest entry.
	ErrManifestMissing = errs.Class("package has no manifest")
	// ErrManifestAmbiguous means the archive has more than one root-level
	// manifest entry.
	ErrManifestAmbiguous = errs.Class("package has multiple manifests")
)

// isManifestEntry reports whether an archive entry name denotes a
// root-level manifest: it ends in the manifest extension and contains
// no path separator.
func isManifestEntry(name string) bool {
	return !strings.Contains(name, "/") &&
		strings.HasSuffix(strings.ToLower(name), ManifestExtension)
}

// RewriteManifest rewrites the single root-level manifest entry of the
// archive at path, applying mutate to the parsed manifest. Every other
// entry is copied raw, so the package payload stays byte-identical.
// On any error the file at path is left unmodified.
func RewriteManifest(ctx context.Context, path string, mutate func(*Manifest) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	reader, err := zip.OpenReader(path)
	if err != nil {
		return Error.Wrap(err)
	}
	reader.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	var manifests []*zip.File
	for _, file := range reader.File {
		if isManifestEntry(file.Name) {
			manifests = append(manifests, file)
		}
	}
	switch {
	case len(manifests) == 0:
		return errs.Combine(ErrManifestMissing.New("%s", filepath.Base(path)), reader.Close())
	case len(manifests) > 1:
		return errs.Combine(
			ErrManifestAmbiguous.New("%s has %d manifest entries", filepath.Base(path), len(manifests)),
			reader.Close())
	}
	entry := manifests[0]

	manifest, err := readManifestEntry(entry)
	if err != nil {
		return errs.Combine(err, reader.Close())
	}
	if err := mutate(manifest); err != nil {
		return errs.Combine(Error.Wrap(err), reader.Close())
	}
	rewritten, err := manifest.Bytes()
	if err != nil {
		return errs.Combine(err, reader.Close())
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".rewrite-*")
	if err != nil {
		return errs.Combine(Error.Wrap(err), reader.Close())
	}
	err = writeArchive(tmp, reader, entry, rewritten)
	if err != nil {
		return errs.Combine(err, tmp.Close(), os.Remove(tmp.Name()), reader.Close())
	}
	if err := tmp.Close(); err != nil {
		return errs.Combine(Error.Wrap(err), os.Remove(tmp.Name()), reader.Close())
	}
	if err := reader.Close(); err != nil {
		return errs.Combine(Error.Wrap(err), os.Remove(tmp.Name()))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errs.Combine(Error.Wrap(err), os.Remove(tmp.Name()))
	}
	return nil
}

func writeArchive(dst io.Writer, reader *zip.ReadCloser, manifest *zip.File, rewritten []byte) error {
	writer := zip.NewWriter(dst)
	writer.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	for _, file := range reader.File {
		if file == manifest {
			entry, err := writer.CreateHeader(&zip.FileHeader{
				Name:     file.Name,
				Method:   file.Method,
				Modified: file.Modified,
			})
			if err != nil {
				return Error.Wrap(err)
			}
			if _, err := entry.Write(rewritten); err != nil {
				return Error.Wrap(err)
			}
			continue
		}
		if err := writer.Copy(file); err != nil {
			return Error.Wrap(err)
		}
	}
	return Error.Wrap(writer.Close())
}

func readManifestEntry(entry *zip.File) (manifest *Manifest, err error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(rc.Close()))
	}()
	return ReadManifest(rc)
}
