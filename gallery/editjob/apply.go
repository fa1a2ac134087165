// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

package editjob

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/gonuget/gallery/gallery/editqueue"
	"github.com/gonuget/gallery/gallery/nupkg"
	"github.com/gonuget/gallery/gallery/packagestore"
)

// applyEdit carries one edit through the whole sequence: copy the live
// archive into scratch space, rewrite its manifest, swap the rewritten
// archive into the live location keeping a backup, recompute hash and
// size, and commit the catalog transaction. Until the swap the live
// archive is never touched; after the swap the commit is safe to
// retry because reapplying the same field values is idempotent.
func (chore *Chore) applyEdit(ctx context.Context, runDir string, edit editqueue.Edit) (err error) {
	defer mon.Task()(&ctx)(&err)

	livePath := chore.store.PackagePath(edit.PackageID, edit.PackageVersion)
	backupPath := chore.store.BackupPath(edit.PackageID, edit.PackageVersion)

	editDir := filepath.Join(runDir, edit.PackageID, edit.PackageVersion)
	if err := os.MkdirAll(editDir, 0o755); err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if removeErr := os.RemoveAll(editDir); removeErr != nil {
			chore.log.Warn("unable to remove edit temp directory",
				zap.String("path", editDir), zap.Error(removeErr))
		}
	}()

	workingCopy := filepath.Join(editDir, packagestore.FileName(edit.PackageID, edit.PackageVersion))
	if err := packagestore.CopyFile(workingCopy, livePath); err != nil {
		return Error.Wrap(err)
	}

	chore.log.Info("rewriting package archive",
		zap.String("package id", edit.PackageID),
		zap.String("package version", edit.PackageVersion))
	if err := nupkg.RewriteManifest(ctx, workingCopy, edit.Patch.ApplyTo); err != nil {
		return err
	}

	chore.log.Info("replacing live package archive",
		zap.String("path", livePath),
		zap.String("backup", backupPath))
	if err := chore.store.Replace(ctx, workingCopy, livePath, backupPath); err != nil {
		return err
	}

	digest, size, err := packagestore.ContentHash(ctx, livePath, packagestore.HashAlgorithm)
	if err != nil {
		return err
	}

	if err := chore.db.ApplyEdit(ctx, edit, digest, packagestore.HashAlgorithm, size, time.Now().UTC()); err != nil {
		return err
	}
	chore.log.Info("updated package record",
		zap.String("package id", edit.PackageID),
		zap.String("package version", edit.PackageVersion),
		zap.Int64("size", size))
	return nil
}
