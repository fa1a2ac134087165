// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

// Package editjob applies queued metadata edits to published package
// archives and reconciles the gallery catalog so that search and
// listings reflect the new metadata.
package editjob

import (
	"context"
	"os"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"

	"github.com/gonuget/gallery/gallery/editqueue"
	"github.com/gonuget/gallery/gallery/gallerydb"
	"github.com/gonuget/gallery/gallery/packagestore"
)

var (
	mon = monkit.Package()

	// Error is the default editjob error class.
	Error = errs.Class("editjob")
)

// Config defines parameters for the edit application chore.
type Config struct {
	Interval time.Duration // how frequently queued edits are applied
}

// Chore applies queued package metadata edits.
//
// architecture: Chore
type Chore struct {
	log   *zap.Logger
	db    *gallerydb.DB
	store *packagestore.Dir

	Loop *sync2.Cycle
}

// NewChore instantiates the chore.
func NewChore(log *zap.Logger, db *gallerydb.DB, store *packagestore.Dir, config Config) *Chore {
	return &Chore{
		log:   log,
		db:    db,
		store: store,
		Loop:  sync2.NewCycle(config.Interval),
	}
}

// Run runs the chore until ctx is canceled. A failed run is logged and
// retried on the next cycle.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return chore.Loop.Run(ctx, func(ctx context.Context) error {
		if err := chore.RunOnce(ctx); err != nil {
			chore.log.Error("edit application run failed", zap.Error(err))
		}
		return nil
	})
}

// Close stops the chore.
func (chore *Chore) Close() error {
	chore.Loop.Close()
	return nil
}

// RunOnce applies every queued edit once. An error on the initial
// fetch aborts the run; a failure on an individual edit is recorded on
// its row and does not stop the remaining edits.
func (chore *Chore) RunOnce(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	edits, err := chore.db.QueuedEdits(ctx)
	if err != nil {
		return Error.Wrap(err)
	}
	chore.log.Info("fetched queued edits", zap.Int("count", len(edits)))
	if len(edits) == 0 {
		return nil
	}

	edits = editqueue.Latest(edits)

	runDir, err := chore.store.NewRunDir()
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		// scratch space is disposable on every exit path
		if removeErr := os.RemoveAll(runDir); removeErr != nil {
			chore.log.Warn("unable to remove temp directory",
				zap.String("path", runDir), zap.Error(removeErr))
		}
	}()

	var applied, failed int64
	for _, edit := range edits {
		if err := chore.applyEdit(ctx, runDir, edit); err != nil {
			failed++
			chore.log.Error("failed to apply edit",
				zap.Int64("edit", edit.Key),
				zap.String("package id", edit.PackageID),
				zap.String("package version", edit.PackageVersion),
				zap.Error(err))
			if recordErr := chore.db.RecordFailure(ctx, edit, err); recordErr != nil {
				// losing one retry-count update is acceptable; halting
				// the remaining edits is not
				chore.log.Warn("unable to record edit failure",
					zap.Int64("edit", edit.Key), zap.Error(recordErr))
			}
			continue
		}
		applied++
	}
	mon.Meter("edits_applied").Mark64(applied)
	mon.Meter("edits_failed").Mark64(failed)
	chore.log.Info("edit application finished",
		zap.Int64("applied", applied), zap.Int64("failed", failed))
	return nil
}
