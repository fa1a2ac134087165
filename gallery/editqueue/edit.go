// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

// Package editqueue models queued package metadata edits.
package editqueue

import (
	"sort"
	"time"
)

// Edit is one queued request to change a package's descriptive
// metadata. Rows are created by the gallery frontend when a user edits
// a package; this engine consumes them.
type Edit struct {
	Key        int64
	PackageKey int64

	// denormalized from the owning package at fetch time
	PackageID      string
	PackageVersion string
	PackageHash    string

	UserKey    int64
	Timestamp  time.Time
	TriedCount int
	LastError  string

	Patch MetadataPatch
}

// Latest collapses queued edits to one per package: the member with
// the greatest timestamp wins, ties broken by the higher key. Older
// edits for the same package are dropped here and cleaned up from the
// queue when the winning edit commits.
func Latest(edits []Edit) []Edit {
	latest := make(map[int64]Edit, len(edits))
	for _, edit := range edits {
		best, ok := latest[edit.PackageKey]
		if !ok || edit.Timestamp.After(best.Timestamp) ||
			(edit.Timestamp.Equal(best.Timestamp) && edit.Key > best.Key) {
			latest[edit.PackageKey] = edit
		}
	}

	selected := make([]Edit, 0, len(latest))
	for _, edit := range latest {
		selected = append(selected, edit)
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].PackageKey < selected[j].PackageKey
	})
	return selected
}
