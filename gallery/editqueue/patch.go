// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

package editqueue

import (
	"strconv"

	"github.com/gonuget/gallery/gallery/nupkg"
)

// MetadataPatch holds the new values carried by an edit, one optional
// field per editable attribute. A nil field leaves the corresponding
// manifest and catalog value unchanged; a non-nil field overwrites it,
// even when empty.
type MetadataPatch struct {
	Title                     *string
	Authors                   *string
	Copyright                 *string
	Description               *string
	IconURL                   *string
	LicenseURL                *string
	ProjectURL                *string
	ReleaseNotes              *string
	RequiresLicenseAcceptance *bool
	Summary                   *string
	Tags                      *string
}

// ApplyTo merges the patch into the manifest's metadata section. Only
// the fields set on the patch are touched; id, version, dependencies
// and every other manifest element stay as they are.
func (patch MetadataPatch) ApplyTo(manifest *nupkg.Manifest) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"title", patch.Title},
		{"authors", patch.Authors},
		{"copyright", patch.Copyright},
		{"description", patch.Description},
		{"iconUrl", patch.IconURL},
		{"licenseUrl", patch.LicenseURL},
		{"projectUrl", patch.ProjectURL},
		{"releaseNotes", patch.ReleaseNotes},
		{"summary", patch.Summary},
		{"tags", patch.Tags},
	}
	for _, field := range fields {
		if field.value == nil {
			continue
		}
		if err := manifest.SetMetadataField(field.name, *field.value); err != nil {
			return err
		}
	}
	if patch.RequiresLicenseAcceptance != nil {
		err := manifest.SetMetadataField("requireLicenseAcceptance",
			strconv.FormatBool(*patch.RequiresLicenseAcceptance))
		if err != nil {
			return err
		}
	}
	return nil
}
