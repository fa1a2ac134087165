// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

package nupkg

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/zeebo/errs"
)

// Error is the default nupkg error class.
var Error = errs.Class("nupkg")

const xmlDeclaration = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// element is a minimal XML node. The manifest is kept as a generic
// tree rather than a typed struct so that fields the engine does not
// know about (dependencies, framework assemblies, future additions)
// survive a rewrite untouched.
type element struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*element
	text     string
}

// Manifest is a parsed package manifest (.nuspec). Parsing is
// deliberately lenient: no schema validation happens here, since an
// edit must not be blocked by unrelated metadata drift in a published
// package.
type Manifest struct {
	root *element
}

// ReadManifest parses a manifest document.
func ReadManifest(r io.Reader) (*Manifest, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, Error.New("manifest has no root element: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			root, err := parseElement(dec, start)
			if err != nil {
				return nil, Error.Wrap(err)
			}
			return &Manifest{root: root}, nil
		}
	}
}

func parseElement(dec *xml.Decoder, start xml.StartElement) (*element, error) {
	el := &element{
		name:  start.Name,
		attrs: append([]xml.Attr(nil), start.Attr...),
	}
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(dec, tok)
			if err != nil {
				return nil, err
			}
			el.children = append(el.children, child)
		case xml.CharData:
			text.Write(tok)
		case xml.EndElement:
			// container elements carry only whitespace between children
			if len(el.children) == 0 {
				el.text = text.String()
			}
			return el, nil
		}
	}
}

// Write serializes the manifest. Serialization is deterministic:
// writing the same manifest twice yields identical bytes.
func (manifest *Manifest) Write(w io.Writer) error {
	if _, err := io.WriteString(w, xmlDeclaration); err != nil {
		return Error.Wrap(err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := manifest.root.encode(enc); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(enc.Flush())
}

// Bytes returns the serialized manifest.
func (manifest *Manifest) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := manifest.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (el *element) encode(enc *xml.Encoder) error {
	start := xml.StartElement{Name: xml.Name{Local: el.name.Local}}
	for _, attr := range el.attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: attrName(attr.Name), Value: attr.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if len(el.children) == 0 && el.text != "" {
		if err := enc.EncodeToken(xml.CharData(el.text)); err != nil {
			return err
		}
	}
	for _, child := range el.children {
		if err := child.encode(enc); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

// attrName undoes the decoder's namespace resolution so that the
// document's original attribute spelling is written back out.
func attrName(name xml.Name) xml.Name {
	if name.Space == "xmlns" {
		return xml.Name{Local: "xmlns:" + name.Local}
	}
	return xml.Name{Local: name.Local}
}

func (manifest *Manifest) metadata() *element {
	for _, child := range manifest.root.children {
		if child.name.Local == "metadata" {
			return child
		}
	}
	return nil
}

// MetadataField returns the text of the named metadata child, or the
// empty string if the element is absent.
func (manifest *Manifest) MetadataField(name string) string {
	meta := manifest.metadata()
	if meta == nil {
		return ""
	}
	for _, child := range meta.children {
		if child.name.Local == name {
			return child.text
		}
	}
	return ""
}

// SetMetadataField overwrites the named metadata child with the given
// text, appending the element if the manifest does not have it yet.
func (manifest *Manifest) SetMetadataField(name, value string) error {
	meta := manifest.metadata()
	if meta == nil {
		return Error.New("manifest has no metadata element")
	}
	for _, child := range meta.children {
		if child.name.Local == name {
			child.text = value
			child.children = nil
			return nil
		}
	}
	meta.children = append(meta.children, &element{
		name: xml.Name{Local: name},
		text: value,
	})
	return nil
}

// ID returns the package id declared by the manifest.
func (manifest *Manifest) ID() string { return manifest.MetadataField("id") }

// Version returns the package version declared by the manifest.
func (manifest *Manifest) Version() string { return manifest.MetadataField("version") }
