// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package textextract is the TextExtractor external collaborator named
// in spec.md §1: PDF/DOCX byte-level parsing quality is out of scope,
// but the seam is still a real component other modules depend on.
// Adapted from the teacher's internal/parser package, trimmed to the
// two file types the spec names (xlsx/html/eml and their libraries are
// dropped, see DESIGN.md).
package textextract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/northbound/ragvault/internal/apperror"
)

// Extractor produces markdown-ish plain text from a document's bytes on
// disk. Implementations never see tenant context; the ingestor owns that.
type Extractor interface {
	Extract(filePath string) (string, error)
	Supports(filePath string) bool
}

// Dispatcher routes a file to the extractor registered for its extension.
type Dispatcher struct {
	byExt map[string]Extractor
}

// NewDispatcher wires the pdf and docx extractors; this is the only
// constructor most callers need.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{byExt: make(map[string]Extractor)}
	d.Register(".pdf", PDFExtractor{})
	d.Register(".docx", DOCXExtractor{})
	return d
}

// Register adds or overrides the extractor for an extension (including
// the leading dot), letting tests substitute a fake implementation.
func (d *Dispatcher) Register(ext string, e Extractor) {
	d.byExt[strings.ToLower(ext)] = e
}

func (d *Dispatcher) IsSupported(filePath string) bool {
	_, ok := d.byExt[strings.ToLower(filepath.Ext(filePath))]
	return ok
}

// Extract routes filePath to its registered extractor, or fails with a
// Validation error for any other extension.
func (d *Dispatcher) Extract(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	e, ok := d.byExt[ext]
	if !ok {
		return "", apperror.New(apperror.Validation, fmt.Sprintf("unsupported file type: %s", ext))
	}
	text, err := e.Extract(filePath)
	if err != nil {
		return "", apperror.Wrap(apperror.DependencyFailed, "text extraction failed", err)
	}
	return text, nil
}

// IsTemporaryFile reports whether a path looks like an editor/OS lock
// file rather than real document content (e.g. "~$report.docx").
func IsTemporaryFile(filePath string) bool {
	base := filepath.Base(filePath)
	return strings.HasPrefix(base, "~$") || strings.HasPrefix(base, "._") || strings.HasSuffix(base, ".tmp")
}
