// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package textextract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(string) (string, error) { return f.text, f.err }
func (f fakeExtractor) Supports(string) bool            { return true }

func TestDispatcherRoutesByExtension(t *testing.T) {
	d := &Dispatcher{byExt: make(map[string]Extractor)}
	d.Register(".pdf", fakeExtractor{text: "pdf content"})
	d.Register(".docx", fakeExtractor{text: "docx content"})

	text, err := d.Extract("report.pdf")
	require.NoError(t, err)
	require.Equal(t, "pdf content", text)

	text, err = d.Extract("memo.docx")
	require.NoError(t, err)
	require.Equal(t, "docx content", text)
}

func TestDispatcherRejectsUnsupportedExtension(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Extract("spreadsheet.xlsx")
	require.Error(t, err)
}

func TestIsSupportedReflectsRegistrations(t *testing.T) {
	d := NewDispatcher()
	require.True(t, d.IsSupported("a.pdf"))
	require.True(t, d.IsSupported("a.docx"))
	require.False(t, d.IsSupported("a.xlsx"))
}

func TestIsTemporaryFileDetectsLockFiles(t *testing.T) {
	require.True(t, IsTemporaryFile("~$report.docx"))
	require.True(t, IsTemporaryFile("._report.docx"))
	require.True(t, IsTemporaryFile("report.tmp"))
	require.False(t, IsTemporaryFile("report.docx"))
}
