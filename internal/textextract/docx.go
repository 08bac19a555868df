// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package textextract

import (
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// DOCXExtractor extracts text from a DOCX file.
type DOCXExtractor struct{}

func (DOCXExtractor) Supports(filePath string) bool {
	return strings.HasSuffix(strings.ToLower(filePath), ".docx")
}

func (DOCXExtractor) Extract(filePath string) (string, error) {
	doc, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX file: %w", err)
	}
	defer doc.Close()

	text := strings.TrimSpace(doc.Editable().GetContent())
	if text == "" {
		return "", fmt.Errorf("no text extracted from DOCX: %s", filePath)
	}
	return text, nil
}
