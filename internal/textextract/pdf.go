// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package textextract

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// PDFExtractor extracts text from a PDF file using go-fitz (MuPDF).
type PDFExtractor struct{}

func (PDFExtractor) Supports(filePath string) bool {
	return strings.HasSuffix(strings.ToLower(filePath), ".pdf")
}

func (PDFExtractor) Extract(filePath string) (string, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	numPages := doc.NumPage()
	for i := 0; i < numPages; i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			continue
		}
		sb.WriteString(pageText)
		if i < numPages-1 {
			sb.WriteString("\n\n")
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted from PDF: %s", filePath)
	}
	return text, nil
}
