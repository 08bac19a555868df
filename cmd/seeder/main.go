// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// cmd/seeder populates a running ragvault-server with demo data over its
// HTTP API. Rewritten from the teacher's cmd/seeder, which wrote Markdown
// files straight to a local directory for the drone file-watcher to pick
// up — that pipeline no longer exists, so this version registers a demo
// account and drives the real ingest path instead: POST
// /api/v1/auth/register then POST /api/v1/documents/upload, the same two
// calls any client of the server would make.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

var (
	baseURL = flag.String("base-url", "http://localhost:8080", "ragvault-server base URL")
	email   = flag.String("email", "demo@ragvault.local", "demo account email to register")
)

// demoPDFs embeds small, syntactically valid single-page PDFs carrying a
// distinct searchable phrase each, standing in for the teacher's
// downloaded dummy.pdf — /api/v1/documents/upload only accepts pdf/docx,
// so the Markdown bodies the teacher wrote can't be reused verbatim.
var demoPDFs = []struct {
	filename string
	phrase   string
}{
	{filename: "project_alpha.pdf", phrase: "Project Alpha confidential report"},
	{filename: "beta_analysis.pdf", phrase: "Beta analysis quarterly results"},
	{filename: "gamma_protocol.pdf", phrase: "Gamma protocol implementation guide"},
}

// minimalPDF builds the smallest PDF a parser will accept that still
// contains a visible, extractable text string.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 18 Tf 36 720 Td (%s) Tj ET", text)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-1.4\n")
	offsets := make([]int, 0, 5)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}
	obj("1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n")
	obj("2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n")
	obj("3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 612 792]/Resources<</Font<</F1 4 0 R>>>>/Contents 5 0 R>>endobj\n")
	obj("4 0 obj<</Type/Font/Subtype/Type1/BaseFont/Helvetica>>endobj\n")
	obj(fmt.Sprintf("5 0 obj<</Length %d>>stream\n%s\nendstream endobj\n", len(content), content))
	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer<</Size %d/Root 1 0 R>>\nstartxref\n%d\n%%%%EOF", len(offsets)+1, xrefStart)
	return buf.Bytes()
}

func registerDemoAccount(client *http.Client) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"email":    *email,
		"password": "ragvault-demo-password",
	})
	resp, err := client.Post(*baseURL+"/api/v1/auth/register", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		loginPayload, _ := json.Marshal(map[string]string{"email": *email, "password": "ragvault-demo-password"})
		loginResp, err := client.Post(*baseURL+"/api/v1/auth/login", "application/json", bytes.NewReader(loginPayload))
		if err != nil {
			return "", fmt.Errorf("login fallback: %w", err)
		}
		defer loginResp.Body.Close()
		var out struct{ Access string }
		if err := json.NewDecoder(loginResp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode login response: %w", err)
		}
		return out.Access, nil
	}
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("register returned %d: %s", resp.StatusCode, body)
	}
	var out struct{ Access string }
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode register response: %w", err)
	}
	return out.Access, nil
}

func uploadDocument(client *http.Client, accessToken, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, *baseURL+"/api/v1/documents/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload returned %d: %s", resp.StatusCode, respBody)
	}
	var out struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.DocumentID, nil
}

func main() {
	flag.Parse()
	client := &http.Client{Timeout: 30 * time.Second}

	fmt.Printf("seeding %s as %s\n", *baseURL, *email)

	accessToken, err := registerDemoAccount(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to obtain demo account token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("account ready")

	for _, doc := range demoPDFs {
		docID, err := uploadDocument(client, accessToken, doc.filename, minimalPDF(doc.phrase))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to upload %s: %v\n", doc.filename, err)
			continue
		}
		fmt.Printf("uploaded %s as document %s (phrase: %q)\n", doc.filename, docID, doc.phrase)
	}

	fmt.Println("seeding complete")
}
