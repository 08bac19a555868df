// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// cmd/integration-test is a smoke test against a running ragvault-server:
// it registers a demo account, asks a question, and confirms the SSE
// stream from POST /api/v1/query/stream opens with a "status" event and
// ends with a "done" or "error" event; the events in between are printed
// but not checked. Rewritten
// from the teacher's cmd/integration-test, which dialed a drone
// gorilla/websocket connection and waited for an ALERT notification from
// a rule-analyst worker — neither of which exist anymore.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

var baseURL = "http://localhost:8080"

func init() {
	if v := os.Getenv("RAGVAULT_BASE_URL"); v != "" {
		baseURL = v
	}
}

func fail(step string, err error) {
	fmt.Printf("FAILED at %s: %v\n", step, err)
	os.Exit(1)
}

func registerAccount(client *http.Client) string {
	email := fmt.Sprintf("integration-test-%d@ragvault.local", time.Now().UnixNano())
	payload, _ := json.Marshal(map[string]string{"email": email, "password": "integration-test-password"})
	resp, err := client.Post(baseURL+"/api/v1/auth/register", "application/json", bytes.NewReader(payload))
	if err != nil {
		fail("register", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		fail("register", fmt.Errorf("status %d", resp.StatusCode))
	}
	var out struct{ Access string }
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fail("register: decode", err)
	}
	return out.Access
}

// streamQuery opens POST /query/stream and returns the ordered list of
// SSE event names up to and including the first "done" or "error".
func streamQuery(client *http.Client, accessToken, query string) []string {
	payload, _ := json.Marshal(map[string]string{"query": query})
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/query/stream", bytes.NewReader(payload))
	if err != nil {
		fail("query/stream: build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		fail("query/stream: do", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fail("query/stream", fmt.Errorf("status %d", resp.StatusCode))
	}

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
			if name == "done" || name == "error" {
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		fail("query/stream: read", err)
	}
	return events
}

func main() {
	fmt.Printf("running integration test against %s\n", baseURL)
	client := &http.Client{Timeout: 30 * time.Second}

	fmt.Println("step 1: registering a throwaway account")
	accessToken := registerAccount(client)
	fmt.Println("  ok")

	fmt.Println("step 2: streaming a query")
	events := streamQuery(client, accessToken, "What does the document say?")
	fmt.Printf("  received events: %v\n", events)

	if len(events) == 0 {
		fail("query/stream", fmt.Errorf("no events received"))
	}
	if events[0] != "status" {
		fail("query/stream", fmt.Errorf("expected first event \"status\", got %q", events[0]))
	}
	terminal := events[len(events)-1]
	if terminal != "done" && terminal != "error" {
		fail("query/stream", fmt.Errorf("stream ended without a terminal event, last was %q", terminal))
	}

	fmt.Println("\nintegration test PASSED")
}
