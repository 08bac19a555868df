// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorstore

import (
	"errors"
	"time"
)

var (
	errNoTenant = errors.New("vectorstore: search requires at least one tenant key")
	errNotFound = errors.New("vectorstore: point not found")
)

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
