// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llmprovider

import (
	"regexp"
	"strconv"
)

var ratingPattern = regexp.MustCompile(`\d+`)

// parseRating extracts the first integer found in a rating response and
// clamps it to [0,100], defaulting to 0 when nothing parses. Mirrors the
// teacher's tolerant "contains YES/NO" normalization in question.go.
func parseRating(s string) float64 {
	match := ratingPattern.FindString(s)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return float64(n) / 100.0
}
