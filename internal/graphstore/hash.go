// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package graphstore

import "hash/fnv"

func hashKey(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
