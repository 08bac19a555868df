// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package reaper implements spec.md §4.8: a cron-scheduled sweep that
// deletes anonymous-tenant records past their TTL across the graph,
// vector, and memory stores. Grounded on the teacher's
// internal/drone/heartbeat/monitor.go ticker-loop shape, generalized from
// a fixed interval to a cron(5) schedule since the spec calls for "daily
// at 03:00 local, configurable" rather than a fixed-period tick.
package reaper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/logger"
	"github.com/northbound/ragvault/internal/memorystore"
	"github.com/northbound/ragvault/internal/vectorstore"
)

// DefaultSchedule is "daily at 03:00 local", per spec.md §4.8.
const DefaultSchedule = "0 3 * * *"

const memoryPageLimit = 200

// Reaper deletes anonymous records whose TTL has elapsed, across all
// three stores, on a cron schedule.
type Reaper struct {
	graph    graphstore.Store
	vector   vectorstore.Store
	memory   *memorystore.Store
	ttl      time.Duration
	schedule string
	log      *logger.Logger
	cron     *cron.Cron
}

func New(graph graphstore.Store, vector vectorstore.Store, memory *memorystore.Store, ttl time.Duration, schedule string, log *logger.Logger) *Reaper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Reaper{graph: graph, vector: vector, memory: memory, ttl: ttl, schedule: schedule, log: log}
}

// Start schedules the sweep and returns immediately; the cron library
// runs sweeps on its own goroutine.
func (r *Reaper) Start() error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.schedule, r.sweep)
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule, blocking until any in-flight sweep finishes.
func (r *Reaper) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-r.ttl)

	if n, err := r.graph.ReapExpired(ctx, identity.AnonPrefix, cutoff); err != nil {
		r.warn("graph reap failed: %v", err)
	} else if n > 0 && r.log != nil {
		r.log.Debugf("reaper: deleted %d expired documents", n)
	}

	if n, err := r.reapVectors(ctx, cutoff); err != nil {
		r.warn("vector reap failed: %v", err)
	} else if n > 0 && r.log != nil {
		r.log.Debugf("reaper: deleted %d expired vector points", n)
	}

	if n, err := r.reapMemories(ctx, cutoff); err != nil {
		r.warn("memory reap failed: %v", err)
	} else if n > 0 && r.log != nil {
		r.log.Debugf("reaper: deleted %d expired memory entries", n)
	}
}

// reapVectors scrolls the documents collection restricted by the
// anonymous tenant prefix and the expiry cutoff, then deletes every
// matched point.
func (r *Reaper) reapVectors(ctx context.Context, cutoff time.Time) (int, error) {
	count := 0
	offset := ""
	for {
		matches, next, err := r.vector.Scroll(ctx, vectorstore.CollectionDocuments, vectorstore.Filter{
			TenantKeyPrefix: identity.AnonPrefix,
			CreatedBefore:   cutoff,
		}, memoryPageLimit, offset)
		if err != nil {
			return count, err
		}
		for _, m := range matches {
			if err := r.vector.Delete(ctx, vectorstore.CollectionDocuments, m.ID); err != nil {
				return count, err
			}
			count++
		}
		if next == "" {
			break
		}
		offset = next
	}
	return count, nil
}

// reapMemories iterates every anonymous-prefixed tenant key the memory
// collection currently holds and deletes entries past cutoff, chunked by
// memoryPageLimit per spec.md §4.8.
func (r *Reaper) reapMemories(ctx context.Context, cutoff time.Time) (int, error) {
	count := 0
	offset := ""
	for {
		matches, next, err := r.vector.Scroll(ctx, vectorstore.CollectionMemory, vectorstore.Filter{
			TenantKeyPrefix: identity.AnonPrefix,
			CreatedBefore:   cutoff,
		}, memoryPageLimit, offset)
		if err != nil {
			return count, err
		}
		for _, m := range matches {
			if err := r.memory.Delete(ctx, m.TenantKey, m.ID); err != nil {
				return count, err
			}
			count++
		}
		if next == "" {
			break
		}
		offset = next
	}
	return count, nil
}

func (r *Reaper) warn(format string, args ...any) {
	if r.log != nil {
		r.log.Warnf("reaper: "+format, args...)
	}
}
