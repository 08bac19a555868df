// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package memorystore

import (
	"context"
	"time"

	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/logger"
)

// OrphanSweeper periodically deletes Entity rows left behind once their
// last appears_in/memory_appears_in edge is gone. Ticker + stop channel,
// grounded on ingestor.TaskTracker's sweep loop (itself grounded on the
// teacher's drone/heartbeat/monitor.go). Bounded to one page per tick so a
// large backlog never holds a database lock for long.
type OrphanSweeper struct {
	graph    graphstore.Store
	interval time.Duration
	pageSize int
	log      *logger.Logger
	ticker   *time.Ticker
	stop     chan struct{}
}

// NewOrphanSweeper constructs a sweeper. interval defaults to 10 minutes
// and pageSize to 200 when zero.
func NewOrphanSweeper(graph graphstore.Store, interval time.Duration, pageSize int, log *logger.Logger) *OrphanSweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if pageSize <= 0 {
		pageSize = 200
	}
	return &OrphanSweeper{graph: graph, interval: interval, pageSize: pageSize, log: log, stop: make(chan struct{})}
}

// Start begins the background sweep. Safe to call once per sweeper.
func (o *OrphanSweeper) Start() {
	o.ticker = time.NewTicker(o.interval)
	go o.loop()
}

func (o *OrphanSweeper) loop() {
	for {
		select {
		case <-o.stop:
			return
		case <-o.ticker.C:
			o.sweep()
		}
	}
}

func (o *OrphanSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := o.graph.DeleteOrphanedEntities(ctx, o.pageSize)
	if err != nil {
		if o.log != nil {
			o.log.Warnf("memorystore: orphan sweep failed: %v", err)
		}
		return
	}
	if n > 0 && o.log != nil {
		o.log.Debugf("memorystore: orphan sweep removed %d entities", n)
	}
}

// Stop halts the background sweep.
func (o *OrphanSweeper) Stop() {
	if o.ticker != nil {
		o.ticker.Stop()
	}
	close(o.stop)
}
