package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lkirch/sciencesage/rag/sources"
	"github.com/mudler/xlog"
)

// ExternalSource is a web page, sitemap or path re-ingested periodically.
type ExternalSource struct {
	URL            string
	Topics         []string
	UpdateInterval time.Duration
	LastUpdate     time.Time
}

// SourceManager keeps external sources fresh in the index.
type SourceManager struct {
	ingester *Ingester

	mu      sync.Mutex
	sources []ExternalSource
	running map[string]bool
}

func NewSourceManager(ingester *Ingester) *SourceManager {
	return &SourceManager{
		ingester: ingester,
		running:  map[string]bool{},
	}
}

// AddSource registers a source. It is ingested on the next tick.
func (sm *SourceManager) AddSource(url string, topics []string, updateInterval time.Duration) error {
	if url == "" {
		return fmt.Errorf("source URL must not be empty")
	}
	if updateInterval <= 0 {
		return fmt.Errorf("invalid update interval for %s: %s", url, updateInterval)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, s := range sm.sources {
		if s.URL == url {
			return fmt.Errorf("source %s already registered", url)
		}
	}
	sm.sources = append(sm.sources, ExternalSource{
		URL:            url,
		Topics:         topics,
		UpdateInterval: updateInterval,
	})
	return nil
}

func (sm *SourceManager) Sources() []ExternalSource {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return append([]ExternalSource{}, sm.sources...)
}

// UpdateDue ingests every source whose interval has elapsed and waits for them.
func (sm *SourceManager) UpdateDue(ctx context.Context) {
	sm.mu.Lock()
	due := []ExternalSource{}
	for _, s := range sm.sources {
		if !sm.running[s.URL] && time.Since(s.LastUpdate) >= s.UpdateInterval {
			sm.running[s.URL] = true
			due = append(due, s)
		}
	}
	sm.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range due {
		wg.Add(1)
		go func(s ExternalSource) {
			defer wg.Done()
			sm.updateSource(ctx, s)
		}(s)
	}
	wg.Wait()
}

func (sm *SourceManager) updateSource(ctx context.Context, source ExternalSource) {
	defer func() {
		sm.mu.Lock()
		delete(sm.running, source.URL)
		sm.mu.Unlock()
	}()

	xlog.Info("Updating source", "url", source.URL)
	docs, err := sources.SourceRouter(source.URL)
	if err != nil {
		xlog.Error("Error updating source", "url", source.URL, "error", err)
		return
	}

	stored, err := sm.ingester.IngestDocuments(ctx, docs, source.Topics)
	if err != nil {
		xlog.Error("Error storing source content", "url", source.URL, "error", err)
		return
	}

	sm.mu.Lock()
	for i := range sm.sources {
		if sm.sources[i].URL == source.URL {
			sm.sources[i].LastUpdate = time.Now()
		}
	}
	sm.mu.Unlock()

	xlog.Info("Source updated", "url", source.URL, "documents", len(docs), "passages", stored)
}

// Start checks the sources every tick until ctx is done.
func (sm *SourceManager) Start(ctx context.Context, tick time.Duration) {
	go func() {
		sm.UpdateDue(ctx)

		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sm.UpdateDue(ctx)
			}
		}
	}()
}
