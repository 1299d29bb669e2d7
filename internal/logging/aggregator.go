package logging

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// streamKey identifies one metered stream: an event on one tab.
type streamKey struct {
	component string
	event     string
	tabID     string
}

type streamStats struct {
	events int64
	bytes  int64
	first  time.Time
	last   time.Time
}

// Aggregator meters per-tab stream events (keystrokes, output chunks, cwd
// lookups) and logs one stream_summary record per stream each interval
// instead of one record per event.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	streams map[streamKey]*streamStats

	started bool
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewAggregator returns a meter that flushes every intervalSecs seconds
// (30 when not positive). A nil logger drops summaries.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		streams:  make(map[streamKey]*streamStats),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start runs the flush loop until Stop.
func (a *Aggregator) Start() {
	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	go func() {
		defer close(a.stopped)
		t := time.NewTicker(a.interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				a.flush()
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop ends the flush loop and writes what is still pending. Calling it
// more than once, or without Start, is fine.
func (a *Aggregator) Stop() {
	a.once.Do(func() {
		close(a.stop)
		a.mu.Lock()
		started := a.started
		a.mu.Unlock()
		if started {
			<-a.stopped
		}
		a.flush()
	})
}

// Record counts one event of n bytes on tabID's stream. tabID may be empty
// for events that belong to no tab.
func (a *Aggregator) Record(component, event, tabID string, n int) {
	now := time.Now()
	key := streamKey{component: component, event: event, tabID: tabID}

	a.mu.Lock()
	st := a.streams[key]
	if st == nil {
		st = &streamStats{first: now}
		a.streams[key] = st
	}
	st.events++
	st.bytes += int64(n)
	st.last = now
	a.mu.Unlock()
}

// Pending reports how many streams have unflushed events.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.streams)
}

func (a *Aggregator) flush() {
	a.mu.Lock()
	streams := a.streams
	a.streams = make(map[streamKey]*streamStats, len(streams))
	a.mu.Unlock()

	if a.logger == nil || len(streams) == 0 {
		return
	}

	keys := make([]streamKey, 0, len(streams))
	for k := range streams {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].tabID != keys[j].tabID {
			return keys[i].tabID < keys[j].tabID
		}
		return keys[i].event < keys[j].event
	})

	for _, k := range keys {
		st := streams[k]
		attrs := []slog.Attr{
			slog.String("component", k.component),
			slog.String("event", k.event),
			slog.Int64("events", st.events),
		}
		if k.tabID != "" {
			attrs = append(attrs, slog.String("tab_id", k.tabID))
		}
		if st.bytes > 0 {
			attrs = append(attrs, slog.Int64("bytes", st.bytes))
			if span := st.last.Sub(st.first); span >= time.Second {
				attrs = append(attrs, slog.Float64("bytes_per_sec", float64(st.bytes)/span.Seconds()))
			}
		}
		a.logger.LogAttrs(context.Background(), slog.LevelInfo, "stream_summary", attrs...)
	}
}
