package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships error digests, typically to a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // digest window, default 30s
	CountThreshold int           // distinct errors that force an early flush, 0 = window only
	Topic          string
	Publisher      Publisher
}

// DigestEntry is one distinct error line seen during a window.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// Digest is the payload published once per window.
type Digest struct {
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	Entries     []DigestEntry `json:"entries"`
}

// LogCollector folds repeated error lines into counted digest entries
// and publishes them per window instead of once per line.
type LogCollector struct {
	cfg CollectionConfig

	mu      sync.Mutex
	entries map[uint64]*DigestEntry
	start   time.Time

	flushCh chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		entries: make(map[uint64]*DigestEntry),
		start:   time.Now(),
		flushCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}

	c.wg.Add(1)
	go c.loop()
	return c
}

// AddLog records one occurrence. Lines that differ only in time are merged.
func (c *LogCollector) AddLog(level, component, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := digestKey(level, component, message, caller, fields)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &DigestEntry{
			Level:     level,
			Component: component,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	full := c.cfg.CountThreshold > 0 && len(c.entries) >= c.cfg.CountThreshold
	c.mu.Unlock()

	if full {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
}

func (c *LogCollector) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.flushCh:
			c.flush()
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush swaps the window out under the lock and publishes outside it.
func (c *LogCollector) flush() {
	now := time.Now()

	c.mu.Lock()
	if len(c.entries) == 0 {
		c.start = now
		c.mu.Unlock()
		return
	}
	d := Digest{WindowStart: c.start, WindowEnd: now, Entries: make([]DigestEntry, 0, len(c.entries))}
	for _, e := range c.entries {
		d.Entries = append(d.Entries, *e)
	}
	c.entries = make(map[uint64]*DigestEntry)
	c.start = now
	c.mu.Unlock()

	sort.Slice(d.Entries, func(i, j int) bool { return d.Entries[i].Count > d.Entries[j].Count })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, d); err != nil {
		fmt.Fprintf(os.Stderr, "log collector: publish to %s failed: %v\n", c.cfg.Topic, err)
	}
}

// Close publishes whatever is pending and stops the window loop.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
}

func digestKey(level, component, message, caller string, fields map[string]interface{}) uint64 {
	h := fnv.New64a()
	for _, s := range []string{level, component, message, caller} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, fields[k])
	}
	return h.Sum64()
}
