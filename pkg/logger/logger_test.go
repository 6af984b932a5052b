package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	digests []Digest
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.digests = append(p.digests, payload.(Digest))
	return nil
}

func (p *capturePublisher) all() []Digest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Digest(nil), p.digests...)
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
}

func TestCollector_FoldsRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "tickwatch.logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("redis write failed", String("symbol", "TCS"))
	}
	l.Error("redis write failed", String("symbol", "INFY"))
	l.Info("not collected")
	l.Warn("not collected either")

	l.RemoveCollector()

	digests := pub.all()
	require.Len(t, digests, 1)
	assert.Equal(t, []string{"tickwatch.logs"}, pub.topics)

	entries := digests[0].Entries
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].Count)
	assert.Equal(t, "TCS", entries[0].Fields["symbol"])
	assert.Equal(t, 1, entries[1].Count)
	assert.Equal(t, "error", entries[0].Level)
	assert.False(t, digests[0].WindowEnd.Before(digests[0].WindowStart))
}

func TestCollector_ChildLoggerSeesLaterCollector(t *testing.T) {
	pub := &capturePublisher{}
	root := Nop()
	child := root.With("dispatcher")

	root.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})
	child.Error("telegram send failed", Error(errors.New("boom")))
	root.RemoveCollector()

	digests := pub.all()
	require.Len(t, digests, 1)
	require.Len(t, digests[0].Entries, 1)
	e := digests[0].Entries[0]
	assert.Equal(t, "dispatcher", e.Component)
	assert.Equal(t, "boom", e.Fields["error"])
	assert.NotEmpty(t, e.Caller)
}

func TestCollector_ThresholdFlushesEarly(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	defer l.RemoveCollector()

	l.Error("a")
	l.Error("b")

	require.Eventually(t, func() bool { return len(pub.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, pub.all()[0].Entries, 2)
}

func TestCollector_EmptyWindowPublishesNothing(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: 10 * time.Millisecond, Topic: "logs", Publisher: pub})
	time.Sleep(50 * time.Millisecond)
	l.RemoveCollector()

	assert.Empty(t, pub.all())
}

func TestDigestKey_IgnoresFieldOrder(t *testing.T) {
	a := digestKey("error", "pool", "m", "c", map[string]interface{}{"x": 1, "y": "z"})
	b := digestKey("error", "pool", "m", "c", map[string]interface{}{"y": "z", "x": 1})
	other := digestKey("error", "ingester", "m", "c", map[string]interface{}{"x": 1, "y": "z"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)
}
