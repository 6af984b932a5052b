// Package testutils holds hand-written fakes shared by package tests.
package testutils

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"tickwatch/internal/domain/models"
)

// SubscribeCall records one FakeFeedConn.Subscribe.
type SubscribeCall struct {
	Mode         int
	ExchangeType int
	Tokens       []string
}

// FakeFeedConn is a scripted streaming connection.
// Push delivers a frame to Run; Drop makes Run return the error.
type FakeFeedConn struct {
	mu          sync.Mutex
	connectErrs []error
	connects    int
	subs        []SubscribeCall
	closed      bool
	running     bool

	packets chan []byte
	drops   chan error
}

func NewFakeFeedConn(connectErrs ...error) *FakeFeedConn {
	return &FakeFeedConn{
		connectErrs: connectErrs,
		packets:     make(chan []byte, 64),
		drops:       make(chan error, 4),
	}
}

func (f *FakeFeedConn) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeFeedConn) Subscribe(_ context.Context, mode int, exchangeType int, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, SubscribeCall{Mode: mode, ExchangeType: exchangeType, Tokens: append([]string(nil), tokens...)})
	return nil
}

func (f *FakeFeedConn) Run(ctx context.Context, onPacket func([]byte)) error {
	f.setRunning(true)
	defer f.setRunning(false)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-f.drops:
			return err
		case pkt := <-f.packets:
			onPacket(pkt)
		}
	}
}

func (f *FakeFeedConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeFeedConn) Push(pkt []byte) { f.packets <- pkt }

func (f *FakeFeedConn) Drop(err error) { f.drops <- err }

func (f *FakeFeedConn) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *FakeFeedConn) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *FakeFeedConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Subscriptions returns a copy of every subscribe call so far.
func (f *FakeFeedConn) Subscriptions() []SubscribeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SubscribeCall(nil), f.subs...)
}

// SubscribedTokens flattens all subscribe calls.
func (f *FakeFeedConn) SubscribedTokens() []string {
	var out []string
	for _, s := range f.Subscriptions() {
		out = append(out, s.Tokens...)
	}
	return out
}

func (f *FakeFeedConn) setRunning(v bool) {
	f.mu.Lock()
	f.running = v
	f.mu.Unlock()
}

// Sent is one delivered notification.
type Sent struct {
	Recipient string
	Text      string
}

// FakeNotifier records deliveries. Recipients listed in Fail get an error.
type FakeNotifier struct {
	mu    sync.Mutex
	Fail  map[string]error
	sent  []Sent
	calls int
}

func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{Fail: make(map[string]error)}
}

func (n *FakeNotifier) Send(_ context.Context, recipient, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if err := n.Fail[recipient]; err != nil {
		return err
	}
	n.sent = append(n.sent, Sent{Recipient: recipient, Text: text})
	return nil
}

func (n *FakeNotifier) FailFor(recipient string, err error) {
	n.mu.Lock()
	n.Fail[recipient] = err
	n.mu.Unlock()
}

func (n *FakeNotifier) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *FakeNotifier) Sent() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sent(nil), n.sent...)
}

// Recipients lists successful recipients sorted.
func (n *FakeNotifier) Recipients() []string {
	var out []string
	for _, s := range n.Sent() {
		out = append(out, s.Recipient)
	}
	sort.Strings(out)
	return out
}

// FakeRuleStore keeps rules in memory with the conditional status flip.
type FakeRuleStore struct {
	mu       sync.Mutex
	rules    map[int64]*models.AlertRule
	ListErr  error
	MarkErr  error
	ListHook func()
	marks    int
}

func NewFakeRuleStore(rules ...models.AlertRule) *FakeRuleStore {
	s := &FakeRuleStore{rules: make(map[int64]*models.AlertRule)}
	for i := range rules {
		r := rules[i]
		if r.Status == "" {
			r.Status = models.AlertActive
		}
		s.rules[r.ID] = &r
	}
	return s
}

func (s *FakeRuleStore) ListActive(context.Context) ([]models.AlertRule, error) {
	if s.ListHook != nil {
		s.ListHook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var out []models.AlertRule
	for _, r := range s.rules {
		if r.Status == models.AlertActive {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FakeRuleStore) MarkTriggered(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks++
	if s.MarkErr != nil {
		return false, s.MarkErr
	}
	r, ok := s.rules[id]
	if !ok || r.Status != models.AlertActive {
		return false, nil
	}
	r.Status = models.AlertTriggered
	return true, nil
}

// SetStatus simulates another writer changing a rule.
func (s *FakeRuleStore) SetStatus(id int64, status models.AlertStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rules[id]; ok {
		r.Status = status
	}
}

func (s *FakeRuleStore) Status(id int64) models.AlertStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rules[id]; ok {
		return r.Status
	}
	return ""
}

func (s *FakeRuleStore) Marks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marks
}

// FakeSignalSink collects submitted signals. Full rejects every submit.
type FakeSignalSink struct {
	mu      sync.Mutex
	Full    bool
	signals []models.Signal
}

func (s *FakeSignalSink) Submit(sig models.Signal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Full {
		return false
	}
	s.signals = append(s.signals, sig)
	return true
}

func (s *FakeSignalSink) Signals() []models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Signal(nil), s.signals...)
}

// FakePublisher records published signals.
type FakePublisher struct {
	mu        sync.Mutex
	Err       error
	published []models.Signal
}

func (p *FakePublisher) Publish(_ context.Context, sig models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.published = append(p.published, sig)
	return nil
}

func (p *FakePublisher) Published() []models.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Signal(nil), p.published...)
}

// FakeArchive records stored signals.
type FakeArchive struct {
	mu     sync.Mutex
	Err    error
	stored []models.Signal
}

func (a *FakeArchive) Store(_ context.Context, sig models.Signal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.stored = append(a.stored, sig)
	return nil
}

func (a *FakeArchive) Stored() []models.Signal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Signal(nil), a.stored...)
}

// FakeCandleStore serves candles per symbol in ascending order.
type FakeCandleStore struct {
	Candles map[string][]models.Candle
	Errs    map[string]error
}

func (s *FakeCandleStore) LatestDaily(_ context.Context, symbol string, n int) ([]models.Candle, error) {
	if err := s.Errs[symbol]; err != nil {
		return nil, err
	}
	cs := s.Candles[symbol]
	if len(cs) > n {
		cs = cs[len(cs)-n:]
	}
	return cs, nil
}

// DailyCandles builds ascending daily candles from closes; high = close+1, volume given.
func DailyCandles(symbol string, closes []float64, volume float64) []models.Candle {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Bucket: day.AddDate(0, 0, i),
			Symbol: symbol,
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: volume,
		}
	}
	return out
}

// ErrInjected is a generic failure for fakes.
var ErrInjected = errors.New("injected failure")
