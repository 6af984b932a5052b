package testutils

import "sync"

// Metrics counts calls in memory.
type Metrics struct {
	mu            sync.Mutex
	Ticks         map[string]int
	Errors        map[string]int
	Signals       map[string]int
	Notifications map[string]int
	States        map[int][]string
	LastPrices    map[string]float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		Ticks:         make(map[string]int),
		Errors:        make(map[string]int),
		Signals:       make(map[string]int),
		Notifications: make(map[string]int),
		States:        make(map[int][]string),
		LastPrices:    make(map[string]float64),
	}
}

func (m *Metrics) RecordTick(symbol string) {
	m.mu.Lock()
	m.Ticks[symbol]++
	m.mu.Unlock()
}

func (m *Metrics) RecordError(kind string) {
	m.mu.Lock()
	m.Errors[kind]++
	m.mu.Unlock()
}

func (m *Metrics) RecordLastPrice(symbol string, price float64) {
	m.mu.Lock()
	m.LastPrices[symbol] = price
	m.mu.Unlock()
}

func (m *Metrics) RecordLatency(string, float64) {}

func (m *Metrics) RecordSignal(kind string) {
	m.mu.Lock()
	m.Signals[kind]++
	m.mu.Unlock()
}

func (m *Metrics) RecordNotification(result string) {
	m.mu.Lock()
	m.Notifications[result]++
	m.mu.Unlock()
}

func (m *Metrics) RecordConnectionState(index int, state string) {
	m.mu.Lock()
	m.States[index] = append(m.States[index], state)
	m.mu.Unlock()
}

func (m *Metrics) Error(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Errors[kind]
}

func (m *Metrics) Notification(result string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Notifications[result]
}

func (m *Metrics) Signal(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Signals[kind]
}

func (m *Metrics) Tick(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Ticks[symbol]
}

func (m *Metrics) StateHistory(index int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.States[index]...)
}
