package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickwatch/internal/domain/models"
	pkgkafka "tickwatch/pkg/kafka"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaSignalPublisher_KeysBySymbol(t *testing.T) {
	w := &captureWriter{}
	pub := NewKafkaSignalPublisher(pkgkafka.NewProducerWithWriter(w, "none"), "tickwatch.signals")

	sig := models.Signal{
		ID:        "abc",
		Type:      models.SignalBreakout,
		Symbol:    "TCS",
		Price:     3512.35,
		Timestamp: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), sig))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "tickwatch.signals", msg.Topic)
	assert.Equal(t, "TCS", string(msg.Key))

	var got models.Signal
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, sig.ID, got.ID)
	assert.Equal(t, sig.Price, got.Price)
}

// execRecorder is a database/sql driver that records every Exec.
type execRecorder struct {
	mu    sync.Mutex
	query string
	args  []driver.NamedValue
	err   error
}

func (r *execRecorder) Connect(context.Context) (driver.Conn, error) { return recorderConn{r}, nil }
func (r *execRecorder) Driver() driver.Driver                        { return r }
func (r *execRecorder) Open(string) (driver.Conn, error)             { return recorderConn{r}, nil }

type recorderConn struct{ r *execRecorder }

func (c recorderConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (c recorderConn) Close() error              { return nil }
func (c recorderConn) Begin() (driver.Tx, error) { return nil, errors.New("tx not supported") }

func (c recorderConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.query = query
	c.r.args = args
	if c.r.err != nil {
		return nil, c.r.err
	}
	return driver.RowsAffected(1), nil
}

func TestCHSignalArchive_BindsColumnsInOrder(t *testing.T) {
	rec := &execRecorder{}
	db := sql.OpenDB(rec)
	defer db.Close()

	ts := time.Date(2024, 1, 2, 15, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	sig := models.Signal{
		ID:        "sig-1",
		Type:      models.SignalBreakout,
		Symbol:    "TCS",
		Price:     3512.35,
		Volume:    120000,
		Reason:    "52w high",
		OwnerID:   "42",
		RuleID:    7,
		Timestamp: ts,
	}
	require.NoError(t, NewCHSignalArchive(db, "tickwatch.signals").Store(context.Background(), sig))

	assert.Contains(t, rec.query, "INSERT INTO tickwatch.signals (ts, id, type, symbol, price, volume, reason, owner_id, rule_id)")
	got := make([]driver.Value, len(rec.args))
	for i, a := range rec.args {
		got[i] = a.Value
	}
	assert.Equal(t, []driver.Value{
		ts.UTC(), "sig-1", string(models.SignalBreakout), "TCS", 3512.35, float64(120000), "52w high", "42", int64(7),
	}, got)
}

func TestCHSignalArchive_WrapsErrorWithID(t *testing.T) {
	rec := &execRecorder{err: errors.New("table missing")}
	db := sql.OpenDB(rec)
	defer db.Close()

	err := NewCHSignalArchive(db, "signals").Store(context.Background(), models.Signal{ID: "sig-9", Timestamp: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sig-9")
	assert.Contains(t, err.Error(), "table missing")
}
