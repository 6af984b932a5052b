package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickwatch/internal/testutils"
)

func TestSignalArchiveHandler_StoresSignal(t *testing.T) {
	archive := &testutils.FakeArchive{}
	h := NewSignalArchiveHandler("tickwatch.signals", archive, testutils.NewMetrics())
	assert.Equal(t, "tickwatch.signals", h.Topic())

	sig := alertSignal("42", 7)
	sig.Timestamp = time.Now().UTC().Truncate(time.Millisecond)
	b, err := json.Marshal(sig)
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), b))
	stored := archive.Stored()
	require.Len(t, stored, 1)
	assert.Equal(t, sig, stored[0])
}

func TestSignalArchiveHandler_RejectsBadPayloads(t *testing.T) {
	m := testutils.NewMetrics()
	h := NewSignalArchiveHandler("tickwatch.signals", &testutils.FakeArchive{}, m)

	assert.Error(t, h.Handle(context.Background(), []byte("{not json")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"id":"x"}`)))
	assert.Equal(t, 1, m.Error("consumer_unmarshal"))
	assert.Equal(t, 1, m.Error("consumer_invalid"))
}

func TestSignalArchiveHandler_StoreError(t *testing.T) {
	m := testutils.NewMetrics()
	h := NewSignalArchiveHandler("tickwatch.signals", &testutils.FakeArchive{Err: testutils.ErrInjected}, m)

	b, err := json.Marshal(breakoutSignal("TCS"))
	require.NoError(t, err)
	assert.ErrorIs(t, h.Handle(context.Background(), b), testutils.ErrInjected)
	assert.Equal(t, 1, m.Error("consumer_store"))
}
