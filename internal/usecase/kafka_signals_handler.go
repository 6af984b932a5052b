package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tickwatch/internal/domain/models"
	drepo "tickwatch/internal/domain/repository"
	pkgkafka "tickwatch/pkg/kafka"
)

// SignalArchiveHandler consumes the signal topic and archives each signal.
type SignalArchiveHandler struct {
	topic   string
	archive drepo.SignalArchive
	metrics drepo.Metrics
}

func NewSignalArchiveHandler(topic string, archive drepo.SignalArchive, metrics drepo.Metrics) *SignalArchiveHandler {
	return &SignalArchiveHandler{topic: topic, archive: archive, metrics: metrics}
}

func (h *SignalArchiveHandler) Topic() string { return h.topic }

func (h *SignalArchiveHandler) Handle(ctx context.Context, b []byte) error {
	var sig models.Signal
	if err := json.Unmarshal(b, &sig); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode signal: %w", err)
	}
	if sig.Symbol == "" || sig.Type == "" {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("decode signal: missing symbol or type")
	}

	// publish to archive lag
	if !sig.Timestamp.IsZero() {
		h.metrics.RecordLatency("signal_archive_lag", time.Since(sig.Timestamp).Seconds())
	}

	start := time.Now()
	err := h.archive.Store(ctx, sig)
	h.metrics.RecordLatency("ch_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*SignalArchiveHandler)(nil)
