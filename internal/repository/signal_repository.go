package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tickwatch/internal/domain/models"
	"tickwatch/internal/domain/repository"
	pkgkafka "tickwatch/pkg/kafka"
)

// CHSignalArchive appends dispatched signals to ClickHouse.
type CHSignalArchive struct {
	db    *sql.DB
	table string
}

func NewCHSignalArchive(db *sql.DB, table string) repository.SignalArchive {
	return &CHSignalArchive{db: db, table: table}
}

func (s *CHSignalArchive) Store(ctx context.Context, sig models.Signal) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, id, type, symbol, price, volume, reason, owner_id, rule_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		sig.Timestamp.UTC(),
		sig.ID,
		string(sig.Type),
		sig.Symbol,
		sig.Price,
		sig.Volume,
		sig.Reason,
		sig.OwnerID,
		sig.RuleID,
	)
	if err != nil {
		return fmt.Errorf("archive signal %s: %w", sig.ID, err)
	}
	return nil
}

// KafkaSignalPublisher emits signals keyed by symbol.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) repository.SignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, sig models.Signal) error {
	return p.producer.Publish(ctx, p.topic, []byte(sig.Symbol), sig)
}
