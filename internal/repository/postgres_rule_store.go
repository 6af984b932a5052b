package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tickwatch/internal/domain/models"
	"tickwatch/internal/domain/repository"
	applogger "tickwatch/pkg/logger"
)

// PgQuerier is the subset of *pgxpool.Pool the rule store uses.
type PgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	listActiveRulesSQL = `SELECT id, user_id::text, symbol, indicator, operator, threshold, status, created_at
FROM alerts
WHERE status = 'ACTIVE'
ORDER BY id`

	markTriggeredSQL = `UPDATE alerts SET status = 'TRIGGERED' WHERE id = $1 AND status = 'ACTIVE'`
)

// PostgresRuleStore reads and commits alert rules in the alerts table.
type PostgresRuleStore struct {
	db PgQuerier
	l  *applogger.Logger
}

func NewPostgresRuleStore(db PgQuerier, l *applogger.Logger) repository.RuleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &PostgresRuleStore{db: db, l: l}
}

// ListActive returns every ACTIVE rule. Rows with an unknown indicator or
// operator are skipped so one bad row does not hide the rest.
func (s *PostgresRuleStore) ListActive(ctx context.Context) ([]models.AlertRule, error) {
	rows, err := s.db.Query(ctx, listActiveRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	defer rows.Close()

	var out []models.AlertRule
	for rows.Next() {
		var r models.AlertRule
		var indicator, op, status string
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Symbol, &indicator, &op, &r.Threshold, &status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if r.Indicator, err = models.ParseIndicator(indicator); err != nil {
			s.l.Warn("skipping alert rule", applogger.Int64("alert_id", r.ID), applogger.Error(err))
			continue
		}
		if r.Operator, err = models.ParseOperator(op); err != nil {
			s.l.Warn("skipping alert rule", applogger.Int64("alert_id", r.ID), applogger.Error(err))
			continue
		}
		r.Status = models.AlertStatus(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// MarkTriggered flips the row only if it is still ACTIVE.
func (s *PostgresRuleStore) MarkTriggered(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, markTriggeredSQL, id)
	if err != nil {
		return false, fmt.Errorf("mark alert %d triggered: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}
