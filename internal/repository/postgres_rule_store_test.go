package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickwatch/internal/domain/models"
)

// fakeRows replays fixed rows through the pgx.Rows interface.
type fakeRows struct {
	rows [][]any
	i    int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.i-1], nil }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d dest for %d columns", len(dest), len(row))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *string:
			*d = v.(string)
		case *float64:
			*d = v.(float64)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

type fakeQuerier struct {
	rows     *fakeRows
	queryErr error
	tag      string
	execErr  error
	execArgs []any
}

func (q *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	if q.queryErr != nil {
		return nil, q.queryErr
	}
	return q.rows, nil
}

func (q *fakeQuerier) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	q.execArgs = args
	return pgconn.NewCommandTag(q.tag), q.execErr
}

func ruleRow(id int64, indicator, op string, threshold float64) []any {
	return []any{id, "user-1", "TCS", indicator, op, threshold, "ACTIVE", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestPostgresRuleStore_ListActive(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{rows: [][]any{
		ruleRow(1, "price", "gt", 2500),
		ruleRow(2, "RSI", "<", 30),
		ruleRow(3, "macd", "gt", 1),
		ruleRow(4, "price", "eq", 1),
	}}}

	rules, err := NewPostgresRuleStore(q, nil).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, int64(1), rules[0].ID)
	assert.Equal(t, models.IndicatorPrice, rules[0].Indicator)
	assert.Equal(t, models.OperatorGT, rules[0].Operator)
	assert.Equal(t, 2500.0, rules[0].Threshold)
	assert.Equal(t, models.AlertActive, rules[0].Status)
	assert.Equal(t, "user-1", rules[0].OwnerID)

	assert.Equal(t, models.IndicatorRSI, rules[1].Indicator)
	assert.Equal(t, models.OperatorLT, rules[1].Operator)
}

func TestPostgresRuleStore_ListActiveErrors(t *testing.T) {
	_, err := NewPostgresRuleStore(&fakeQuerier{queryErr: assert.AnError}, nil).ListActive(context.Background())
	assert.ErrorIs(t, err, assert.AnError)

	q := &fakeQuerier{rows: &fakeRows{err: assert.AnError}}
	_, err = NewPostgresRuleStore(q, nil).ListActive(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPostgresRuleStore_MarkTriggered(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{"flipped", "UPDATE 1", true},
		{"already triggered", "UPDATE 0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuerier{tag: tt.tag}
			ok, err := NewPostgresRuleStore(q, nil).MarkTriggered(context.Background(), 9)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, []any{int64(9)}, q.execArgs)
		})
	}
}

func TestPostgresRuleStore_MarkTriggeredError(t *testing.T) {
	_, err := NewPostgresRuleStore(&fakeQuerier{execErr: assert.AnError}, nil).MarkTriggered(context.Background(), 9)
	assert.ErrorIs(t, err, assert.AnError)
}
