package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	pkgch "SessionBreak/pkg/clickhouse"
)

// ClickHouseJournal appends engine decisions to database.decisions.
type ClickHouseJournal struct {
	db    *sql.DB
	table string
}

func NewClickHouseJournal(ch *pkgch.Client, database string) *ClickHouseJournal {
	return &ClickHouseJournal{db: ch.DB(), table: database + ".decisions"}
}

func (j *ClickHouseJournal) Record(ctx context.Context, decisions []models.Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	q, args := decisionInsert(j.table, decisions)
	if _, err := j.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert decisions: %w", err)
	}
	return nil
}

func decisionInsert(table string, decisions []models.Decision) (string, []interface{}) {
	values := make([]string, len(decisions))
	args := make([]interface{}, 0, len(decisions)*12)
	for i, d := range decisions {
		values[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			d.Time.UTC(), d.Symbol, d.Label, string(d.Kind), string(d.Direction),
			d.Volume, d.Price, d.StopLossPips, d.TakeProfitPips,
			d.RangeHigh, d.RangeLow, d.Detail,
		)
	}
	q := fmt.Sprintf(`INSERT INTO %s (ts, symbol, label, kind, direction, volume, price,
        stop_loss_pips, take_profit_pips, range_high, range_low, detail) VALUES %s`,
		table, strings.Join(values, ","))
	return q, args
}

var _ domrepo.Journal = (*ClickHouseJournal)(nil)
