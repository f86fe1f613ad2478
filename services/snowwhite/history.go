package snowwhite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"snowwhite/pkg/db"
)

const (
	insertRunSQL = `INSERT INTO snowwhite_runs
	(id, action, application, region, pattern, actor, command_id, targets, succeeded, failed, pending, rounds, details, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	insertInstanceSQL = `INSERT INTO snowwhite_run_instances
	(run_id, instance_id, environment, outcome, response_code)
	VALUES ($1, $2, $3, $4, $5)`

	recentRunsSQL = `SELECT id, action, application, region, actor, command_id,
	targets, succeeded, failed, pending, rounds, started_at, finished_at
	FROM snowwhite_runs ORDER BY started_at DESC LIMIT $1`
)

// RunRecord is a row of the run history.
type RunRecord struct {
	ID          uuid.UUID `db:"id"`
	Action      string    `db:"action"`
	Application string    `db:"application"`
	Region      string    `db:"region"`
	Actor       string    `db:"actor"`
	CommandID   string    `db:"command_id"`
	Targets     int       `db:"targets"`
	Succeeded   int       `db:"succeeded"`
	Failed      int       `db:"failed"`
	Pending     int       `db:"pending"`
	Rounds      int       `db:"rounds"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
}

// HistoryStore persists finished runs in Postgres.
type HistoryStore struct {
	pool *pgxpool.Pool
}

func NewHistoryStore(pool *pgxpool.Pool) (*HistoryStore, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	return &HistoryStore{pool: pool}, nil
}

func (h *HistoryStore) Name() string { return "postgres" }

func (h *HistoryStore) Record(ctx context.Context, report Report) error {
	s := summarize(report)
	details, err := json.Marshal(map[string]any{
		"pattern":    s.Pattern,
		"any_failed": s.AnyFailed,
		"slack_id":   s.Actor.SlackID,
	})
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	return db.InTx(ctx, h.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertRunSQL,
			s.RunID, string(s.Action), s.Application, s.Region, s.Pattern, s.Actor.User, s.CommandID,
			s.Targets, s.Succeeded, s.Failed, s.Pending, s.Rounds, string(details),
			s.StartedAt, s.FinishedAt,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for _, inst := range s.Instances {
			if _, err := tx.Exec(ctx, insertInstanceSQL,
				s.RunID, inst.InstanceID, inst.Environment, inst.Outcome, inst.ResponseCode,
			); err != nil {
				return fmt.Errorf("insert instance %s: %w", inst.InstanceID, err)
			}
		}
		return nil
	})
}

// Recent returns up to limit runs, newest first.
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []RunRecord
	if err := db.Select(ctx, h.pool, &records, recentRunsSQL, limit); err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	return records, nil
}
