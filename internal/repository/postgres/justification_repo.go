package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/spaceai-console/internal/presence"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var justificationColumns = []string{"id", "user_identity", "session_id", "reason", "idle_ms", "captured_at"}

// JustificationRepo: архив объяснений в таблице inactivity_justifications.
type JustificationRepo struct {
	pool *pgxpool.Pool
}

func NewJustificationRepo(pool *pgxpool.Pool) *JustificationRepo {
	return &JustificationRepo{pool: pool}
}

// WriteBatch пишет пачку через COPY.
func (r *JustificationRepo) WriteBatch(ctx context.Context, records []presence.JustificationRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			rec.ID, rec.UserIdentity, rec.SessionID, rec.Reason, rec.IdleDuration.Milliseconds(), rec.CapturedAt,
		})
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"inactivity_justifications"},
		justificationColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("postgres: copy justifications: %w", err)
	}
	return nil
}

// ListByUser: последние объяснения пользователя, новые сначала.
func (r *JustificationRepo) ListByUser(ctx context.Context, user string, limit int) ([]presence.JustificationRecord, error) {
	limit = listLimit(limit)
	query := `
		SELECT id, user_identity, session_id, reason, idle_ms, captured_at
		FROM inactivity_justifications
		WHERE user_identity = $1
		ORDER BY captured_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, user, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list justifications: %w", err)
	}
	defer rows.Close()

	var out []presence.JustificationRecord
	for rows.Next() {
		var (
			rec    presence.JustificationRecord
			idleMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserIdentity, &rec.SessionID, &rec.Reason, &idleMs, &rec.CapturedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan justification: %w", err)
		}
		rec.IdleDuration = time.Duration(idleMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// listLimit: 0 и отрицательные дают значение по умолчанию, большие урезаются до потолка.
func listLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
