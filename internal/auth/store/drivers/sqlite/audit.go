package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/saatphere/saatphere/internal/auth/domain"
)

type auditRepo struct {
	q querier
}

func (r *auditRepo) Record(ctx context.Context, e domain.AuditEvent) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_events (bucket, operation, actor_id, detail, created_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		e.Bucket,
		e.Operation,
		nullInt64(e.ActorID),
		e.Detail,
	)
	return err
}

func (r *auditRepo) ListRecent(ctx context.Context, bucket string, limit int) ([]domain.AuditEvent, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, bucket, operation, actor_id, detail, created_at
		FROM audit_events
		WHERE bucket = ?
		ORDER BY id DESC
		LIMIT ?`, bucket, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var (
			e       domain.AuditEvent
			actorID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Bucket, &e.Operation, &actorID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			v := actorID.Int64
			e.ActorID = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditRepo) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM audit_events WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
