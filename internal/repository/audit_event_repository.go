package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// AuditEventRepository stores the append-only request history.
type AuditEventRepository interface {
	Create(ctx context.Context, event *domain.AuditEvent) error
	ListByRequest(ctx context.Context, requestID string) ([]domain.AuditEvent, error)
	MarkRead(ctx context.Context, requestID, readerID string) (int64, error)
	CountUnread(ctx context.Context, requestID, readerID string) (int64, error)
	LatestRadicado(ctx context.Context) (string, error)
}

type auditEventRepository struct {
	db DBTX
}

func (r *auditEventRepository) Create(ctx context.Context, event *domain.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO request_updates (id, request_id, radicado, kind, actor_id, from_area_id, to_area_id,
                                     to_user_id, message, payload, is_read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING seq`
	err := r.db.QueryRow(ctx, query,
		event.ID,
		event.RequestID,
		event.Radicado,
		event.Kind,
		event.ActorID,
		event.FromAreaID,
		event.ToAreaID,
		event.ToUserID,
		event.Message,
		event.Payload,
		event.IsRead,
		event.CreatedAt,
	).Scan(&event.Seq)
	return translate(err)
}

func (r *auditEventRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.AuditEvent, error) {
	const query = `
        SELECT id, seq, request_id, radicado, kind, actor_id, from_area_id, to_area_id, to_user_id,
               message, payload, is_read, created_at
        FROM request_updates WHERE request_id=$1
        ORDER BY created_at DESC, seq DESC`
	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanAuditEvents(rows)
}

func (r *auditEventRepository) MarkRead(ctx context.Context, requestID, readerID string) (int64, error) {
	const query = `
        UPDATE request_updates SET is_read=TRUE
        WHERE request_id=$1 AND is_read=FALSE AND actor_id IS DISTINCT FROM $2::uuid`
	cmd, err := r.db.Exec(ctx, query, requestID, readerID)
	if err != nil {
		return 0, translate(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *auditEventRepository) CountUnread(ctx context.Context, requestID, readerID string) (int64, error) {
	const query = `
        SELECT COUNT(*) FROM request_updates
        WHERE request_id=$1 AND is_read=FALSE AND actor_id IS DISTINCT FROM $2::uuid`
	var n int64
	if err := r.db.QueryRow(ctx, query, requestID, readerID).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (r *auditEventRepository) LatestRadicado(ctx context.Context) (string, error) {
	return latestRadicado(ctx, r.db, "request_updates")
}

func scanAuditEvents(rows pgx.Rows) ([]domain.AuditEvent, error) {
	var result []domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		if err := rows.Scan(
			&event.ID,
			&event.Seq,
			&event.RequestID,
			&event.Radicado,
			&event.Kind,
			&event.ActorID,
			&event.FromAreaID,
			&event.ToAreaID,
			&event.ToUserID,
			&event.Message,
			&event.Payload,
			&event.IsRead,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
