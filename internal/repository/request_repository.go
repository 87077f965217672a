package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// RequestFilter captures list parameters for citizen and officer inboxes.
type RequestFilter struct {
	CitizenID    *string
	AssignedToID *string
	EntityID     *string
	Statuses     []domain.RequestStatus
	Limit        int
	Offset       int
}

// RequestRepository encapsulates request persistence.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) error
	Update(ctx context.Context, req *domain.Request) error
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]domain.Request, error)
	CountByStatus(ctx context.Context, filter RequestFilter) (map[domain.RequestStatus]int64, error)
	MarkOverdue(ctx context.Context, now time.Time) ([]domain.Request, error)
	ListOpenDueBetween(ctx context.Context, from, to time.Time) ([]domain.Request, error)
	LatestRadicado(ctx context.Context) (string, error)
	Search(ctx context.Context, search RequestSearch) ([]domain.Request, int64, error)
	Stats(ctx context.Context, entityID string, from, to *time.Time) (RequestStats, error)
	CountByArea(ctx context.Context, entityID string) ([]AreaCount, error)
	DailyCounts(ctx context.Context, entityID string, from, to time.Time, loc *time.Location) (map[string]int64, error)
	LatestUpdated(ctx context.Context, entityID string, limit int) ([]domain.Request, error)
}

// RequestSearch drives the staff report listing shared by internal and external requests.
// Radicado and Subject match case-insensitively as substrings.
type RequestSearch struct {
	EntityID *string
	Radicado string
	Subject  string
	Status   *domain.RequestStatus
	Limit    int
	Offset   int
}

// RequestStats aggregates an entity's requests over an optional creation window.
type RequestStats struct {
	Total           int64
	Resolved        int64
	AvgResponseDays float64
}

// AreaCount is the number of requests currently routed to an area.
type AreaCount struct {
	AreaID   string
	AreaName string
	Count    int64
}

type requestRepository struct {
	db DBTX
}

const requestColumns = `id, radicado, subject, content, status, procedure_id, entity_id, citizen_id,
               assigned_to_id, current_area_id, created_at, updated_at, deadline, closed_at`

func (r *requestRepository) Create(ctx context.Context, req *domain.Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO requests (id, radicado, subject, content, status, procedure_id, entity_id, citizen_id,
                              assigned_to_id, current_area_id, created_at, updated_at, deadline)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.db.Exec(ctx, query,
		req.ID,
		req.Radicado,
		req.Subject,
		req.Content,
		req.Status,
		req.ProcedureID,
		req.EntityID,
		req.CitizenID,
		req.AssignedToID,
		req.CurrentAreaID,
		req.CreatedAt,
		req.UpdatedAt,
		req.Deadline,
	)
	return translate(err)
}

func (r *requestRepository) Update(ctx context.Context, req *domain.Request) error {
	const query = `
        UPDATE requests SET status=$1, assigned_to_id=$2, current_area_id=$3, updated_at=$4, closed_at=$5
        WHERE id=$6`
	cmd, err := r.db.Exec(ctx, query,
		req.Status,
		req.AssignedToID,
		req.CurrentAreaID,
		req.UpdatedAt,
		req.ClosedAt,
		req.ID,
	)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	return r.fetchSingle(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=$1`, id)
}

func (r *requestRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Request, error) {
	return r.fetchSingle(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=$1 FOR UPDATE`, id)
}

func (r *requestRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Request, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, translate(err)
	}
	return req, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	where, args := requestWhere(filter)
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		requestColumns, where, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *requestRepository) CountByStatus(ctx context.Context, filter RequestFilter) (map[domain.RequestStatus]int64, error) {
	where, args := requestWhere(filter)
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM requests WHERE %s GROUP BY status`, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	counts := make(map[domain.RequestStatus]int64, len(domain.AllRequestStatuses))
	for _, status := range domain.AllRequestStatuses {
		counts[status] = 0
	}
	for rows.Next() {
		var status domain.RequestStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *requestRepository) MarkOverdue(ctx context.Context, now time.Time) ([]domain.Request, error) {
	query := `
        UPDATE requests SET status=$1, updated_at=$2
        WHERE status IN ($3, $4) AND deadline < $2
        RETURNING ` + requestColumns
	rows, err := r.db.Query(ctx, query,
		domain.RequestStatusOverdue,
		now,
		domain.RequestStatusPending,
		domain.RequestStatusInReview,
	)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *requestRepository) ListOpenDueBetween(ctx context.Context, from, to time.Time) ([]domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests
        WHERE status IN ($1, $2) AND deadline >= $3 AND deadline < $4
        ORDER BY deadline, id`
	rows, err := r.db.Query(ctx, query, domain.RequestStatusPending, domain.RequestStatusInReview, from, to)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *requestRepository) LatestRadicado(ctx context.Context) (string, error) {
	return latestRadicado(ctx, r.db, "requests")
}

func (r *requestRepository) Search(ctx context.Context, search RequestSearch) ([]domain.Request, int64, error) {
	where, args := searchWhere(search)
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM requests WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	limit, offset := searchPage(search.Limit, search.Offset)
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		requestColumns, where, limit, offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()
	result, err := scanRequests(rows)
	return result, total, err
}

func (r *requestRepository) Stats(ctx context.Context, entityID string, from, to *time.Time) (RequestStats, error) {
	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status=$2),
               COALESCE(AVG(EXTRACT(EPOCH FROM (updated_at - created_at)) / 86400) FILTER (WHERE status=$2), 0)
        FROM requests
        WHERE entity_id=$1
          AND ($3::timestamptz IS NULL OR created_at >= $3)
          AND ($4::timestamptz IS NULL OR created_at <= $4)`
	var stats RequestStats
	err := r.db.QueryRow(ctx, query, entityID, domain.RequestStatusCompleted, from, to).
		Scan(&stats.Total, &stats.Resolved, &stats.AvgResponseDays)
	if err != nil {
		return RequestStats{}, translate(err)
	}
	return stats, nil
}

func (r *requestRepository) CountByArea(ctx context.Context, entityID string) ([]AreaCount, error) {
	query := `
        SELECT a.id, a.name, COUNT(r.id)
        FROM areas a
        LEFT JOIN requests r ON r.current_area_id = a.id
        WHERE a.entity_id=$1
        GROUP BY a.id, a.name
        ORDER BY a.name, a.id`
	rows, err := r.db.Query(ctx, query, entityID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []AreaCount
	for rows.Next() {
		var ac AreaCount
		if err := rows.Scan(&ac.AreaID, &ac.AreaName, &ac.Count); err != nil {
			return nil, err
		}
		result = append(result, ac)
	}
	return result, rows.Err()
}

// DailyCounts buckets request creation by calendar day in loc, keyed YYYY-MM-DD.
func (r *requestRepository) DailyCounts(ctx context.Context, entityID string, from, to time.Time, loc *time.Location) (map[string]int64, error) {
	query := `
        SELECT to_char(created_at AT TIME ZONE $2, 'YYYY-MM-DD'), COUNT(*)
        FROM requests
        WHERE entity_id=$1 AND created_at >= $3 AND created_at < $4
        GROUP BY 1`
	rows, err := r.db.Query(ctx, query, entityID, loc.String(), from, to)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		counts[day] = n
	}
	return counts, rows.Err()
}

func (r *requestRepository) LatestUpdated(ctx context.Context, entityID string, limit int) ([]domain.Request, error) {
	limit, _ = normalizePage(limit, 0)
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE entity_id=$1 ORDER BY updated_at DESC, id LIMIT %d`,
		requestColumns, limit)
	rows, err := r.db.Query(ctx, query, entityID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

// searchWhere renders RequestSearch for both request tables, which share column names.
func searchWhere(search RequestSearch) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	if search.EntityID != nil {
		args = append(args, *search.EntityID)
		clauses = append(clauses, fmt.Sprintf("entity_id=$%d", len(args)))
	}
	if search.Radicado != "" {
		args = append(args, "%"+escapeLike(search.Radicado)+"%")
		clauses = append(clauses, fmt.Sprintf("radicado ILIKE $%d", len(args)))
	}
	if search.Subject != "" {
		args = append(args, "%"+escapeLike(search.Subject)+"%")
		clauses = append(clauses, fmt.Sprintf("subject ILIKE $%d", len(args)))
	}
	if search.Status != nil {
		args = append(args, *search.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

func requestWhere(filter RequestFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.CitizenID != nil {
		args = append(args, *filter.CitizenID)
		clauses = append(clauses, fmt.Sprintf("citizen_id=$%d", len(args)))
	}
	if filter.AssignedToID != nil {
		args = append(args, *filter.AssignedToID)
		clauses = append(clauses, fmt.Sprintf("assigned_to_id=$%d", len(args)))
	}
	if filter.EntityID != nil {
		args = append(args, *filter.EntityID)
		clauses = append(clauses, fmt.Sprintf("entity_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	return strings.Join(clauses, " AND "), args
}

func latestRadicado(ctx context.Context, db DBTX, table string) (string, error) {
	var code string
	query := fmt.Sprintf(`SELECT radicado FROM %s ORDER BY created_at DESC LIMIT 1`, table)
	err := db.QueryRow(ctx, query).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return code, nil
}

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	if err := row.Scan(
		&req.ID,
		&req.Radicado,
		&req.Subject,
		&req.Content,
		&req.Status,
		&req.ProcedureID,
		&req.EntityID,
		&req.CitizenID,
		&req.AssignedToID,
		&req.CurrentAreaID,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.Deadline,
		&req.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}

func scanRequests(rows pgx.Rows) ([]domain.Request, error) {
	var result []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}
