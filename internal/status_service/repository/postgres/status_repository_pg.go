package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/domain"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is the subset of *pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const statusColumns = `seq, id, created_at, email, send_id, list_id, bounce_type, bounce_text, "timestamp"`

type PgStatusRepository struct {
	db     DBTX
	logger *slog.Logger

	now   func() time.Time
	newID func() uuid.UUID
}

func NewPgStatusRepository(db DBTX, logger *slog.Logger) *PgStatusRepository {
	return &PgStatusRepository{
		db:     db,
		logger: logger.With("component", "status_repository_pg"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.New,
	}
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%w: apply schema: %w", domain.ErrStorage, err)
	}
	return nil
}

func (r *PgStatusRepository) Create(ctx context.Context, in domain.CreateStatusInput) (domain.Status, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return domain.Status{}, err
	}

	s := domain.Status{
		ID:         r.newID(),
		CreatedAt:  r.now(),
		Email:      in.Email,
		SendID:     in.SendID,
		ListID:     in.ListID,
		BounceType: in.BounceType,
		BounceText: in.BounceText,
		Timestamp:  in.Timestamp,
	}

	query := `
		INSERT INTO statuses (id, created_at, email, send_id, list_id, bounce_type, bounce_text, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`
	err := r.db.QueryRow(ctx, query,
		s.ID, s.CreatedAt, s.Email, s.SendID, s.ListID, s.BounceType, s.BounceText, s.Timestamp,
	).Scan(&s.Seq)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating status", "error", err, "status_id", s.ID, "send_id", s.SendID)
		return domain.Status{}, fmt.Errorf("%w: insert status: %w", domain.ErrStorage, err)
	}
	r.logger.DebugContext(ctx, "Status created", "status_id", s.ID, "send_id", s.SendID, "seq", s.Seq)
	return s, nil
}

func (r *PgStatusRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM statuses WHERE id = $1`
	s, err := scanStatus(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Status{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		r.logger.ErrorContext(ctx, "Error getting status by ID", "error", err, "status_id", id)
		return domain.Status{}, fmt.Errorf("%w: get status: %w", domain.ErrStorage, err)
	}
	return s, nil
}

// FindMany reads the count and the page in one REPEATABLE READ snapshot.
func (r *PgStatusRepository) FindMany(ctx context.Context, q domain.PageQuery) (domain.Page, error) {
	q = q.Normalize()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error starting listing transaction", "error", err)
		return domain.Page{}, fmt.Errorf("%w: begin listing: %w", domain.ErrStorage, err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.logger.WarnContext(ctx, "Error rolling back listing transaction", "error", rbErr)
			}
		}
	}()

	var total int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM statuses`).Scan(&total); err != nil {
		r.logger.ErrorContext(ctx, "Error counting statuses", "error", err)
		return domain.Page{}, fmt.Errorf("%w: count statuses: %w", domain.ErrStorage, err)
	}

	items := []domain.Status{}
	if int64(q.Offset()) < total {
		query := `
			SELECT ` + statusColumns + `
			FROM statuses
			ORDER BY "timestamp" DESC NULLS FIRST, seq DESC
			LIMIT $1 OFFSET $2
		`
		rows, err := tx.Query(ctx, query, q.PerPage, q.Offset())
		if err != nil {
			r.logger.ErrorContext(ctx, "Error listing statuses", "error", err, "page", q.Page, "per_page", q.PerPage)
			return domain.Page{}, fmt.Errorf("%w: list statuses: %w", domain.ErrStorage, err)
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanStatus(rows)
			if err != nil {
				r.logger.ErrorContext(ctx, "Error scanning status row", "error", err)
				return domain.Page{}, fmt.Errorf("%w: scan status: %w", domain.ErrStorage, err)
			}
			items = append(items, s)
		}
		if err := rows.Err(); err != nil {
			r.logger.ErrorContext(ctx, "Error iterating status rows", "error", err)
			return domain.Page{}, fmt.Errorf("%w: iterate statuses: %w", domain.ErrStorage, err)
		}
		rows.Close()
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Page{}, fmt.Errorf("%w: commit listing: %w", domain.ErrStorage, err)
	}
	committed = true
	return domain.NewPage(q, items, total), nil
}

// Update applies a partial update in a single statement; absent fields keep
// their stored value.
func (r *PgStatusRepository) Update(ctx context.Context, id uuid.UUID, in domain.UpdateStatusInput) (domain.Status, error) {
	if err := in.Validate(); err != nil {
		return domain.Status{}, err
	}
	in = in.Normalize()

	query := `
		UPDATE statuses SET
			email       = COALESCE($2, email),
			send_id     = COALESCE($3, send_id),
			list_id     = COALESCE($4, list_id),
			bounce_type = COALESCE($5, bounce_type),
			bounce_text = COALESCE($6, bounce_text),
			"timestamp" = COALESCE($7, "timestamp")
		WHERE id = $1
		RETURNING ` + statusColumns
	s, err := scanStatus(r.db.QueryRow(ctx, query,
		id, in.Email, in.SendID, in.ListID, in.BounceType, in.BounceText, in.Timestamp,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Status not found for update", "status_id", id)
			return domain.Status{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		r.logger.ErrorContext(ctx, "Error updating status", "error", err, "status_id", id)
		return domain.Status{}, fmt.Errorf("%w: update status: %w", domain.ErrStorage, err)
	}
	r.logger.InfoContext(ctx, "Status updated", "status_id", id)
	return s, nil
}

func (r *PgStatusRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM statuses WHERE id = $1`, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error deleting status", "error", err, "status_id", id)
		return fmt.Errorf("%w: delete status: %w", domain.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Status not found for delete", "status_id", id)
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	r.logger.InfoContext(ctx, "Status deleted", "status_id", id)
	return nil
}

func scanStatus(row pgx.Row) (domain.Status, error) {
	var s domain.Status
	err := row.Scan(&s.Seq, &s.ID, &s.CreatedAt, &s.Email, &s.SendID, &s.ListID, &s.BounceType, &s.BounceText, &s.Timestamp)
	if err != nil {
		return domain.Status{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	if s.Timestamp != nil {
		t := s.Timestamp.UTC()
		s.Timestamp = &t
	}
	return s, nil
}
