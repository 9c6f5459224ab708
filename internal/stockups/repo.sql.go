package stockups

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const operationColumns = `id, document_number, source_type, source_id, product_code, amount, state, COALESCE(error_message, ''), created_at, submitted_at, verified_at, completed_at, failed_at, updated_at`

func scanOperation(row pgx.Row) (Operation, error) {
	var op Operation
	err := row.Scan(&op.ID, &op.DocumentNumber, &op.SourceType, &op.SourceID, &op.ProductCode, &op.Amount, &op.State, &op.ErrorMessage, &op.CreatedAt, &op.SubmittedAt, &op.VerifiedAt, &op.CompletedAt, &op.FailedAt, &op.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Operation{}, ErrNotFound
		}
		return Operation{}, err
	}
	return op, nil
}

// GetByID returns a single operation.
func (r *Repository) GetByID(ctx context.Context, id int64) (Operation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+operationColumns+` FROM stock_up_operations WHERE id=$1`, id)
	return scanOperation(row)
}

// GetByDocumentNumber returns the operation with the given natural key.
func (r *Repository) GetByDocumentNumber(ctx context.Context, docNumber string) (Operation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+operationColumns+` FROM stock_up_operations WHERE document_number=$1`, docNumber)
	return scanOperation(row)
}

// GetBySource lists operations spawned by the given source entity.
func (r *Repository) GetBySource(ctx context.Context, sourceType SourceType, sourceID int64) ([]Operation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+operationColumns+` FROM stock_up_operations WHERE source_type=$1 AND source_id=$2 ORDER BY id`, string(sourceType), sourceID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// FindByState lists operations in the given state, oldest first.
func (r *Repository) FindByState(ctx context.Context, state State) ([]Operation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+operationColumns+` FROM stock_up_operations WHERE state=$1 ORDER BY id`, string(state))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Operation, error) {
	defer rows.Close()
	var result []Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.DocumentNumber, &op.SourceType, &op.SourceID, &op.ProductCode, &op.Amount, &op.State, &op.ErrorMessage, &op.CreatedAt, &op.SubmittedAt, &op.VerifiedAt, &op.CompletedAt, &op.FailedAt, &op.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	return result, rows.Err()
}

// Insert persists a new operation. A duplicate document number maps to
// ErrDuplicateDocument so spawning stays idempotent under races.
func (r *Repository) Insert(ctx context.Context, op *Operation) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO stock_up_operations (document_number, source_type, source_id, product_code, amount, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 RETURNING id`,
		op.DocumentNumber, string(op.SourceType), op.SourceID, op.ProductCode, op.Amount, string(op.State), op.CreatedAt,
	).Scan(&op.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateDocument
		}
		return err
	}
	return nil
}

// Update persists the mutable fields of an operation.
func (r *Repository) Update(ctx context.Context, op Operation) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE stock_up_operations
		 SET state=$1, error_message=NULLIF($2, ''), submitted_at=$3, verified_at=$4, completed_at=$5, failed_at=$6, updated_at=$7
		 WHERE id=$8`,
		string(op.State), op.ErrorMessage, op.SubmittedAt, op.VerifiedAt, op.CompletedAt, op.FailedAt, op.UpdatedAt, op.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
