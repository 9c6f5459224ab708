package boxes

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for boxes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const boxColumns = `id, COALESCE(code, ''), state, COALESCE(location, ''), COALESCE(description, ''), version, created_at, updated_at`

func scanBox(row pgx.Row) (Box, error) {
	var box Box
	err := row.Scan(&box.ID, &box.Code, &box.State, &box.Location, &box.Description, &box.Version, &box.CreatedAt, &box.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Box{}, ErrNotFound
		}
		return Box{}, err
	}
	return box, nil
}

// GetByID returns the box header without children.
func (r *Repository) GetByID(ctx context.Context, id int64) (Box, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+boxColumns+` FROM transport_boxes WHERE id=$1`, id)
	return scanBox(row)
}

// GetByIDWithChildren returns the box with items and state log.
func (r *Repository) GetByIDWithChildren(ctx context.Context, id int64) (Box, error) {
	box, err := r.GetByID(ctx, id)
	if err != nil {
		return Box{}, err
	}
	if box.Items, err = r.listItems(ctx, id); err != nil {
		return Box{}, err
	}
	if box.StateLog, err = r.listStateLog(ctx, id); err != nil {
		return Box{}, err
	}
	return box, nil
}

func (r *Repository) listItems(ctx context.Context, boxID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, box_id, product_code, COALESCE(product_name, ''), amount FROM box_items WHERE box_id=$1 ORDER BY id`, boxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.BoxID, &item.ProductCode, &item.ProductName, &item.Amount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) listStateLog(ctx context.Context, boxID int64) ([]StateLogEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, box_id, state, occurred_at, actor, COALESCE(note, '') FROM box_state_log WHERE box_id=$1 ORDER BY id`, boxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var log []StateLogEntry
	for rows.Next() {
		var entry StateLogEntry
		if err := rows.Scan(&entry.ID, &entry.BoxID, &entry.State, &entry.At, &entry.Actor, &entry.Note); err != nil {
			return nil, err
		}
		log = append(log, entry)
	}
	return log, rows.Err()
}

// FindByState lists box headers in the given state, oldest first.
func (r *Repository) FindByState(ctx context.Context, state State) ([]Box, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+boxColumns+` FROM transport_boxes WHERE state=$1 ORDER BY id`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Box
	for rows.Next() {
		var box Box
		if err := rows.Scan(&box.ID, &box.Code, &box.State, &box.Location, &box.Description, &box.Version, &box.CreatedAt, &box.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, box)
	}
	return result, rows.Err()
}

// IsCodeActive reports whether another box holds the code in an active state.
func (r *Repository) IsCodeActive(ctx context.Context, code string, excludeBoxID int64) (bool, error) {
	states := ActiveStates()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transport_boxes WHERE code=$1 AND id<>$2 AND state = ANY($3))`,
		code, excludeBoxID, names,
	).Scan(&exists)
	return exists, err
}

// FindStockedByCode lists Stocked boxes still holding the code.
func (r *Repository) FindStockedByCode(ctx context.Context, code string) ([]Box, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+boxColumns+` FROM transport_boxes WHERE code=$1 AND state=$2 ORDER BY id`, code, string(StateStocked))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Box
	for rows.Next() {
		var box Box
		if err := rows.Scan(&box.ID, &box.Code, &box.State, &box.Location, &box.Description, &box.Version, &box.CreatedAt, &box.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, box)
	}
	return result, rows.Err()
}

// Create inserts the box, its items and the first state log entry atomically.
func (r *Repository) Create(ctx context.Context, box *Box, entry StateLogEntry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO transport_boxes (code, state, location, description, version, created_at, updated_at)
			 VALUES (NULLIF($1, ''), $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $6)
			 RETURNING id`,
			box.Code, string(box.State), box.Location, box.Description, box.Version, box.CreatedAt,
		).Scan(&box.ID)
		if err != nil {
			return mapCodeConflict(err, box.Code)
		}
		for i := range box.Items {
			box.Items[i].BoxID = box.ID
			if err := insertItemTx(ctx, tx, &box.Items[i]); err != nil {
				return err
			}
		}
		entry.BoxID = box.ID
		return insertLogTx(ctx, tx, entry)
	})
}

// Save persists state, code and location under the expected version and
// appends the state log entry atomically. A stale version fails with
// ErrConcurrencyConflict; the caller retries with a fresh read.
func (r *Repository) Save(ctx context.Context, box *Box, expectedVersion int64, entry StateLogEntry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE transport_boxes
			 SET state=$1, code=NULLIF($2, ''), location=NULLIF($3, ''), version=version+1, updated_at=$4
			 WHERE id=$5 AND version=$6`,
			string(box.State), box.Code, box.Location, entry.At, box.ID, expectedVersion,
		)
		if err != nil {
			return mapCodeConflict(err, box.Code)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transport_boxes WHERE id=$1)`, box.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConcurrencyConflict
		}
		entry.BoxID = box.ID
		return insertLogTx(ctx, tx, entry)
	})
}

// InsertItem appends a product line.
func (r *Repository) InsertItem(ctx context.Context, item *Item) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO box_items (box_id, product_code, product_name, amount) VALUES ($1, $2, NULLIF($3, ''), $4) RETURNING id`,
		item.BoxID, item.ProductCode, item.ProductName, item.Amount,
	).Scan(&item.ID)
}

// DeleteItem removes a product line.
func (r *Repository) DeleteItem(ctx context.Context, boxID, itemID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM box_items WHERE id=$1 AND box_id=$2`, itemID, boxID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertItemTx(ctx context.Context, tx pgx.Tx, item *Item) error {
	return tx.QueryRow(ctx,
		`INSERT INTO box_items (box_id, product_code, product_name, amount) VALUES ($1, $2, NULLIF($3, ''), $4) RETURNING id`,
		item.BoxID, item.ProductCode, item.ProductName, item.Amount,
	).Scan(&item.ID)
}

func insertLogTx(ctx context.Context, tx pgx.Tx, entry StateLogEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO box_state_log (box_id, state, occurred_at, actor, note) VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
		entry.BoxID, string(entry.State), entry.At, entry.Actor, entry.Note,
	)
	return err
}

// mapCodeConflict converts the partial unique index on active codes into the
// domain error.
func mapCodeConflict(err error, code string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "code") {
		return &DuplicateActiveCodeError{Code: code}
	}
	return err
}
