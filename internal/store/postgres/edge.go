package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const edgeColumns = `id, project_id, from_id, to_id, relation_type, confidence, metadata, valid_from, valid_to, created_at`

type EdgeStore struct {
	db *pgxpool.Pool
}

func NewEdgeStore(db *pgxpool.Pool) *EdgeStore {
	return &EdgeStore{db: db}
}

func (s *EdgeStore) Create(ctx context.Context, e *domain.Edge) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ValidFrom.IsZero() {
		e.ValidFrom = e.CreatedAt
	}
	if e.ProjectID == "" {
		e.ProjectID = domain.DefaultProject
	}
	e.Confidence = domain.Clamp01(e.Confidence)

	return inTx(ctx, s.db, "create edge", func(tx pgx.Tx) error {
		// Lock both endpoints so a concurrent delete cannot slip in between check and insert.
		rows, err := tx.Query(ctx,
			`SELECT id FROM memories WHERE id = ANY($1) AND deleted_at IS NULL FOR SHARE`,
			[]uuid.UUID{e.FromID, e.ToID})
		if err != nil {
			return storageErr("check endpoints", err)
		}
		live := 0
		for rows.Next() {
			live++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return storageErr("check endpoints", err)
		}
		want := 2
		if e.FromID == e.ToID {
			want = 1
		}
		if live != want {
			return fmt.Errorf("%w: endpoint %s or %s is missing or deleted", domain.ErrReferential, e.FromID, e.ToID)
		}

		return insertEdge(ctx, tx, e)
	})
}

// insertEdge writes e without checking its endpoints.
func insertEdge(ctx context.Context, q dbtx, e *domain.Edge) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO edges (`+edgeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.ProjectID, e.FromID, e.ToID, e.RelationType, e.Confidence, meta,
		e.ValidFrom, e.ValidTo, e.CreatedAt,
	)
	if err != nil {
		return storageErr("insert edge", err)
	}
	return nil
}

func (s *EdgeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Edge, error) {
	return getEdge(ctx, s.db, id, false)
}

func (s *EdgeStore) Query(ctx context.Context, q domain.EdgeQuery) ([]domain.Edge, error) {
	var query string
	args := []any{q.MemoryID}

	switch q.Direction {
	case domain.DirectionOutgoing:
		query = `SELECT ` + edgeColumns + ` FROM edges WHERE from_id = $1`
	case domain.DirectionIncoming:
		query = `SELECT ` + edgeColumns + ` FROM edges WHERE to_id = $1`
	default:
		query = `SELECT ` + edgeColumns + ` FROM edges WHERE (from_id = $1 OR to_id = $1)`
	}

	if q.RelationType != "" {
		args = append(args, q.RelationType)
		query += fmt.Sprintf(` AND relation_type = $%d`, len(args))
	}

	switch {
	case q.AsOf != nil:
		args = append(args, *q.AsOf)
		query += ` AND ` + validAt(len(args))
	case !q.IncludeExpired:
		query += ` AND valid_to IS NULL`
	}

	query += ` ORDER BY valid_from DESC, created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query edges", err)
	}
	defer rows.Close()

	var edges []domain.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, storageErr("scan edge", err)
		}
		edges = append(edges, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate edges", err)
	}
	return edges, nil
}

func (s *EdgeStore) Invalidate(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Edge, error) {
	var out *domain.Edge
	err := inTx(ctx, s.db, "invalidate edge", func(tx pgx.Tx) error {
		e, err := getEdge(ctx, tx, id, true)
		if err != nil {
			return err
		}
		closed, err := e.Validity().Close(at)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyInvalidated) {
				return fmt.Errorf("%w: edge %s closed at %s", err, id, e.ValidTo.Format(time.RFC3339))
			}
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE edges SET valid_to = $1 WHERE id = $2`, closed.To, id); err != nil {
			return storageErr("invalidate edge", err)
		}
		e.ValidTo = closed.To
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *EdgeStore) DeleteByEndpoint(ctx context.Context, memoryID uuid.UUID) (int64, error) {
	return deleteEdgesByEndpoint(ctx, s.db, memoryID)
}

func deleteEdgesByEndpoint(ctx context.Context, q dbtx, memoryID uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM edges WHERE from_id = $1 OR to_id = $1`, memoryID)
	if err != nil {
		return 0, storageErr("delete edges by endpoint", err)
	}
	return tag.RowsAffected(), nil
}

func getEdge(ctx context.Context, q dbtx, id uuid.UUID, forUpdate bool) (*domain.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	e, err := scanEdge(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: edge %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get edge", err)
	}
	return e, nil
}

func scanEdge(row pgx.Row) (*domain.Edge, error) {
	var e domain.Edge
	err := row.Scan(&e.ID, &e.ProjectID, &e.FromID, &e.ToID, &e.RelationType, &e.Confidence, &e.Metadata,
		&e.ValidFrom, &e.ValidTo, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(e.Metadata) == 0 {
		e.Metadata = nil
	}
	return &e, nil
}
