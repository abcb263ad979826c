package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/google/uuid"
)

const edgeColumns = `id, project_id, from_id, to_id, relation_type, confidence, metadata, valid_from, valid_to, created_at`

type EdgeStore struct {
	db *DB
}

func NewEdgeStore(db *DB) *EdgeStore {
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

	return s.db.writeTx(ctx, "create edge", func(tx *sql.Tx) error {
		var live int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memories WHERE id IN (?, ?) AND deleted_at IS NULL`,
			e.FromID.String(), e.ToID.String()).Scan(&live)
		if err != nil {
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
func insertEdge(ctx context.Context, q querier, e *domain.Edge) error {
	meta, err := marshalMetadata(e.Metadata)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO edges (`+edgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.ProjectID, e.FromID.String(), e.ToID.String(), e.RelationType,
		e.Confidence, meta, toMillis(e.ValidFrom), nullMillis(e.ValidTo), toMillis(e.CreatedAt),
	)
	if err != nil {
		return storageErr("insert edge", err)
	}
	return nil
}

func (s *EdgeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Edge, error) {
	return getEdge(ctx, s.db, id)
}

func (s *EdgeStore) Query(ctx context.Context, q domain.EdgeQuery) ([]domain.Edge, error) {
	var query string
	var args []any

	switch q.Direction {
	case domain.DirectionOutgoing:
		query = `SELECT ` + edgeColumns + ` FROM edges WHERE from_id = ?`
		args = append(args, q.MemoryID.String())
	case domain.DirectionIncoming:
		query = `SELECT ` + edgeColumns + ` FROM edges WHERE to_id = ?`
		args = append(args, q.MemoryID.String())
	default: // both
		query = `SELECT ` + edgeColumns + ` FROM edges WHERE (from_id = ? OR to_id = ?)`
		args = append(args, q.MemoryID.String(), q.MemoryID.String())
	}

	if q.RelationType != "" {
		query += ` AND relation_type = ?`
		args = append(args, q.RelationType)
	}

	switch {
	case q.AsOf != nil:
		query += ` AND ` + validAt("")
		args = append(args, toMillis(*q.AsOf), toMillis(*q.AsOf))
	case !q.IncludeExpired:
		query += ` AND valid_to IS NULL`
	}

	query += ` ORDER BY valid_from DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	err := s.db.writeTx(ctx, "invalidate edge", func(tx *sql.Tx) error {
		e, err := getEdge(ctx, tx, id)
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

		_, err = tx.ExecContext(ctx,
			`UPDATE edges SET valid_to = ? WHERE id = ? AND valid_to IS NULL`,
			nullMillis(closed.To), id.String())
		if err != nil {
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
	var n int64
	err := s.db.writeTx(ctx, "delete edges by endpoint", func(tx *sql.Tx) error {
		var err error
		n, err = deleteEdgesByEndpoint(ctx, tx, memoryID)
		return err
	})
	return n, err
}

// deleteEdgesByEndpoint is shared with MemoryStore.HardDelete so the cascade
// runs inside the caller's transaction.
func deleteEdgesByEndpoint(ctx context.Context, q querier, memoryID uuid.UUID) (int64, error) {
	res, err := q.ExecContext(ctx,
		`DELETE FROM edges WHERE from_id = ? OR to_id = ?`, memoryID.String(), memoryID.String())
	if err != nil {
		return 0, storageErr("delete edges by endpoint", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete edges by endpoint", err)
	}
	return n, nil
}

func getEdge(ctx context.Context, q querier, id uuid.UUID) (*domain.Edge, error) {
	e, err := scanEdge(q.QueryRowContext(ctx, `SELECT `+edgeColumns+` FROM edges WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: edge %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get edge", err)
	}
	return e, nil
}

func scanEdge(row rowScanner) (*domain.Edge, error) {
	var (
		e                  domain.Edge
		id, from, to, meta string
		validFrom, created int64
		validTo            sql.NullInt64
	)
	err := row.Scan(&id, &e.ProjectID, &from, &to, &e.RelationType, &e.Confidence, &meta,
		&validFrom, &validTo, &created)
	if err != nil {
		return nil, err
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse edge id: %w", err)
	}
	if e.FromID, err = uuid.Parse(from); err != nil {
		return nil, fmt.Errorf("parse from_id: %w", err)
	}
	if e.ToID, err = uuid.Parse(to); err != nil {
		return nil, fmt.Errorf("parse to_id: %w", err)
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	e.ValidFrom = fromMillis(validFrom)
	e.ValidTo = timePtr(validTo)
	e.CreatedAt = fromMillis(created)
	return &e, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}
