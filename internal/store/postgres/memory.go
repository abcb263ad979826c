package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

const maxChainWalk = 10000

const memoryColumns = `id, project_id, content, type, tags, importance, strength, access_count,
	confidence, source_count, contradiction_count, supersedes, superseded_by,
	valid_from, valid_to, COALESCE(embedding_ref, ''), created_at, last_accessed_at, deleted_at`

type MemoryStore struct {
	db *pgxpool.Pool
}

func NewMemoryStore(db *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) Create(ctx context.Context, m *domain.Memory) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.LastAccessedAt.IsZero() {
		m.LastAccessedAt = m.CreatedAt
	}
	if m.ValidFrom.IsZero() {
		m.ValidFrom = m.CreatedAt
	}
	m.Normalize()

	_, err := s.db.Exec(ctx,
		`INSERT INTO memories (id, project_id, content, type, tags, importance, strength, access_count,
		                       confidence, source_count, contradiction_count, supersedes, superseded_by,
		                       valid_from, valid_to, embedding_ref, created_at, last_accessed_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULLIF($16, ''), $17, $18, $19)`,
		m.ID, m.ProjectID, m.Content, m.Type, m.Tags, m.Importance, m.Strength, m.AccessCount,
		m.Confidence, m.SourceCount, m.ContradictionCount, m.Supersedes, m.SupersededBy,
		m.ValidFrom, m.ValidTo, m.EmbeddingRef, m.CreatedAt, m.LastAccessedAt, m.DeletedAt,
	)
	if err != nil {
		return storageErr("insert memory", err)
	}
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	return getMemory(ctx, s.db, id, false, false)
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Memory, error) {
	out := make(map[uuid.UUID]*domain.Memory, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, storageErr("get memories", err)
	}
	defer rows.Close()

	mems, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}
	for i := range mems {
		out[mems[i].ID] = &mems[i]
	}
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Memory, error) {
	var conditions []string
	var args []any

	if opts.ProjectID != "" {
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(args)+1))
		args = append(args, opts.ProjectID)
	}
	if !opts.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}
	if opts.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, string(*opts.Type))
	}
	if opts.Tag != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", len(args)+1))
		args = append(args, opts.Tag)
	}
	switch {
	case opts.AsOf != nil:
		conditions = append(conditions, validAt(len(args)+1))
		args = append(args, *opts.AsOf)
	case !opts.IncludeSuperseded:
		conditions = append(conditions, "valid_to IS NULL")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + memoryColumns + ` FROM memories`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY last_accessed_at DESC, created_at DESC, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, opts.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list memories", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *MemoryStore) Modify(ctx context.Context, id uuid.UUID, fn func(m *domain.Memory) error) (*domain.Memory, error) {
	var out *domain.Memory
	err := inTx(ctx, s.db, "modify memory", func(tx pgx.Tx) error {
		m, err := getMemory(ctx, tx, id, false, true)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
		m.Normalize()

		_, err = tx.Exec(ctx,
			`UPDATE memories
			 SET content = $1, type = $2, tags = $3, importance = $4, strength = $5, access_count = $6,
			     confidence = $7, source_count = $8, contradiction_count = $9, last_accessed_at = $10
			 WHERE id = $11`,
			m.Content, m.Type, m.Tags, m.Importance, m.Strength, m.AccessCount,
			m.Confidence, m.SourceCount, m.ContradictionCount, m.LastAccessedAt, id,
		)
		if err != nil {
			return storageErr("update memory", err)
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memories SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`, at, id)
	if err != nil {
		return storageErr("soft delete memory", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: memory %s", domain.ErrNotFound, id)
	}
	return nil
}

func (s *MemoryStore) HardDelete(ctx context.Context, id uuid.UUID) (int64, error) {
	var removed int64
	err := inTx(ctx, s.db, "hard delete memory", func(tx pgx.Tx) error {
		if _, err := getMemory(ctx, tx, id, true, true); err != nil {
			return err
		}

		n, err := deleteEdgesByEndpoint(ctx, tx, id)
		if err != nil {
			return err
		}
		removed = n

		if _, err := tx.Exec(ctx, `UPDATE memories SET supersedes = NULL WHERE supersedes = $1`, id); err != nil {
			return storageErr("unlink successor", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE memories SET superseded_by = NULL, valid_to = NULL WHERE superseded_by = $1`, id); err != nil {
			return storageErr("reopen predecessor", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id); err != nil {
			return storageErr("delete memory", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *MemoryStore) Supersede(ctx context.Context, oldID, newID uuid.UUID, at time.Time) (*domain.Edge, error) {
	var edge *domain.Edge
	err := inTx(ctx, s.db, "supersede memory", func(tx pgx.Tx) error {
		old, err := getMemory(ctx, tx, oldID, false, true)
		if err != nil {
			return err
		}
		next, err := getMemory(ctx, tx, newID, false, true)
		if err != nil {
			return err
		}

		if old.SupersededBy != nil {
			return fmt.Errorf("%w: %s is superseded by %s", domain.ErrAlreadySuperseded, oldID, *old.SupersededBy)
		}
		if old.ValidTo != nil {
			return fmt.Errorf("%w: %s stopped being valid at %s", domain.ErrAlreadySuperseded, oldID, old.ValidTo.Format(time.RFC3339))
		}
		if err := checkAncestors(ctx, tx, old, newID); err != nil {
			return err
		}
		if next.Supersedes != nil || next.SupersededBy != nil {
			return domain.NewValidationError("new_id", "is already part of another supersession chain")
		}
		closed, err := old.Validity().Close(at)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE memories SET valid_to = $1, superseded_by = $2 WHERE id = $3`,
			closed.To, newID, oldID); err != nil {
			return storageErr("close old memory", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE memories SET valid_from = $1, supersedes = $2 WHERE id = $3`,
			at, oldID, newID); err != nil {
			return storageErr("open new memory", err)
		}

		edge = domain.SupersessionEdge(old, newID, at, time.Now().UTC())
		return insertEdge(ctx, tx, edge)
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

func checkAncestors(ctx context.Context, q dbtx, old *domain.Memory, target uuid.UUID) error {
	if old.ID == target {
		return fmt.Errorf("%w: %s cannot supersede itself", domain.ErrCycleDetected, target)
	}
	cur := old.Supersedes
	for steps := 0; cur != nil && steps < maxChainWalk; steps++ {
		if *cur == target {
			return fmt.Errorf("%w: %s is an ancestor of %s", domain.ErrCycleDetected, target, old.ID)
		}
		var parent *uuid.UUID
		err := q.QueryRow(ctx, `SELECT supersedes FROM memories WHERE id = $1`, *cur).Scan(&parent)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return storageErr("walk supersession chain", err)
		}
		cur = parent
	}
	return nil
}

func (s *MemoryStore) AttachEmbedding(ctx context.Context, id uuid.UUID, ref string, vector []float32) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memories SET embedding_ref = $1, embedding = $2 WHERE id = $3 AND deleted_at IS NULL`,
		ref, pgvector.NewVector(vector), id)
	if err != nil {
		return storageErr("attach embedding", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: memory %s", domain.ErrNotFound, id)
	}
	return nil
}

func (s *MemoryStore) GetEmbedding(ctx context.Context, id uuid.UUID) ([]float32, error) {
	var vec *pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT embedding FROM memories WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && vec == nil) {
		return nil, fmt.Errorf("%w: embedding for memory %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get embedding", err)
	}
	return vec.Slice(), nil
}

func (s *MemoryStore) WeakenIdle(ctx context.Context, idleSince time.Time, factor float64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE memories SET strength = GREATEST($1, strength * $2)
		 WHERE deleted_at IS NULL AND last_accessed_at < $3 AND strength > $1`,
		domain.MinStrength, factor, idleSince)
	if err != nil {
		return 0, storageErr("weaken idle memories", err)
	}
	return tag.RowsAffected(), nil
}

func getMemory(ctx context.Context, q dbtx, id uuid.UUID, includeDeleted, forUpdate bool) (*domain.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m, err := scanMemory(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: memory %s", domain.ErrNotFound, id)
		}
		return nil, storageErr("get memory", err)
	}
	return m, nil
}

func scanMemory(row pgx.Row) (*domain.Memory, error) {
	m := &domain.Memory{}
	err := row.Scan(&m.ID, &m.ProjectID, &m.Content, &m.Type, &m.Tags, &m.Importance, &m.Strength, &m.AccessCount,
		&m.Confidence, &m.SourceCount, &m.ContradictionCount, &m.Supersedes, &m.SupersededBy,
		&m.ValidFrom, &m.ValidTo, &m.EmbeddingRef, &m.CreatedAt, &m.LastAccessedAt, &m.DeletedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanMemories(rows pgx.Rows) ([]domain.Memory, error) {
	var out []domain.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, storageErr("scan memory", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate memories", err)
	}
	return out, nil
}

// validAt renders [valid_from, valid_to) containment against parameter $n.
func validAt(n int) string {
	return fmt.Sprintf("(valid_from <= $%d AND (valid_to IS NULL OR valid_to > $%d))", n, n)
}
