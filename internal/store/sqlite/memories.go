package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/google/uuid"
)

// maxChainWalk bounds the ancestor walk during supersession.
const maxChainWalk = 10000

const memoryColumns = `id, project_id, content, type, tags, importance, strength, access_count,
	confidence, source_count, contradiction_count, supersedes, superseded_by,
	valid_from, valid_to, embedding_ref, created_at, last_accessed_at, deleted_at`

type MemoryStore struct {
	db *DB
}

func NewMemoryStore(db *DB) *MemoryStore {
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

	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	return s.db.writeTx(ctx, "create memory", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memories (`+memoryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID.String(), m.ProjectID, m.Content, string(m.Type), string(tags),
			m.Importance, m.Strength, m.AccessCount,
			m.Confidence, m.SourceCount, m.ContradictionCount,
			nullUUID(m.Supersedes), nullUUID(m.SupersededBy),
			toMillis(m.ValidFrom), nullMillis(m.ValidTo),
			nullString(m.EmbeddingRef), toMillis(m.CreatedAt), toMillis(m.LastAccessedAt), nullMillis(m.DeletedAt),
		)
		if err != nil {
			return storageErr("insert memory", err)
		}
		return nil
	})
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	return getMemory(ctx, s.db, id, false)
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Memory, error) {
	out := make(map[uuid.UUID]*domain.Memory, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE id IN (`+placeholders(len(ids))+`) AND deleted_at IS NULL`, args...)
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
		conditions = append(conditions, "project_id = ?")
		args = append(args, opts.ProjectID)
	}
	if !opts.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}
	if opts.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, string(*opts.Type))
	}
	if opts.Tag != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM json_each(memories.tags) WHERE json_each.value = ?)")
		args = append(args, opts.Tag)
	}
	switch {
	case opts.AsOf != nil:
		conditions = append(conditions, validAt(""))
		args = append(args, toMillis(*opts.AsOf), toMillis(*opts.AsOf))
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
	query += " ORDER BY last_accessed_at DESC, created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list memories", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *MemoryStore) Modify(ctx context.Context, id uuid.UUID, fn func(m *domain.Memory) error) (*domain.Memory, error) {
	var out *domain.Memory
	err := s.db.writeTx(ctx, "modify memory", func(tx *sql.Tx) error {
		m, err := getMemory(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
		m.Normalize()

		tags, err := json.Marshal(m.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE memories
			SET content = ?, type = ?, tags = ?, importance = ?, strength = ?, access_count = ?,
			    confidence = ?, source_count = ?, contradiction_count = ?, last_accessed_at = ?
			WHERE id = ?`,
			m.Content, string(m.Type), string(tags), m.Importance, m.Strength, m.AccessCount,
			m.Confidence, m.SourceCount, m.ContradictionCount, toMillis(m.LastAccessedAt),
			id.String(),
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
	return s.db.writeTx(ctx, "soft delete memory", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
			toMillis(at), id.String())
		if err != nil {
			return storageErr("soft delete memory", err)
		}
		return requireAffected(res, "memory")
	})
}

func (s *MemoryStore) HardDelete(ctx context.Context, id uuid.UUID) (int64, error) {
	var removed int64
	err := s.db.writeTx(ctx, "hard delete memory", func(tx *sql.Tx) error {
		if _, err := getMemory(ctx, tx, id, true); err != nil {
			return err
		}

		n, err := deleteEdgesByEndpoint(ctx, tx, id)
		if err != nil {
			return err
		}
		removed = n

		// Unlink chain neighbours so no pointer dangles.
		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET supersedes = NULL WHERE supersedes = ?`, id.String()); err != nil {
			return storageErr("unlink successor", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET superseded_by = NULL, valid_to = NULL WHERE superseded_by = ?`, id.String()); err != nil {
			return storageErr("reopen predecessor", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memory_vectors WHERE memory_id = ?`, id.String()); err != nil {
			return storageErr("delete vector", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memories WHERE id = ?`, id.String()); err != nil {
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
	err := s.db.writeTx(ctx, "supersede memory", func(tx *sql.Tx) error {
		old, err := getMemory(ctx, tx, oldID, false)
		if err != nil {
			return err
		}
		next, err := getMemory(ctx, tx, newID, false)
		if err != nil {
			return err
		}

		if err := supersededErr(old); err != nil {
			return err
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

		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET valid_to = ?, superseded_by = ? WHERE id = ?`,
			nullMillis(closed.To), newID.String(), oldID.String()); err != nil {
			return storageErr("close old memory", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET valid_from = ?, supersedes = ? WHERE id = ?`,
			toMillis(at), oldID.String(), newID.String()); err != nil {
			return storageErr("open new memory", err)
		}

		edge = domain.SupersessionEdge(old, newID, at, time.Now().UTC().Truncate(time.Millisecond))
		return insertEdge(ctx, tx, edge)
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// supersededErr reports a node that can no longer be superseded.
func supersededErr(old *domain.Memory) error {
	if old.SupersededBy != nil {
		return fmt.Errorf("%w: %s is superseded by %s", domain.ErrAlreadySuperseded, old.ID, *old.SupersededBy)
	}
	if old.ValidTo != nil {
		return fmt.Errorf("%w: %s stopped being valid at %s", domain.ErrAlreadySuperseded, old.ID, old.ValidTo.Format(time.RFC3339))
	}
	return nil
}

// checkAncestors walks old's supersedes chain and fails if target is on it.
func checkAncestors(ctx context.Context, q querier, old *domain.Memory, target uuid.UUID) error {
	if old.ID == target {
		return fmt.Errorf("%w: %s cannot supersede itself", domain.ErrCycleDetected, target)
	}
	cur := old.Supersedes
	for steps := 0; cur != nil && steps < maxChainWalk; steps++ {
		if *cur == target {
			return fmt.Errorf("%w: %s is an ancestor of %s", domain.ErrCycleDetected, target, old.ID)
		}
		var parent sql.NullString
		err := q.QueryRowContext(ctx, `SELECT supersedes FROM memories WHERE id = ?`, cur.String()).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return storageErr("walk supersession chain", err)
		}
		if cur, err = uuidPtr(parent); err != nil {
			return storageErr("walk supersession chain", err)
		}
	}
	return nil
}

func (s *MemoryStore) AttachEmbedding(ctx context.Context, id uuid.UUID, ref string, vector []float32) error {
	return s.db.writeTx(ctx, "attach embedding", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET embedding_ref = ? WHERE id = ? AND deleted_at IS NULL`, ref, id.String())
		if err != nil {
			return storageErr("set embedding ref", err)
		}
		if err := requireAffected(res, "memory"); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memory_vectors (memory_id, model, dims, vector, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(memory_id) DO UPDATE SET
				model = excluded.model, dims = excluded.dims,
				vector = excluded.vector, created_at = excluded.created_at`,
			id.String(), ref, len(vector), encodeVector(vector), time.Now().UnixMilli())
		if err != nil {
			return storageErr("save vector", err)
		}
		return nil
	})
}

func (s *MemoryStore) GetEmbedding(ctx context.Context, id uuid.UUID) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT v.vector FROM memory_vectors v
		 JOIN memories m ON m.id = v.memory_id
		 WHERE v.memory_id = ? AND m.deleted_at IS NULL`, id.String()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: embedding for memory %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get embedding", err)
	}
	return decodeVector(blob), nil
}

func (s *MemoryStore) WeakenIdle(ctx context.Context, idleSince time.Time, factor float64) (int64, error) {
	var n int64
	err := s.db.writeTx(ctx, "weaken idle memories", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE memories SET strength = MAX(?, strength * ?)
			WHERE deleted_at IS NULL AND last_accessed_at < ? AND strength > ?`,
			domain.MinStrength, factor, toMillis(idleSince), domain.MinStrength)
		if err != nil {
			return storageErr("weaken idle memories", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return storageErr("weaken idle memories", err)
		}
		return nil
	})
	return n, err
}

func getMemory(ctx context.Context, q querier, id uuid.UUID, includeDeleted bool) (*domain.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	m, err := scanMemory(q.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: memory %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get memory", err)
	}
	return m, nil
}

func scanMemory(row rowScanner) (*domain.Memory, error) {
	var (
		m                        domain.Memory
		id, memType, tags        string
		supersedes, supersededBy sql.NullString
		embeddingRef             sql.NullString
		validFrom, created, acc  int64
		validTo, deletedAt       sql.NullInt64
	)
	err := row.Scan(&id, &m.ProjectID, &m.Content, &memType, &tags,
		&m.Importance, &m.Strength, &m.AccessCount,
		&m.Confidence, &m.SourceCount, &m.ContradictionCount,
		&supersedes, &supersededBy, &validFrom, &validTo,
		&embeddingRef, &created, &acc, &deletedAt)
	if err != nil {
		return nil, err
	}

	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse memory id: %w", err)
	}
	if m.Supersedes, err = uuidPtr(supersedes); err != nil {
		return nil, err
	}
	if m.SupersededBy, err = uuidPtr(supersededBy); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	m.Type = domain.MemoryType(memType)
	m.EmbeddingRef = embeddingRef.String
	m.ValidFrom = fromMillis(validFrom)
	m.ValidTo = timePtr(validTo)
	m.CreatedAt = fromMillis(created)
	m.LastAccessedAt = fromMillis(acc)
	m.DeletedAt = timePtr(deletedAt)
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]domain.Memory, error) {
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

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
