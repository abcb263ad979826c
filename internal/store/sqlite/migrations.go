package sqlite

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: decaying, versioned memory nodes",
		SQL: `
CREATE TABLE memories (
    id                  TEXT PRIMARY KEY,
    project_id          TEXT NOT NULL DEFAULT 'global',
    content             TEXT NOT NULL,
    type                TEXT NOT NULL CHECK (type IN ('fact', 'event', 'observation', 'preference', 'note', 'decision')),
    tags                TEXT NOT NULL DEFAULT '[]',
    importance          REAL NOT NULL DEFAULT 0.5,
    strength            REAL NOT NULL DEFAULT 1.0,
    access_count        INTEGER NOT NULL DEFAULT 0,
    confidence          REAL NOT NULL DEFAULT 0.5,
    source_count        INTEGER NOT NULL DEFAULT 1,
    contradiction_count INTEGER NOT NULL DEFAULT 0,

    -- Supersession chain
    supersedes          TEXT,
    superseded_by       TEXT,
    valid_from          INTEGER NOT NULL,
    valid_to            INTEGER,

    embedding_ref       TEXT,
    created_at          INTEGER NOT NULL,
    last_accessed_at    INTEGER NOT NULL,
    deleted_at          INTEGER
);

CREATE INDEX idx_memories_project     ON memories(project_id);
CREATE INDEX idx_memories_deleted_at  ON memories(deleted_at);
CREATE INDEX idx_memories_last_access ON memories(last_accessed_at);
CREATE INDEX idx_memories_supersedes  ON memories(supersedes);
`,
	},
	{
		Version:     2,
		Description: "edges: bi-temporal relationships between memories",
		SQL: `
CREATE TABLE edges (
    id            TEXT PRIMARY KEY,
    project_id    TEXT NOT NULL DEFAULT 'global',
    from_id       TEXT NOT NULL,
    to_id         TEXT NOT NULL,
    relation_type TEXT NOT NULL,
    confidence    REAL NOT NULL DEFAULT 1.0,
    metadata      TEXT NOT NULL DEFAULT '{}',
    valid_from    INTEGER NOT NULL,
    valid_to      INTEGER,
    created_at    INTEGER NOT NULL,

    FOREIGN KEY (from_id) REFERENCES memories(id),
    FOREIGN KEY (to_id)   REFERENCES memories(id)
);

CREATE INDEX idx_edges_from       ON edges(from_id);
CREATE INDEX idx_edges_to         ON edges(to_id);
CREATE INDEX idx_edges_relation   ON edges(relation_type);
CREATE INDEX idx_edges_valid_from ON edges(valid_from DESC);
`,
	},
	{
		Version:     3,
		Description: "memory_vectors: embeddings behind embedding_ref",
		SQL: `
CREATE TABLE memory_vectors (
    memory_id  TEXT PRIMARY KEY,
    model      TEXT NOT NULL,
    dims       INTEGER NOT NULL,
    vector     BLOB NOT NULL,
    created_at INTEGER NOT NULL,

    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
