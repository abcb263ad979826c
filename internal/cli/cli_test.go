package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("JUST_MEMORY_ENV", filepath.Join(dir, "missing.env"))
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "memories.db"))
	t.Setenv("EMBEDDING_PROVIDER", "mock")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), "justmemory %v", args)
	return out.Bytes()
}

func runErr(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs(args)
	return cmd.Execute()
}

func decodeOut[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func TestStoreGetRecall(t *testing.T) {
	setupEnv(t)

	m := decodeOut[domain.Memory](t, run(t, "store", "--project", "cli", "--tag", "a", "--tag", "b", "-t", "note", "hello"))
	assert.Equal(t, "cli", m.ProjectID)
	assert.Equal(t, domain.MemoryTypeNote, m.Type)
	assert.Equal(t, []string{"a", "b"}, m.Tags)
	assert.Equal(t, "mock-64", m.EmbeddingRef)

	got := decodeOut[domain.Memory](t, run(t, "get", m.ID.String()))
	assert.Equal(t, 0, got.AccessCount)

	recalled := decodeOut[domain.Memory](t, run(t, "recall", m.ID.String()))
	assert.Equal(t, 1, recalled.AccessCount)

	list := decodeOut[[]domain.ScoredMemory](t, run(t, "list", "--project", "cli"))
	require.Len(t, list, 1)
	assert.Equal(t, m.ID, list[0].ID)

	empty := decodeOut[[]domain.ScoredMemory](t, run(t, "list"))
	assert.Empty(t, empty, "other projects are not listed")
}

func TestUpdateConfirmContradict(t *testing.T) {
	setupEnv(t)
	m := decodeOut[domain.Memory](t, run(t, "store", "claim"))
	src := decodeOut[domain.Memory](t, run(t, "store", "evidence"))

	updated := decodeOut[domain.Memory](t, run(t, "update", m.ID.String(), "--importance", "0.9"))
	assert.Equal(t, 0.9, updated.Importance)

	confirmed := decodeOut[domain.ConfirmResult](t, run(t, "confirm", m.ID.String(), "--source", src.ID.String()))
	assert.Equal(t, 2, confirmed.NewSourceCount)
	require.NotNil(t, confirmed.EdgeID)

	contradicted := decodeOut[domain.ContradictResult](t, run(t, "contradict", m.ID.String()))
	assert.Equal(t, 1, contradicted.NewContradictionCount)

	edges := decodeOut[[]domain.Edge](t, run(t, "edges", m.ID.String()))
	require.Len(t, edges, 1)
	assert.Equal(t, domain.RelationConfirms, edges[0].RelationType)
}

func TestLinkActivateInvalidate(t *testing.T) {
	setupEnv(t)
	a := decodeOut[domain.Memory](t, run(t, "store", "A"))
	b := decodeOut[domain.Memory](t, run(t, "store", "B"))

	e := decodeOut[domain.Edge](t, run(t, "link", a.ID.String(), "related_to", b.ID.String(), "--metadata", `{"why":"test"}`))
	assert.Equal(t, "test", e.Metadata["why"])

	res := decodeOut[domain.ActivationResult](t, run(t, "activate", a.ID.String()))
	assert.Equal(t, 0.5, res.ByID()[b.ID].Activation)

	closed := decodeOut[domain.Edge](t, run(t, "invalidate", e.ID.String()))
	assert.NotNil(t, closed.ValidTo)

	err := runErr(t, "invalidate", e.ID.String())
	assert.ErrorIs(t, err, domain.ErrAlreadyInvalidated)

	res = decodeOut[domain.ActivationResult](t, run(t, "activate", a.ID.String()))
	assert.Len(t, res.Nodes, 1)
}

func TestSupersedeAndDelete(t *testing.T) {
	setupEnv(t)
	old := decodeOut[domain.Memory](t, run(t, "store", "v1"))
	cur := decodeOut[domain.Memory](t, run(t, "store", "v2"))

	sup := decodeOut[domain.SupersedeResult](t, run(t, "supersede", old.ID.String(), cur.ID.String()))
	assert.Equal(t, old.ID, sup.OldID)

	err := runErr(t, "supersede", old.ID.String(), cur.ID.String())
	assert.ErrorIs(t, err, domain.ErrAlreadySuperseded)

	del := decodeOut[domain.DeleteResult](t, run(t, "delete", "--permanent", old.ID.String()))
	assert.True(t, del.Permanent)
	assert.Equal(t, int64(1), del.EdgesRemoved)

	err = runErr(t, "get", old.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSweepAndVersion(t *testing.T) {
	setupEnv(t)
	out := decodeOut[map[string]int64](t, run(t, "sweep"))
	assert.Equal(t, int64(0), out["weakened"])

	v := decodeOut[map[string]string](t, run(t, "version"))
	assert.Contains(t, v, "version")
	assert.Contains(t, v, "go")
}

func TestArgumentErrors(t *testing.T) {
	setupEnv(t)
	assert.ErrorIs(t, runErr(t, "get", "nope"), domain.ErrValidation)
	assert.ErrorIs(t, runErr(t, "list", "--type", "rumour"), domain.ErrValidation)
	assert.ErrorIs(t, runErr(t, "link", "x", "r", "y"), domain.ErrValidation)
	assert.Error(t, runErr(t, "store"))
}
