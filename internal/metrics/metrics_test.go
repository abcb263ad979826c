package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("get: %w", domain.ErrNotFound), "not_found"},
		{domain.NewValidationError("content", "is required"), "invalid"},
		{domain.ErrReferential, "referential"},
		{domain.ErrCycleDetected, "conflict"},
		{fmt.Errorf("op: %w: %w", domain.ErrStorage, errors.New("disk")), "storage_error"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err))
	}
}

func TestCollector_Records(t *testing.T) {
	c := NewCollector()

	c.ObserveOperation("store", nil)
	c.ObserveOperation("store", nil)
	c.ObserveOperation("recall", domain.ErrNotFound)
	c.ObserveActivation(3*time.Millisecond, 4, 5, true)
	c.ObserveEmbedding(errors.New("down"))
	c.ObserveSweep(7)
	c.ObserveHTTP("GET", "/v1/memories/{id}", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Operations.WithLabelValues("store", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Operations.WithLabelValues("recall", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActivationTrunc))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Embeddings.WithLabelValues("error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.SweepWeakened))

	// Independent collectors do not collide.
	other := NewCollector()
	assert.Equal(t, 0.0, testutil.ToFloat64(other.SweepWeakened))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "just_memory_operations_total")
	assert.Contains(t, string(body), `route="/v1/memories/{id}"`)
}
