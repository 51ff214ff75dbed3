package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BucketCatalog/internal/domain"
)

func TestCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inProgress))

	m.ObjectsIngested(1000)
	m.ObjectsIngested(500)
	assert.Equal(t, 1500.0, testutil.ToFloat64(m.ingested))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches))

	m.RunFinished(domain.RunSuccess)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inProgress))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("success")))

	m.LinkedObjects(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(m.linked))

	m.ObserveDuration("link", 20*time.Millisecond)
	count, err := testutil.GatherAndCount(reg, "bucketcatalog_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
