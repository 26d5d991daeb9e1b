package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Prompt("box", OutcomeCommitted)
	m.Prompt("box", OutcomeCommitted)
	m.Prompt("point", OutcomeRejected)
	m.Segmentation(ResultOK, 200*time.Millisecond)
	m.Segmentation(ResultStale, 0)
	m.Focus()
	m.SetObjects(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Prompts.WithLabelValues("box", OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Prompts.WithLabelValues("point", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Segmentations.WithLabelValues(ResultStale)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FocusEntered))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Objects))

	n, err := testutil.GatherAndCount(reg, "annotator_segmentation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Prompt("box", OutcomeCommitted)
		m.Segmentation(ResultError, time.Second)
		m.Focus()
		m.SetObjects(1)
	})
}

func TestUnregistered(t *testing.T) {
	m := New(nil)
	m.Focus()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FocusEntered))
}
