package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimer_StartsNearNow(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimer_DurationGrowsWithElapsedTime(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 20*time.Millisecond)
}

func TestObservePipeline_RecordsSuccessAndFailureSeparately(t *testing.T) {
	PipelineRunsTotal.Reset()

	ObservePipeline("create", NewTimer(), nil)
	ObservePipeline("create", NewTimer(), errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("create", "failure")))
}
