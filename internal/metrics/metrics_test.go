package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCheckInsCountedPerLabel(t *testing.T) {
	before := testutil.ToFloat64(CheckIns.WithLabelValues("accepted", "online"))
	CheckIns.WithLabelValues("accepted", "online").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(CheckIns.WithLabelValues("accepted", "online")))
}

func TestGeofenceDistanceObserved(t *testing.T) {
	before := testutil.CollectAndCount(GeofenceDistance)
	GeofenceDistance.Observe(42)
	assert.Equal(t, before, testutil.CollectAndCount(GeofenceDistance), "one histogram series")
}
