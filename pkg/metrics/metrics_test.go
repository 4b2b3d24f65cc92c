package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshake(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewHandshake(reg)
	require.NoError(t, err)

	h.Started("guest")
	h.Started("guest")
	h.Started("auth")
	h.Finished(OutcomeAdmitted, 10*time.Millisecond)
	h.Finished("credential", time.Millisecond)
	h.SessionAdded()
	h.SessionAdded()
	h.SessionRemoved()

	assert.Equal(t, 2.0, testutil.ToFloat64(h.Attempts.WithLabelValues("guest")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Attempts.WithLabelValues("auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Outcomes.WithLabelValues(OutcomeAdmitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Sessions))
	assert.Equal(t, 2, testutil.CollectAndCount(h.Latency))

	_, err = NewHandshake(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestHandshake_Nil(t *testing.T) {
	var h *Handshake
	assert.NotPanics(t, func() {
		h.Started("guest")
		h.Finished(OutcomeAdmitted, time.Second)
		h.SessionAdded()
		h.SessionRemoved()
	})

	h, err := NewHandshake(nil)
	require.NoError(t, err)
	h.Started("guest")
}
