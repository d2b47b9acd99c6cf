package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	collectors := New()
	collectors.IndicationsReceived.WithLabelValues("gnb-1").Inc()
	collectors.IndicationFailures.WithLabelValues(StageHeader).Add(2)
	collectors.ActiveSubscriptions.Set(3)

	server := httptest.NewServer(collectors.Handler())
	defer server.Close()

	response, err := http.Get(server.URL)
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)

	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `hwxapp_indications_received_total{node="gnb-1"} 1`)
	assert.Contains(t, text, `hwxapp_indication_failures_total{stage="header"} 2`)
	assert.Contains(t, text, "hwxapp_active_subscriptions 3")
	assert.Contains(t, text, "go_goroutines")
}

func TestInstancesAreIndependent(t *testing.T) {
	first := New()
	second := New()
	first.ActiveSubscriptions.Set(1)

	families, err := second.Registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "hwxapp_active_subscriptions" {
			assert.Equal(t, float64(0), family.GetMetric()[0].GetGauge().GetValue())
		}
	}
}
