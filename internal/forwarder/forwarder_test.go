package forwarder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free5gc/hwxapp/internal/indication"
	"github.com/free5gc/hwxapp/internal/metrics"
	"github.com/free5gc/hwxapp/internal/per"
	"github.com/free5gc/hwxapp/pkg/factory"
)

func counterValue(t *testing.T, collectors *metrics.Metrics, result string) float64 {
	t.Helper()
	families, err := collectors.Registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "hwxapp_forwarded_reports_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func sampleReport() *indication.Report {
	sequence := int64(3)
	return &indication.Report{
		NodeID:         "gnb-1",
		SequenceNumber: &sequence,
		Header: per.Sequence{
			"colletStartTime": per.Bytes{0x01, 0x02},
			"senderName":      per.String("du-1"),
		},
		Message: per.Sequence{
			"measData": per.List{per.Sequence{
				"measRecord": per.List{per.Choice{Tag: "integer", Value: per.Integer(42)}},
			}},
		},
	}
}

func TestForwardPostsReport(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "application/json", request.Header.Get("Content-Type"))
		assert.NotEmpty(t, request.Header.Get("X-Request-Id"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(request.Body).Decode(&body))
		received <- body
		writer.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	collectors := metrics.New()
	forwarder := NewHTTPForwarder(factory.ForwarderSection{Enabled: true, URL: server.URL}, collectors)
	forwarder.Consume(context.Background(), sampleReport())

	body := <-received
	summary, ok := body["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "gnb-1", summary["nodeId"])
	assert.Equal(t, float64(3), summary["ricIndicationSn"])

	header, ok := body["indicationHeader"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0102", header["colletStartTime"])
	assert.Equal(t, "du-1", header["senderName"])

	message, ok := body["indicationMessage"].(map[string]interface{})
	require.True(t, ok)
	measData := message["measData"].([]interface{})
	record := measData[0].(map[string]interface{})["measRecord"].([]interface{})[0]
	assert.Equal(t, map[string]interface{}{"integer": float64(42)}, record)

	assert.Equal(t, float64(1), counterValue(t, collectors, "success"))
}

func TestForwardReportsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		http.Error(writer, "downstream full", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	collectors := metrics.New()
	forwarder := NewHTTPForwarder(factory.ForwarderSection{URL: server.URL}, collectors)

	err := forwarder.Forward(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	forwarder.Consume(context.Background(), sampleReport())
	assert.Equal(t, float64(1), counterValue(t, collectors, "failure"))
}

func TestForwardIsBoundedByTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-release:
		case <-request.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	forwarder := NewHTTPForwarder(factory.ForwarderSection{URL: server.URL, TimeoutMs: 50}, metrics.New())

	startTime := time.Now()
	err := forwarder.Forward(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Less(t, time.Since(startTime), 2*time.Second)
}

func TestForwardRequiresURL(t *testing.T) {
	forwarder := NewHTTPForwarder(factory.ForwarderSection{}, metrics.New())
	assert.Error(t, forwarder.Forward(context.Background(), sampleReport()))
}
