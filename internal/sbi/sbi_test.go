package sbi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xappctx "github.com/free5gc/hwxapp/internal/context"
	"github.com/free5gc/hwxapp/internal/indication"
	"github.com/free5gc/hwxapp/internal/metrics"
	"github.com/free5gc/hwxapp/internal/storage"
	"github.com/free5gc/hwxapp/pkg/factory"
)

// ---- registry client ----

func newTestClient(baseURL string) RegistryClient {
	return NewRegistryClient(factory.RegistrySection{BaseURL: baseURL, TimeoutMs: 2000}, metrics.New())
}

func TestIntBytesJSON(t *testing.T) {
	encoded, err := json.Marshal(struct {
		Data IntBytes `json:"data"`
	}{Data: IntBytes{0x00, 0x7f, 0xff}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[0,127,255]}`, string(encoded))

	var decoded IntBytes
	require.NoError(t, json.Unmarshal([]byte(`[1,2,255]`), &decoded))
	assert.Equal(t, IntBytes{1, 2, 255}, decoded)
	assert.Error(t, json.Unmarshal([]byte(`[256]`), &decoded))

	empty, err := json.Marshal(IntBytes(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestSubscribeSendsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "/ric/v1/subscriptions", request.URL.Path)
		assert.Equal(t, "application/json", request.Header.Get("Content-Type"))
		_, parseError := uuid.Parse(request.Header.Get(requestIDHeader))
		assert.NoError(t, parseError)

		var params SubscriptionParams
		assert.NoError(t, json.NewDecoder(request.Body).Decode(&params))
		assert.Equal(t, "gnb-1", params.Meid)
		assert.Equal(t, IntBytes{0x01, 0x02}, params.SubscriptionDetails[0].EventTriggers)

		writer.WriteHeader(http.StatusCreated)
		_, _ = writer.Write([]byte(`{"SubscriptionId":"abc-123"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL + "/ric/v1/")
	subscriptionID, err := client.Subscribe(context.Background(), SubscriptionParams{
		Meid:                "gnb-1",
		SubscriptionDetails: []SubscriptionDetail{{EventTriggers: IntBytes{0x01, 0x02}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", subscriptionID)
}

func TestSubscribeFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantReason string
	}{
		{name: "bad request", status: http.StatusBadRequest, body: "invalid meid", wantStatus: http.StatusBadRequest},
		{name: "ok is not created", status: http.StatusOK, body: `{"SubscriptionId":"x"}`, wantStatus: http.StatusOK},
		{name: "malformed body", status: http.StatusCreated, body: "{", wantStatus: http.StatusCreated, wantReason: "malformed"},
		{name: "empty id", status: http.StatusCreated, body: `{"SubscriptionId":""}`, wantStatus: http.StatusCreated, wantReason: "empty"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				writer.WriteHeader(tc.status)
				_, _ = writer.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Subscribe(context.Background(), SubscriptionParams{Meid: "gnb-1"})
			var registryErr *RegistryError
			require.True(t, errors.As(err, &registryErr), "got %v", err)
			assert.Equal(t, OperationSubscribe, registryErr.Op)
			assert.Equal(t, tc.wantStatus, registryErr.StatusCode)
			if tc.wantReason != "" {
				assert.Contains(t, registryErr.Reason, tc.wantReason)
			}
		})
	}
}

func TestSubscribeTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	_, err := newTestClient(baseURL).Subscribe(context.Background(), SubscriptionParams{Meid: "gnb-1"})
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, OperationSubscribe, transportErr.Op)
	assert.Equal(t, baseURL+"/subscriptions", transportErr.URL)
}

func TestSubscribeRequiresMeid(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").Subscribe(context.Background(), SubscriptionParams{})
	assert.Error(t, err)
}

func TestUnsubscribe(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodDelete, request.Method)
		assert.Equal(t, "/subscriptions/abc-123", request.URL.Path)
		writer.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	require.NoError(t, client.Unsubscribe(context.Background(), "abc-123"))

	status.Store(http.StatusOK)
	err := client.Unsubscribe(context.Background(), "abc-123")
	var registryErr *RegistryError
	require.True(t, errors.As(err, &registryErr))
	assert.Equal(t, OperationUnsubscribe, registryErr.Op)

	assert.Error(t, client.Unsubscribe(context.Background(), ""))
}

func TestUnsubscribeEscapesIdentifier(t *testing.T) {
	var escapedPath atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		escapedPath.Store(request.URL.EscapedPath())
		assert.Empty(t, request.URL.RawQuery)
		writer.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	require.NoError(t, newTestClient(server.URL).Unsubscribe(context.Background(), "a/b?c#d"))
	assert.Equal(t, "/subscriptions/a%2Fb%3Fc%23d", escapedPath.Load())
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://h/ric/v1/subscriptions/x", joinURL("http://h/ric/v1/", "/subscriptions/", "x"))
	assert.Equal(t, "http://h", joinURL("http://h/", "", ""))
}

// ---- xApp server ----

type fakeReadiness bool

func (ready fakeReadiness) Ready() bool { return bool(ready) }

type fakeInjector struct {
	source  string
	payload []byte
	err     error
}

func (injector *fakeInjector) Deliver(messageType int, source string, payload []byte) error {
	injector.source = source
	injector.payload = payload
	return injector.err
}

func newTestServer(t *testing.T, ready bool) (*XappServer, xappctx.RuntimeContext, storage.Store, *fakeInjector) {
	t.Helper()

	runtime := xappctx.NewRuntimeContext()
	store, err := storage.NewStoreFromConfig(factory.StorageSection{Driver: "memory"})
	require.NoError(t, err)
	injector := &fakeInjector{}

	server := NewXappServer(XappServerOptions{
		Records:   runtime,
		Summaries: store,
		Readiness: fakeReadiness(ready),
		Injector:  injector,
		Metrics:   metrics.New().Handler(),
	})
	return server, runtime, store, injector
}

func serve(server *XappServer, method, target string, body []byte) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(method, target, bytes.NewReader(body)))
	return recorder
}

func TestHealthRoutes(t *testing.T) {
	server, _, _, _ := newTestServer(t, false)

	assert.Equal(t, http.StatusOK, serve(server, http.MethodGet, "/ric/v1/health/alive", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(server, http.MethodGet, "/ric/v1/health/ready", nil).Code)

	readyServer, _, _, _ := newTestServer(t, true)
	assert.Equal(t, http.StatusOK, serve(readyServer, http.MethodGet, "/ric/v1/health/ready", nil).Code)
}

func TestSubscriptionResponseAlwaysOK(t *testing.T) {
	server, _, _, _ := newTestServer(t, true)

	notification := []byte(`{"SubscriptionId":"abc-123","SubscriptionInstances":[{"XappEventInstanceId":12345,"E2EventInstanceId":1}]}`)
	assert.Equal(t, http.StatusOK, serve(server, http.MethodPost, "/ric/v1/subscriptions/response", notification).Code)
	assert.Equal(t, http.StatusOK, serve(server, http.MethodPost, "/ric/v1/subscriptions/response", []byte("garbage")).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(server, http.MethodGet, "/ric/v1/subscriptions/response", nil).Code)
}

func TestMethodMismatchIsNotAllowed(t *testing.T) {
	server, _, _, _ := newTestServer(t, true)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(server, http.MethodDelete, "/ric/v1/health/alive", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(server, http.MethodPut, "/ric/v1/indications", nil).Code)
	assert.Equal(t, http.StatusOK, serve(server, http.MethodGet, "/ric/v1/indications", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(server, http.MethodGet, "/ric/v1/unknown", nil).Code)
}

func TestListSubscriptions(t *testing.T) {
	server, runtime, _, _ := newTestServer(t, true)
	ctx := context.Background()

	key, err := runtime.BeginSubscription(ctx, "gnb-1")
	require.NoError(t, err)
	require.NoError(t, runtime.ActivateSubscription(ctx, key, "abc-123"))

	recorder := serve(server, http.MethodGet, "/ric/v1/subscriptions", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "abc-123", records[0]["subscriptionId"])
	assert.Equal(t, "Active", records[0]["state"])
}

func TestIndicationRoutes(t *testing.T) {
	server, _, store, _ := newTestServer(t, true)
	ctx := context.Background()

	for _, node := range []string{"gnb-1", "gnb-2", "gnb-1"} {
		require.NoError(t, store.SaveSummary(ctx, indication.Summary{NodeID: node, ReceivedAt: time.Now()}))
	}

	recorder := serve(server, http.MethodGet, "/ric/v1/indications?node=gnb-1&limit=1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var summaries []indication.Summary
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "gnb-1", summaries[0].NodeID)

	assert.Equal(t, http.StatusBadRequest, serve(server, http.MethodGet, "/ric/v1/indications?limit=zero", nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(server, http.MethodDelete, "/ric/v1/indications", nil).Code)
	assert.Equal(t, http.StatusNoContent, serve(server, http.MethodDelete, "/ric/v1/indications?node=gnb-1", nil).Code)

	remaining, err := store.QuerySummaries(ctx, storage.Query{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "gnb-2", remaining[0].NodeID)
}

func TestInjectIndication(t *testing.T) {
	server, _, _, injector := newTestServer(t, true)

	recorder := serve(server, http.MethodPost, "/ric/v1/indications/inject?node=gnb-9", []byte{0x01, 0x02})
	assert.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Equal(t, "gnb-9", injector.source)
	assert.Equal(t, []byte{0x01, 0x02}, injector.payload)

	assert.Equal(t, http.StatusBadRequest, serve(server, http.MethodPost, "/ric/v1/indications/inject", nil).Code)

	injector.err = errors.New("transport: stopped")
	assert.Equal(t, http.StatusServiceUnavailable,
		serve(server, http.MethodPost, "/ric/v1/indications/inject?node=gnb-9", []byte{0x01}).Code)
}

func TestInjectRouteAbsentWithoutInjector(t *testing.T) {
	server := NewXappServer(XappServerOptions{})
	recorder := serve(server, http.MethodPost, "/ric/v1/indications/inject?node=gnb-1", nil)
	assert.NotEqual(t, http.StatusAccepted, recorder.Code)

	recorder = serve(server, http.MethodGet, "/ric/v1/subscriptions", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "[]", strings.TrimSpace(recorder.Body.String()))
}

func TestMetricsRoute(t *testing.T) {
	server, _, _, _ := newTestServer(t, true)

	recorder := serve(server, http.MethodGet, "/ric/v1/metrics", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	body, err := io.ReadAll(recorder.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hwxapp_active_subscriptions")
}
