// This file implements the xApp HTTP server bound to the "http" port.
//
// Exposed endpoints:
//
//	GET    /ric/v1/health/alive              - liveness
//	GET    /ric/v1/health/ready              - transport framework ready
//	POST   /ric/v1/subscriptions/response    - registry notification callback
//	GET    /ric/v1/subscriptions             - tracked subscription records
//	GET    /ric/v1/indications?node=&limit=  - recent indication summaries
//	DELETE /ric/v1/indications?node=         - drop stored summaries of a node
//	POST   /ric/v1/indications/inject?node=  - loopback delivery of a raw E2AP buffer
//	GET    /ric/v1/metrics                   - Prometheus metrics
package sbi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	xappctx "github.com/free5gc/hwxapp/internal/context"
	"github.com/free5gc/hwxapp/internal/indication"
	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/internal/storage"
	"github.com/free5gc/hwxapp/internal/transport"
)

const (
	apiPrefix = "/ric/v1"

	defaultIndicationLimit = 50
	maxIndicationLimit     = 1000
)

// RecordSource exposes subscription records for the status API.
type RecordSource interface {
	GetSubscriptionsSnapshot() []xappctx.SubscriptionRecord
}

// SummarySource exposes stored indication summaries.
type SummarySource interface {
	QuerySummaries(ctx context.Context, query storage.Query) ([]indication.Summary, error)
	DeleteByNode(ctx context.Context, nodeID string) (int, error)
}

// ReadinessProbe reports whether the transport framework is ready.
type ReadinessProbe interface {
	Ready() bool
}

// XappServerOptions holds the collaborators of the HTTP server. Injector and
// Metrics are optional; their routes are not registered when nil.
type XappServerOptions struct {
	Records    RecordSource
	Summaries  SummarySource
	Readiness  ReadinessProbe
	Injector   transport.Injector
	Metrics    http.Handler
	MaxBodyLen int64
}

// XappServer serves the xApp HTTP API.
type XappServer struct {
	records           RecordSource
	summaries         SummarySource
	readiness         ReadinessProbe
	injector          transport.Injector
	metricsHandler    http.Handler
	maxRequestBodyLen int64

	router *mux.Router
}

// NewXappServer creates the server and registers its routes.
func NewXappServer(options XappServerOptions) *XappServer {
	maxBodyLen := options.MaxBodyLen
	if maxBodyLen <= 0 {
		maxBodyLen = 1 << 20 // 1 MiB
	}

	server := &XappServer{
		records:           options.Records,
		summaries:         options.Summaries,
		readiness:         options.Readiness,
		injector:          options.Injector,
		metricsHandler:    options.Metrics,
		maxRequestBodyLen: maxBodyLen,
		router:            mux.NewRouter(),
	}
	server.Routes(server.router)
	return server
}

// Routes registers the handlers on router. A known path requested with the
// wrong method answers 405.
func (server *XappServer) Routes(router *mux.Router) {
	router.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)

	router.HandleFunc(apiPrefix+"/health/alive", server.handleAlive).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/health/ready", server.handleReady).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/subscriptions/response", server.handleSubscriptionResponse).Methods(http.MethodPost)
	router.HandleFunc(apiPrefix+"/subscriptions", server.handleListSubscriptions).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/indications", server.handleListIndications).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/indications", server.handleDeleteIndications).Methods(http.MethodDelete)
	if server.injector != nil {
		router.HandleFunc(apiPrefix+"/indications/inject", server.handleInjectIndication).Methods(http.MethodPost)
	}
	if server.metricsHandler != nil {
		router.Handle(apiPrefix+"/metrics", server.metricsHandler).Methods(http.MethodGet)
	}
}

func handleMethodNotAllowed(responseWriter http.ResponseWriter, request *http.Request) {
	http.Error(responseWriter, "method not allowed", http.StatusMethodNotAllowed)
}

// Handler returns the routed handler.
func (server *XappServer) Handler() http.Handler {
	return server.router
}

// NewHTTPServer wraps the handler in an http.Server listening on listenAddr.
func (server *XappServer) NewHTTPServer(listenAddr string) *http.Server {
	return &http.Server{
		Addr:              listenAddr,
		Handler:           server.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// ---- health ----

func (server *XappServer) handleAlive(responseWriter http.ResponseWriter, request *http.Request) {
	writeJSON(responseWriter, http.StatusOK, map[string]string{"status": "alive"})
}

func (server *XappServer) handleReady(responseWriter http.ResponseWriter, request *http.Request) {
	if server.readiness != nil && !server.readiness.Ready() {
		writeJSON(responseWriter, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(responseWriter, http.StatusOK, map[string]string{"status": "ready"})
}

// ---- subscriptions ----

// handleSubscriptionResponse acknowledges every notification; the body is
// only logged.
func (server *XappServer) handleSubscriptionResponse(responseWriter http.ResponseWriter, request *http.Request) {
	limitedReader := http.MaxBytesReader(responseWriter, request.Body, server.maxRequestBodyLen)
	defer func() {
		if closeErr := limitedReader.Close(); closeErr != nil {
			logger.SbiLog.Debugf("failed to close request body reader: %v", closeErr)
		}
	}()

	rawBody, readError := io.ReadAll(limitedReader)
	if readError != nil {
		logger.SbiLog.Warnf("failed to read subscription notification: %v", readError)
		responseWriter.WriteHeader(http.StatusOK)
		return
	}

	var notification SubscriptionNotification
	if decodeError := json.Unmarshal(rawBody, &notification); decodeError != nil {
		logger.SbiLog.Warnf("subscription notification is not JSON: %v body=%q", decodeError, rawBody)
	} else {
		logger.SbiLog.Infof("subscription notification subscriptionId=%s instances=%d",
			notification.SubscriptionID, len(notification.SubscriptionInstances))
		for _, instance := range notification.SubscriptionInstances {
			if instance.ErrorCause != "" {
				logger.SbiLog.Warnf("subscriptionId=%s xappEventInstanceId=%d failed: cause=%s source=%s",
					notification.SubscriptionID, instance.XappEventInstanceID, instance.ErrorCause, instance.ErrorSource)
			}
		}
	}

	responseWriter.WriteHeader(http.StatusOK)
}

func (server *XappServer) handleListSubscriptions(responseWriter http.ResponseWriter, request *http.Request) {
	records := []xappctx.SubscriptionRecord{}
	if server.records != nil {
		records = server.records.GetSubscriptionsSnapshot()
	}
	writeJSON(responseWriter, http.StatusOK, records)
}

// ---- indications ----

func (server *XappServer) handleListIndications(responseWriter http.ResponseWriter, request *http.Request) {
	if server.summaries == nil {
		writeJSON(responseWriter, http.StatusOK, []indication.Summary{})
		return
	}

	limit := defaultIndicationLimit
	if rawLimit := request.URL.Query().Get("limit"); rawLimit != "" {
		parsed, parseError := strconv.Atoi(rawLimit)
		if parseError != nil || parsed <= 0 {
			http.Error(responseWriter, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > maxIndicationLimit {
		limit = maxIndicationLimit
	}

	summaries, queryError := server.summaries.QuerySummaries(request.Context(), storage.Query{
		NodeID: strings.TrimSpace(request.URL.Query().Get("node")),
		Limit:  limit,
	})
	if queryError != nil {
		logger.SbiLog.Errorf("failed to query indication summaries: %v", queryError)
		http.Error(responseWriter, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(responseWriter, http.StatusOK, summaries)
}

func (server *XappServer) handleDeleteIndications(responseWriter http.ResponseWriter, request *http.Request) {
	nodeID := strings.TrimSpace(request.URL.Query().Get("node"))
	if nodeID == "" {
		http.Error(responseWriter, "node is required", http.StatusBadRequest)
		return
	}
	if server.summaries == nil {
		responseWriter.WriteHeader(http.StatusNoContent)
		return
	}

	if _, deleteError := server.summaries.DeleteByNode(request.Context(), nodeID); deleteError != nil {
		logger.SbiLog.Errorf("failed to delete indication summaries for node=%s: %v", nodeID, deleteError)
		http.Error(responseWriter, "internal server error", http.StatusInternalServerError)
		return
	}
	responseWriter.WriteHeader(http.StatusNoContent)
}

// handleInjectIndication hands a raw E2AP buffer to the transport framework
// as if it had been received from node.
func (server *XappServer) handleInjectIndication(responseWriter http.ResponseWriter, request *http.Request) {
	nodeID := strings.TrimSpace(request.URL.Query().Get("node"))
	if nodeID == "" {
		http.Error(responseWriter, "node is required", http.StatusBadRequest)
		return
	}

	limitedReader := http.MaxBytesReader(responseWriter, request.Body, server.maxRequestBodyLen)
	defer func() {
		if closeErr := limitedReader.Close(); closeErr != nil {
			logger.SbiLog.Debugf("failed to close request body reader: %v", closeErr)
		}
	}()

	payload, readError := io.ReadAll(limitedReader)
	if readError != nil {
		http.Error(responseWriter, "unreadable body", http.StatusBadRequest)
		return
	}

	if deliverError := server.injector.Deliver(transport.MessageTypeRICIndication, nodeID, payload); deliverError != nil {
		logger.SbiLog.Warnf("loopback indication for node=%s rejected: %v", nodeID, deliverError)
		http.Error(responseWriter, deliverError.Error(), http.StatusServiceUnavailable)
		return
	}
	responseWriter.WriteHeader(http.StatusAccepted)
}

func writeJSON(responseWriter http.ResponseWriter, status int, body interface{}) {
	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(status)
	if encodeError := json.NewEncoder(responseWriter).Encode(body); encodeError != nil {
		logger.SbiLog.Warnf("failed to encode response body: %v", encodeError)
	}
}
