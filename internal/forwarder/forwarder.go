// Package forwarder pushes decoded indication reports to a downstream
// consumer (analytics, logging pipelines) as HTTP POSTs with a JSON body.
//
// Delivery is at most once: a failed push is logged and counted, never
// retried, and never blocks the next indication longer than the timeout.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/indication"
	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/internal/metrics"
	"github.com/free5gc/hwxapp/internal/per"
	"github.com/free5gc/hwxapp/pkg/factory"
)

// Notification is the JSON document posted for every report.
type Notification struct {
	NotificationID string             `json:"notificationId"`
	SentAt         time.Time          `json:"sentAt"`
	Summary        indication.Summary `json:"summary"`
	Header         per.Value          `json:"indicationHeader,omitempty"`
	Message        per.Value          `json:"indicationMessage,omitempty"`
}

// Forwarder hides how reports are delivered downstream.
type Forwarder interface {
	indication.Consumer

	// Forward sends one report and returns the delivery error, if any.
	Forward(ctx context.Context, report *indication.Report) error
}

type httpForwarder struct {
	url                string
	timeout            time.Duration
	httpClient         *http.Client
	metrics            *metrics.Metrics
	maxResponseBodyLen int64
}

// NewHTTPForwarder creates a Forwarder posting to forwarderConfig.URL.
func NewHTTPForwarder(forwarderConfig factory.ForwarderSection, collectors *metrics.Metrics) Forwarder {
	timeout := time.Duration(forwarderConfig.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &httpForwarder{
		url:     forwarderConfig.URL,
		timeout: timeout,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		metrics:            collectors,
		maxResponseBodyLen: 4 << 10, // 4 KiB for logging snippets
	}
}

// Consume implements indication.Consumer.
func (forwarder *httpForwarder) Consume(ctx context.Context, report *indication.Report) {
	if err := forwarder.Forward(ctx, report); err != nil {
		forwarder.metrics.ForwardedReports.WithLabelValues("failure").Inc()
		return
	}
	forwarder.metrics.ForwardedReports.WithLabelValues("success").Inc()
}

// Forward implements Forwarder.Forward.
func (forwarder *httpForwarder) Forward(ctx context.Context, report *indication.Report) error {
	if forwarder.url == "" {
		return errors.New("forwarder url must not be empty")
	}

	notification := Notification{
		NotificationID: uuid.NewString(),
		SentAt:         time.Now().UTC(),
		Summary:        report.Summary(),
		Header:         report.Header,
		Message:        report.Message,
	}

	jsonBytes, marshalError := json.Marshal(notification)
	if marshalError != nil {
		logger.ForwarderLog.Errorf("failed to marshal report from node=%s: %v", report.NodeID, marshalError)
		return errors.Wrap(marshalError, "marshal notification")
	}

	callCtx, cancel := context.WithTimeout(ctx, forwarder.timeout)
	defer cancel()

	httpRequest, requestError := http.NewRequestWithContext(
		callCtx,
		http.MethodPost,
		forwarder.url,
		bytes.NewReader(jsonBytes),
	)
	if requestError != nil {
		return errors.Wrapf(requestError, "create request to %s", forwarder.url)
	}

	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("User-Agent", "hwxapp-forwarder/1.0")
	httpRequest.Header.Set("X-Request-Id", notification.NotificationID)

	logger.ForwarderLog.Debugf("Forwarding report node=%s notificationId=%s to url=%s",
		report.NodeID, notification.NotificationID, forwarder.url)

	httpResponse, doError := forwarder.httpClient.Do(httpRequest)
	if doError != nil {
		logger.ForwarderLog.Errorf("report delivery from node=%s failed to url=%s: %v",
			report.NodeID, forwarder.url, doError)
		return errors.Wrap(doError, "report delivery")
	}

	defer func() {
		if closeErr := httpResponse.Body.Close(); closeErr != nil {
			logger.ForwarderLog.Debugf("failed to close response body: %v", closeErr)
		}
	}()

	if httpResponse.StatusCode/100 != 2 {
		bodySnippet := forwarder.readBodySnippet(httpResponse.Body)
		logger.ForwarderLog.Warnf("report delivery non-2xx status=%s url=%s node=%s bodySnippet=%q",
			httpResponse.Status, forwarder.url, report.NodeID, bodySnippet)
		return errors.Errorf("report delivery non-2xx status: %s", httpResponse.Status)
	}

	return nil
}

// readBodySnippet reads at most maxResponseBodyLen bytes from the response
// body for logging purposes. It is best-effort only.
func (forwarder *httpForwarder) readBodySnippet(body io.Reader) string {
	if forwarder.maxResponseBodyLen <= 0 {
		return ""
	}

	limitedReader := io.LimitedReader{
		R: body,
		N: forwarder.maxResponseBodyLen,
	}
	rawBytes, readError := io.ReadAll(&limitedReader)
	if readError != nil {
		return ""
	}
	return string(rawBytes)
}
