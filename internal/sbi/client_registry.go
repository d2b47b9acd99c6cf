// Package sbi provides the HTTP interfaces of the xApp. This file implements
// the client side of the subscription registry REST contract:
//   - POST   {base}/subscriptions       -> 201 {"SubscriptionId": "..."}
//   - DELETE {base}/subscriptions/{id}  -> 204
//
// Every other status is a RegistryError; a call that never gets a response
// is a TransportError. No call is retried here.
package sbi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/internal/metrics"
	"github.com/free5gc/hwxapp/pkg/factory"
)

const (
	OperationSubscribe   = "subscribe"
	OperationUnsubscribe = "unsubscribe"

	resultSuccess = "success"
	resultFailure = "failure"

	requestIDHeader = "X-Request-Id"
	userAgent       = "hwxapp-registry-client/1.0"
)

// RegistryClient is the abstraction used by the subscription manager to talk
// to the remote subscription registry.
type RegistryClient interface {
	// Subscribe posts the subscription and returns the identifier assigned
	// by the registry.
	Subscribe(ctx context.Context, params SubscriptionParams) (subscriptionID string, err error)

	// Unsubscribe deletes the subscription identified by subscriptionID.
	Unsubscribe(ctx context.Context, subscriptionID string) error
}

// -----------------------------------------------------------------------------
// Concrete HTTP client implementation
// -----------------------------------------------------------------------------

type registryClient struct {
	baseURL            string
	timeout            time.Duration
	httpClient         *http.Client
	metrics            *metrics.Metrics
	maxResponseBodyLen int64
}

// NewRegistryClient creates an HTTP client for the registry at
// registryConfig.BaseURL. Each call is bounded by registryConfig.TimeoutMs.
func NewRegistryClient(registryConfig factory.RegistrySection, collectors *metrics.Metrics) RegistryClient {
	timeout := time.Duration(registryConfig.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &registryClient{
		baseURL: registryConfig.BaseURL,
		timeout: timeout,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		metrics:            collectors,
		maxResponseBodyLen: 4 << 10, // 4 KiB for logging snippets
	}
}

// Subscribe implements RegistryClient.Subscribe.
func (client *registryClient) Subscribe(ctx context.Context, params SubscriptionParams) (string, error) {
	if params.Meid == "" {
		return "", errors.New("subscription Meid must not be empty")
	}

	jsonBytes, marshalError := json.Marshal(params)
	if marshalError != nil {
		return "", errors.Wrap(marshalError, "marshal subscription request")
	}

	subscribeURL := joinURL(client.baseURL, "subscriptions")
	if logger.IsDebugEnabled() {
		logger.SbiLog.Debugf("subscription request for node=%s: %s", params.Meid, jsonBytes)
	}

	httpResponse, err := client.do(ctx, OperationSubscribe, http.MethodPost, subscribeURL, jsonBytes)
	if err != nil {
		logger.SbiLog.Errorf("Subscribe failed for node=%s url=%s: %v", params.Meid, subscribeURL, err)
		return "", err
	}
	defer client.closeBody(httpResponse)

	if httpResponse.StatusCode != http.StatusCreated {
		registryErr := client.unexpectedStatus(OperationSubscribe, httpResponse)
		logger.SbiLog.Warnf(
			"Subscribe non-201 for node=%s url=%s status=%s bodySnippet=%q",
			params.Meid, subscribeURL, httpResponse.Status, registryErr.Body,
		)
		client.observe(OperationSubscribe, resultFailure)
		return "", registryErr
	}

	var responseBody SubscriptionResponse
	if decodeError := json.NewDecoder(httpResponse.Body).Decode(&responseBody); decodeError != nil {
		logger.SbiLog.Warnf("Subscribe response decode failed for node=%s url=%s: %v", params.Meid, subscribeURL, decodeError)
		client.observe(OperationSubscribe, resultFailure)
		return "", &RegistryError{
			Op:         OperationSubscribe,
			StatusCode: httpResponse.StatusCode,
			Status:     httpResponse.Status,
			Reason:     "malformed response body: " + decodeError.Error(),
		}
	}
	if responseBody.SubscriptionID == "" {
		client.observe(OperationSubscribe, resultFailure)
		return "", &RegistryError{
			Op:         OperationSubscribe,
			StatusCode: httpResponse.StatusCode,
			Status:     httpResponse.Status,
			Reason:     "empty SubscriptionId",
		}
	}

	client.observe(OperationSubscribe, resultSuccess)
	logger.SbiLog.Infof("Subscribe success node=%s subscriptionId=%s", params.Meid, responseBody.SubscriptionID)
	return responseBody.SubscriptionID, nil
}

// Unsubscribe implements RegistryClient.Unsubscribe.
func (client *registryClient) Unsubscribe(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return errors.New("subscriptionID must not be empty")
	}

	// The identifier is opaque and may carry reserved characters.
	unsubscribeURL := joinURL(client.baseURL, "subscriptions", url.PathEscape(subscriptionID))

	httpResponse, err := client.do(ctx, OperationUnsubscribe, http.MethodDelete, unsubscribeURL, nil)
	if err != nil {
		logger.SbiLog.Errorf("Unsubscribe failed for subscriptionId=%s url=%s: %v", subscriptionID, unsubscribeURL, err)
		return err
	}
	defer client.closeBody(httpResponse)

	if httpResponse.StatusCode != http.StatusNoContent {
		registryErr := client.unexpectedStatus(OperationUnsubscribe, httpResponse)
		logger.SbiLog.Warnf(
			"Unsubscribe non-204 for subscriptionId=%s url=%s status=%s bodySnippet=%q",
			subscriptionID, unsubscribeURL, httpResponse.Status, registryErr.Body,
		)
		client.observe(OperationUnsubscribe, resultFailure)
		return registryErr
	}

	client.observe(OperationUnsubscribe, resultSuccess)
	logger.SbiLog.Infof("Unsubscribe success subscriptionId=%s", subscriptionID)
	return nil
}

// do sends one request under the per-call timeout. Any failure before a
// response arrives is returned as a TransportError.
func (client *registryClient) do(
	ctx context.Context,
	operation string,
	method string,
	url string,
	body []byte,
) (*http.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, client.timeout)

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	httpRequest, requestError := http.NewRequestWithContext(callCtx, method, url, bodyReader)
	if requestError != nil {
		cancel()
		return nil, &TransportError{Op: operation, URL: url, Err: requestError}
	}

	requestID := uuid.NewString()
	if body != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	httpRequest.Header.Set("User-Agent", userAgent)
	httpRequest.Header.Set(requestIDHeader, requestID)

	logger.SbiLog.Infof("Sending %s %s requestId=%s", method, url, requestID)

	startTime := time.Now()
	httpResponse, doError := client.httpClient.Do(httpRequest)
	client.metrics.RegistryDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	if doError != nil {
		cancel()
		client.observe(operation, resultFailure)
		return nil, &TransportError{Op: operation, URL: url, Err: doError}
	}

	httpResponse.Body = &cancelOnClose{ReadCloser: httpResponse.Body, cancel: cancel}
	return httpResponse, nil
}

func (client *registryClient) unexpectedStatus(operation string, httpResponse *http.Response) *RegistryError {
	return &RegistryError{
		Op:         operation,
		StatusCode: httpResponse.StatusCode,
		Status:     httpResponse.Status,
		Body:       client.readBodySnippet(httpResponse.Body),
	}
}

func (client *registryClient) observe(operation, result string) {
	client.metrics.SubscriptionRequests.WithLabelValues(operation, result).Inc()
}

func (client *registryClient) closeBody(httpResponse *http.Response) {
	if closeErr := httpResponse.Body.Close(); closeErr != nil {
		logger.SbiLog.Debugf("failed to close registry response body: %v", closeErr)
	}
}

// readBodySnippet reads at most maxResponseBodyLen bytes from the response
// body for logging purposes. It is best-effort only.
func (client *registryClient) readBodySnippet(body io.Reader) string {
	if client.maxResponseBodyLen <= 0 {
		return ""
	}

	limitedReader := io.LimitedReader{
		R: body,
		N: client.maxResponseBodyLen,
	}
	rawBytes, readError := io.ReadAll(&limitedReader)
	if readError != nil {
		return ""
	}
	return string(rawBytes)
}

// cancelOnClose releases the per-call context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (body *cancelOnClose) Close() error {
	err := body.ReadCloser.Close()
	body.cancel()
	return err
}

// joinURL concatenates base URL and path segments using a single slash.
// Segments are not escaped.
func joinURL(base string, segments ...string) string {
	trimmedBase := strings.TrimRight(base, "/")

	var cleanedSegments []string
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		cleanedSegments = append(cleanedSegments, strings.Trim(segment, "/"))
	}

	if len(cleanedSegments) == 0 {
		return trimmedBase
	}
	return trimmedBase + "/" + strings.Join(cleanedSegments, "/")
}
