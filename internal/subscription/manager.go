// Package subscription manages the lifecycle of KPM subscriptions against
// the remote subscription registry.
//
// A record is created Pending when a request is sent, becomes Active once the
// registry answers with an identifier, and goes Terminating then Closed on
// deletion. Failed subscribes leave no record behind; deletes are best effort
// and always drop the record.
package subscription

import (
	"context"
	"time"

	"github.com/pkg/errors"

	xappctx "github.com/free5gc/hwxapp/internal/context"
	"github.com/free5gc/hwxapp/internal/directory"
	"github.com/free5gc/hwxapp/internal/e2sm/kpm"
	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/internal/metrics"
	"github.com/free5gc/hwxapp/internal/sbi"
	"github.com/free5gc/hwxapp/internal/transport"
	"github.com/free5gc/hwxapp/pkg/factory"
)

// Defaults of the subscription payload.
const (
	DefaultRANFunctionID       int64 = 0
	DefaultXappEventInstanceID int64 = 12345
	DefaultActionID            int64 = 0

	ActionTypeReport        = "report"
	SubsequentActionType    = "continue"
	SubsequentActionTimeout = "zero"
)

// ErrNoNodes is returned when the directory does not know any node of the
// requested type yet.
var ErrNoNodes = errors.New("no E2 nodes known yet")

// Settings parameterise the request payload.
type Settings struct {
	Endpoint            sbi.ClientEndpoint
	RANFunctionID       int64
	XappEventInstanceID int64
	ActionID            int64
	RANStyleType        int64
	ReportingPeriodMs   uint32
	GranularityPeriodMs uint32
	Measurements        []string // empty selects the default catalogue
}

// DefaultSettings returns the default payload for endpoint.
func DefaultSettings(endpoint sbi.ClientEndpoint) Settings {
	return Settings{
		Endpoint:            endpoint,
		RANFunctionID:       DefaultRANFunctionID,
		XappEventInstanceID: DefaultXappEventInstanceID,
		ActionID:            DefaultActionID,
		RANStyleType:        kpm.DefaultRANStyleType,
		ReportingPeriodMs:   kpm.DefaultReportingPeriodMs,
		GranularityPeriodMs: kpm.DefaultGranularityPeriodMs,
	}
}

// SettingsFromConfig resolves the xApp's own reachable address and the
// payload parameters from the loaded configuration.
func SettingsFromConfig(cfg *factory.Config) Settings {
	return Settings{
		Endpoint: sbi.ClientEndpoint{
			Host:     cfg.Xapp.ClientHost(),
			HTTPPort: uint16(cfg.Messaging.HTTPPort()),
			RMRPort:  uint16(cfg.Messaging.RMRDataPort()),
		},
		RANFunctionID:       int64(cfg.Subscription.RANFunctionID),
		XappEventInstanceID: int64(cfg.Subscription.XappEventInstanceID),
		ActionID:            int64(cfg.Subscription.ActionID),
		RANStyleType:        int64(cfg.Subscription.RANStyleType),
		ReportingPeriodMs:   uint32(cfg.Subscription.ReportingPeriodMs),
		GranularityPeriodMs: uint32(cfg.Subscription.GranularityPeriodMs),
		Measurements:        append([]string(nil), cfg.Subscription.Measurements...),
	}
}

// SubscribeResult is the outcome for one node of SubscribeAll.
type SubscribeResult struct {
	NodeID         string
	SubscriptionID string
	Err            error
}

// UnsubscribeResult is the outcome for one record of UnsubscribeAll.
type UnsubscribeResult struct {
	Record xappctx.SubscriptionRecord
	Err    error
}

// Manager creates, tracks and deletes subscriptions. Subscribe and
// UnsubscribeAll are meant to be called from one control path; Records may
// be read concurrently.
type Manager struct {
	settings  Settings
	runtime   xappctx.RuntimeContext
	registry  sbi.RegistryClient
	directory directory.Directory
	metrics   *metrics.Metrics
}

// NewManager creates a Manager.
func NewManager(
	settings Settings,
	runtime xappctx.RuntimeContext,
	registry sbi.RegistryClient,
	nodeDirectory directory.Directory,
	collectors *metrics.Metrics,
) *Manager {
	return &Manager{
		settings:  settings,
		runtime:   runtime,
		registry:  registry,
		directory: nodeDirectory,
		metrics:   collectors,
	}
}

// BuildRequest assembles the registry request for targetNodeID.
func (manager *Manager) BuildRequest(targetNodeID string) (sbi.SubscriptionParams, error) {
	eventTrigger, err := kpm.EncodeEventTrigger(manager.settings.ReportingPeriodMs)
	if err != nil {
		return sbi.SubscriptionParams{}, errors.Wrap(err, "encode event trigger")
	}
	actionDefinition, err := kpm.EncodeActionDefinition(
		manager.settings.RANStyleType,
		manager.settings.GranularityPeriodMs,
		manager.settings.Measurements,
	)
	if err != nil {
		return sbi.SubscriptionParams{}, errors.Wrap(err, "encode action definition")
	}

	return sbi.SubscriptionParams{
		SubscriptionID: "",
		ClientEndpoint: manager.settings.Endpoint,
		Meid:           targetNodeID,
		RANFunctionID:  manager.settings.RANFunctionID,
		SubscriptionDetails: []sbi.SubscriptionDetail{{
			XappEventInstanceID: manager.settings.XappEventInstanceID,
			EventTriggers:       eventTrigger,
			ActionToBeSetupList: []sbi.ActionToBeSetup{{
				ActionID:         manager.settings.ActionID,
				ActionType:       ActionTypeReport,
				ActionDefinition: actionDefinition,
				SubsequentAction: sbi.SubsequentAction{
					SubsequentActionType: SubsequentActionType,
					TimeToWait:           SubsequentActionTimeout,
				},
			}},
		}},
	}, nil
}

// Subscribe sends one subscription request toward targetNodeID and returns
// the registry-assigned identifier. No record survives a failure.
func (manager *Manager) Subscribe(ctx context.Context, targetNodeID string) (string, error) {
	key, err := manager.runtime.BeginSubscription(ctx, targetNodeID)
	if err != nil {
		return "", err
	}

	subscriptionID, err := manager.subscribeRecord(ctx, key, targetNodeID)
	if err != nil {
		manager.runtime.DiscardSubscription(ctx, key)
		logger.SubscriptionLog.Errorf("subscribe node=%s failed: %v", targetNodeID, err)
		return "", err
	}

	manager.refreshGauge()
	logger.SubscriptionLog.Infof("subscribed node=%s subscriptionId=%s", targetNodeID, subscriptionID)
	return subscriptionID, nil
}

func (manager *Manager) subscribeRecord(ctx context.Context, key, targetNodeID string) (string, error) {
	params, err := manager.BuildRequest(targetNodeID)
	if err != nil {
		return "", err
	}

	subscriptionID, err := manager.registry.Subscribe(ctx, params)
	if err != nil {
		return "", err
	}

	if err := manager.runtime.ActivateSubscription(ctx, key, subscriptionID); err != nil {
		return "", errors.Wrapf(err, "activate subscription %s", subscriptionID)
	}
	return subscriptionID, nil
}

// SubscribeAll subscribes every node of nodeType currently in the directory.
// It fails with ErrNoNodes when the directory returns an empty list.
func (manager *Manager) SubscribeAll(ctx context.Context, nodeType transport.NodeType) ([]SubscribeResult, error) {
	nodeIDs, err := manager.directory.ListByType(ctx, nodeType)
	if err != nil {
		return nil, err
	}
	if len(nodeIDs) == 0 {
		return nil, errors.Wrapf(ErrNoNodes, "type %s", nodeType)
	}

	results := make([]SubscribeResult, 0, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		subscriptionID, subscribeError := manager.Subscribe(ctx, nodeID)
		results = append(results, SubscribeResult{
			NodeID:         nodeID,
			SubscriptionID: subscriptionID,
			Err:            subscribeError,
		})
	}
	return results, nil
}

// SubscribeMissing subscribes the nodes of nodeType that have no Pending or
// Active record, such as nodes that connected after start-up. An empty
// directory is not an error here.
func (manager *Manager) SubscribeMissing(ctx context.Context, nodeType transport.NodeType) ([]SubscribeResult, error) {
	if manager.runtime.IsShutdownRequested() {
		return nil, xappctx.ErrShutdownRequested
	}

	nodeIDs, err := manager.directory.ListByType(ctx, nodeType)
	if err != nil {
		return nil, err
	}

	covered := make(map[string]struct{})
	for _, record := range manager.runtime.GetSubscriptionsSnapshot() {
		if record.State == xappctx.StatePending || record.State == xappctx.StateActive {
			covered[record.TargetNodeID] = struct{}{}
		}
	}

	var results []SubscribeResult
	for _, nodeID := range nodeIDs {
		if _, found := covered[nodeID]; found {
			continue
		}
		subscriptionID, subscribeError := manager.Subscribe(ctx, nodeID)
		results = append(results, SubscribeResult{
			NodeID:         nodeID,
			SubscriptionID: subscriptionID,
			Err:            subscribeError,
		})
	}
	return results, nil
}

// UnsubscribeAll deletes every tracked subscription. Each record is dropped
// whatever the registry answers; the per-record outcome is returned.
func (manager *Manager) UnsubscribeAll(ctx context.Context) []UnsubscribeResult {
	records := manager.runtime.GetSubscriptionsSnapshot()
	results := make([]UnsubscribeResult, 0, len(records))

	for _, record := range records {
		err := manager.unsubscribeRecord(ctx, record)
		if err != nil {
			logger.SubscriptionLog.Warnf("unsubscribe subscriptionId=%s node=%s failed, dropping record: %v",
				record.ID, record.TargetNodeID, err)
		}
		if final, found := manager.runtime.GetSubscription(record.Key); found {
			record = final
		}
		manager.runtime.DiscardSubscription(ctx, record.Key)
		results = append(results, UnsubscribeResult{Record: record, Err: err})
	}

	manager.refreshGauge()
	return results
}

func (manager *Manager) unsubscribeRecord(ctx context.Context, record xappctx.SubscriptionRecord) error {
	if record.ID == "" {
		return errors.Errorf("record %s has no subscription id (state %s)", record.Key, record.State)
	}

	if err := manager.runtime.SetSubscriptionState(ctx, record.Key, xappctx.StateTerminating); err != nil {
		return err
	}
	if err := manager.registry.Unsubscribe(ctx, record.ID); err != nil {
		return err
	}
	if err := manager.runtime.SetSubscriptionState(ctx, record.Key, xappctx.StateClosed); err != nil {
		return err
	}

	logger.SubscriptionLog.Infof("unsubscribed node=%s subscriptionId=%s", record.TargetNodeID, record.ID)
	return nil
}

// Records returns a snapshot of the tracked records.
func (manager *Manager) Records() []xappctx.SubscriptionRecord {
	return manager.runtime.GetSubscriptionsSnapshot()
}

func (manager *Manager) refreshGauge() {
	manager.metrics.ActiveSubscriptions.Set(float64(manager.runtime.CountSubscriptions(xappctx.StateActive)))
}

// WaitForNodes polls the directory until it reports at least one node of
// nodeType, ctx ends, or the directory answers with an error other than
// not yet ready.
func WaitForNodes(
	ctx context.Context,
	nodeDirectory directory.Directory,
	nodeType transport.NodeType,
	pollInterval time.Duration,
) ([]string, error) {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		nodeIDs, err := nodeDirectory.ListByType(ctx, nodeType)
		switch {
		case err == nil && len(nodeIDs) > 0:
			return nodeIDs, nil
		case err != nil && !errors.Is(err, directory.ErrDirectoryUnavailable):
			return nil, err
		}

		select {
		case <-ctx.Done():
			if err == nil {
				err = errors.Wrapf(ErrNoNodes, "type %s", nodeType)
			}
			return nil, errors.Wrap(err, ctx.Err().Error())
		case <-ticker.C:
		}
	}
}
