// Package app wires together all major xApp components:
//   - configuration
//   - logging and metrics
//   - transport framework and node directory
//   - runtime context and subscription manager
//   - indication dispatcher with its store and forwarder consumers
//   - the xApp HTTP server
//   - scheduler for periodic maintenance.
//
// cmd/hwxapp creates an App from the loaded Config and calls Start/Stop
// without knowing internal details.
package app

import (
	stdctx "context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	xappctx "github.com/free5gc/hwxapp/internal/context"
	"github.com/free5gc/hwxapp/internal/directory"
	"github.com/free5gc/hwxapp/internal/forwarder"
	"github.com/free5gc/hwxapp/internal/indication"
	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/internal/metrics"
	"github.com/free5gc/hwxapp/internal/sbi"
	"github.com/free5gc/hwxapp/internal/scheduler"
	"github.com/free5gc/hwxapp/internal/storage"
	"github.com/free5gc/hwxapp/internal/subscription"
	"github.com/free5gc/hwxapp/internal/transport"
	"github.com/free5gc/hwxapp/pkg/factory"
)

const nodePollInterval = 200 * time.Millisecond

// App is the high-level interface implemented by the xApp.
type App interface {
	// Start brings the xApp online:
	//   - register the RIC Indication handler and start the transport
	//   - start the HTTP server
	//   - wait for E2 nodes and subscribe to them when autoSubscribe is set
	//   - start the scheduler
	Start(ctx stdctx.Context) error

	// Stop attempts a graceful shutdown:
	//   - mark shutdown requested
	//   - stop the scheduler
	//   - delete every subscription
	//   - shut down the HTTP server, the transport and the dispatcher
	Stop(ctx stdctx.Context) error
}

// appImpl is the concrete implementation of App.
type appImpl struct {
	config *factory.Config

	metrics        *metrics.Metrics
	framework      transport.Framework
	nodeDirectory  directory.Directory
	runtimeContext xappctx.RuntimeContext
	manager        *subscription.Manager
	storageStore   storage.Store
	dispatcher     *indication.Dispatcher
	scheduler      scheduler.Scheduler
	xappServer     *sbi.XappServer
	nodeType       transport.NodeType

	httpServer   *http.Server
	httpListener net.Listener
	serveDone    chan struct{}

	startStopMutex sync.Mutex
	started        bool
}

// NewApp constructs a new App from a validated configuration. It creates
// the internal components but does not start any listeners yet; that is
// handled by Start().
func NewApp(config *factory.Config) (App, error) {
	if config == nil {
		return nil, errors.New("config must not be nil")
	}

	// InitLog only updates the level and reportCaller flag once the
	// category loggers exist.
	if initError := logger.InitLog(config.Logging.Level, config.Logging.ReportCaller); initError != nil {
		logger.MainLog.Warnf("InitLog failed with level=%s, using fallback: %v",
			config.Logging.Level, initError)
	}

	logger.MainLog.Infof("Starting %s version=%s description=%q",
		config.Xapp.Name, config.Info.Version, config.Info.Description)

	nodeType, parseError := transport.ParseNodeType(config.Subscription.NodeType)
	if parseError != nil {
		return nil, errors.Wrap(parseError, "subscription.nodeType")
	}

	collectors := metrics.New()

	framework, frameworkError := transport.NewFrameworkFromConfig(config.Transport)
	if frameworkError != nil {
		return nil, errors.Wrap(frameworkError, "failed to create transport framework")
	}

	nodeDirectory := directory.NewDirectory(framework, time.Duration(config.Directory.CacheTTLMs)*time.Millisecond)
	runtimeContext := xappctx.NewRuntimeContext()

	registryClient := sbi.NewRegistryClient(config.Registry, collectors)
	manager := subscription.NewManager(
		subscription.SettingsFromConfig(config),
		runtimeContext,
		registryClient,
		nodeDirectory,
		collectors,
	)

	storageStore, storageError := storage.NewStoreFromConfig(config.Storage)
	if storageError != nil {
		return nil, errors.Wrap(storageError, "failed to create storage backend")
	}

	consumers := []indication.Consumer{storageStore}
	if config.Forwarder.Enabled {
		consumers = append(consumers, forwarder.NewHTTPForwarder(config.Forwarder, collectors))
		logger.MainLog.Infof("forwarding decoded indications to %s", config.Forwarder.URL)
	}
	dispatcher := indication.NewDispatcher(
		framework,
		config.Transport.Workers,
		config.Transport.QueueSize,
		collectors,
		consumers...,
	)

	// Not every driver accepts loopback buffers; a failed assertion leaves
	// the interface nil and the inject route unregistered.
	injector, _ := framework.(transport.Injector)

	xappServer := sbi.NewXappServer(sbi.XappServerOptions{
		Records:   runtimeContext,
		Summaries: storageStore,
		Readiness: framework,
		Injector:  injector,
		Metrics:   collectors.Handler(),
	})

	app := &appImpl{
		config:         config,
		metrics:        collectors,
		framework:      framework,
		nodeDirectory:  nodeDirectory,
		runtimeContext: runtimeContext,
		manager:        manager,
		storageStore:   storageStore,
		dispatcher:     dispatcher,
		xappServer:     xappServer,
		nodeType:       nodeType,
	}

	schedulerInstance, schedulerError := scheduler.NewScheduler(
		time.Duration(config.Maintenance.TickMs)*time.Millisecond,
		app.maintenanceTasks()...,
	)
	if schedulerError != nil {
		return nil, errors.Wrap(schedulerError, "failed to create scheduler")
	}
	app.scheduler = schedulerInstance

	return app, nil
}

// maintenanceTasks returns the periodic tasks enabled by configuration.
func (app *appImpl) maintenanceTasks() []scheduler.Task {
	var tasks []scheduler.Task

	if app.config.Maintenance.VacuumMs > 0 && app.storageStore.TTL() > 0 {
		tasks = append(tasks, scheduler.Task{
			Name:  "vacuum-store",
			Every: time.Duration(app.config.Maintenance.VacuumMs) * time.Millisecond,
			Run:   app.storageStore.Vacuum,
		})
	}

	if app.config.Maintenance.ReconcileMs > 0 && app.config.Subscription.AutoSubscribe {
		tasks = append(tasks, scheduler.Task{
			Name:  "reconcile-subscriptions",
			Every: time.Duration(app.config.Maintenance.ReconcileMs) * time.Millisecond,
			Run:   app.reconcileSubscriptions,
		})
	}

	return tasks
}

// Start implements App.Start.
func (app *appImpl) Start(ctx stdctx.Context) error {
	app.startStopMutex.Lock()
	defer app.startStopMutex.Unlock()

	if app.started {
		logger.MainLog.Warn("App.Start called more than once; ignoring subsequent call")
		return nil
	}

	app.runtimeContext.SetShutdownRequested(ctx, false)

	if registerError := app.framework.RegisterHandler(
		transport.MessageTypeRICIndication, app.dispatcher.Handle,
	); registerError != nil {
		return errors.Wrap(registerError, "failed to register RIC Indication handler")
	}
	if frameworkError := app.framework.Start(ctx); frameworkError != nil {
		return errors.Wrap(frameworkError, "failed to start transport framework")
	}

	// A busy port fails Start.
	listenAddr := app.config.Messaging.HTTPListenAddr()
	listener, listenError := net.Listen("tcp", listenAddr)
	if listenError != nil {
		app.framework.Stop()
		return errors.Wrapf(listenError, "failed to listen on %s", listenAddr)
	}
	app.httpListener = listener
	app.httpServer = app.xappServer.NewHTTPServer(listenAddr)
	app.serveDone = make(chan struct{})

	go func(httpServer *http.Server, serveDone chan struct{}) {
		defer close(serveDone)
		if serveError := httpServer.Serve(listener); serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
			logger.SbiLog.Errorf("xApp HTTP server stopped with error: %v", serveError)
		}
	}(app.httpServer, app.serveDone)
	logger.SbiLog.Infof("xApp HTTP server listening on %s", listener.Addr())

	if app.config.Subscription.AutoSubscribe {
		app.subscribeDiscoveredNodes(ctx)
	}

	if schedulerError := app.scheduler.Start(ctx); schedulerError != nil {
		app.abortStart(ctx)
		return errors.Wrap(schedulerError, "failed to start scheduler")
	}

	app.started = true
	logger.MainLog.Infof("%s successfully started", app.config.Xapp.Name)
	return nil
}

// Stop implements App.Stop.
func (app *appImpl) Stop(ctx stdctx.Context) error {
	app.startStopMutex.Lock()
	defer app.startStopMutex.Unlock()

	if !app.started {
		return nil
	}

	logger.MainLog.Infof("%s shutdown requested", app.config.Xapp.Name)

	// New subscribes are refused from here on.
	app.runtimeContext.SetShutdownRequested(ctx, true)

	if schedulerError := app.scheduler.Stop(ctx); schedulerError != nil {
		logger.MainLog.Warnf("scheduler stop returned error: %v", schedulerError)
	}

	app.unsubscribeAll(ctx)

	var firstError error
	if shutdownError := app.httpServer.Shutdown(ctx); shutdownError != nil {
		logger.MainLog.Warnf("xApp HTTP server shutdown returned error: %v", shutdownError)
		firstError = shutdownError
	} else {
		<-app.serveDone
	}

	// Buffers already handed to the dispatcher are still released after the
	// framework refuses new deliveries.
	app.framework.Stop()
	app.dispatcher.Stop()

	app.started = false
	logger.MainLog.Infof("%s shutdown completed", app.config.Xapp.Name)
	return firstError
}

// abortStart undoes a partial Start once the listener is up: subscriptions
// made so far are deleted, the server is closed and the framework stopped.
func (app *appImpl) abortStart(ctx stdctx.Context) {
	app.runtimeContext.SetShutdownRequested(ctx, true)
	app.unsubscribeAll(ctx)

	if closeError := app.httpServer.Close(); closeError != nil {
		logger.MainLog.Warnf("xApp HTTP server close returned error: %v", closeError)
	}
	<-app.serveDone

	app.framework.Stop()
}

// subscribeDiscoveredNodes waits for node discovery, bounded by
// discoveryTimeoutMs, and subscribes every node of the configured type.
// Failures are logged and do not fail Start.
func (app *appImpl) subscribeDiscoveredNodes(ctx stdctx.Context) {
	discoveryTimeout := time.Duration(app.config.Subscription.DiscoveryTimeoutMs) * time.Millisecond
	waitContext, cancel := stdctx.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	nodeIDs, waitError := subscription.WaitForNodes(waitContext, app.nodeDirectory, app.nodeType, nodePollInterval)
	if waitError != nil {
		logger.MainLog.Warnf("no %s nodes discovered within %s: %v", app.nodeType, discoveryTimeout, waitError)
		return
	}
	logger.MainLog.Infof("discovered %d %s node(s): %v", len(nodeIDs), app.nodeType, nodeIDs)

	results, subscribeError := app.manager.SubscribeAll(ctx, app.nodeType)
	if subscribeError != nil {
		logger.MainLog.Warnf("subscribing %s nodes failed: %v", app.nodeType, subscribeError)
		return
	}
	logSubscribeResults(results)
}

// reconcileSubscriptions subscribes nodes that appeared after start-up.
func (app *appImpl) reconcileSubscriptions(ctx stdctx.Context) error {
	app.nodeDirectory.Invalidate()

	results, err := app.manager.SubscribeMissing(ctx, app.nodeType)
	if err != nil {
		if errors.Is(err, directory.ErrDirectoryUnavailable) {
			return nil
		}
		return err
	}

	failed := logSubscribeResults(results)
	if failed > 0 {
		return errors.Errorf("%d of %d subscription(s) failed", failed, len(results))
	}
	return nil
}

func (app *appImpl) unsubscribeAll(ctx stdctx.Context) {
	results := app.manager.UnsubscribeAll(ctx)
	if len(results) == 0 {
		return
	}

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	logger.MainLog.Infof("deleted %d subscription(s), %d failed", len(results)-failed, failed)
}

func logSubscribeResults(results []subscription.SubscribeResult) int {
	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			logger.MainLog.Warnf("subscription for node=%s failed: %v", result.NodeID, result.Err)
			continue
		}
		logger.MainLog.Infof("subscription for node=%s active subscriptionId=%s", result.NodeID, result.SubscriptionID)
	}
	return failed
}
