package indication

import (
	"context"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/internal/metrics"
	"github.com/free5gc/hwxapp/internal/transport"
)

// Consumer receives decoded reports. Delivery is at most once per buffer.
type Consumer interface {
	Consume(ctx context.Context, report *Report)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, report *Report)

// Consume implements Consumer.
func (consumerFunc ConsumerFunc) Consume(ctx context.Context, report *Report) {
	consumerFunc(ctx, report)
}

// Releaser gives buffers back to the transport framework.
type Releaser interface {
	ReleaseBuffer(buffer transport.BufferHandle)
}

// Dispatcher runs indication decoding on a worker pool. Every buffer handed
// to Handle is released exactly once, whatever the outcome.
type Dispatcher struct {
	decoder   *Decoder
	releaser  Releaser
	metrics   *metrics.Metrics
	consumers []Consumer

	pool pond.Pool

	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher with the given number of workers and a
// bounded task queue.
func NewDispatcher(
	releaser Releaser,
	workers int,
	queueSize int,
	collectors *metrics.Metrics,
	consumers ...Consumer,
) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		decoder:   NewDecoder(),
		releaser:  releaser,
		metrics:   collectors,
		consumers: consumers,
		pool:      pond.NewPool(workers, pond.WithQueueSize(queueSize)),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Handle is the transport.Handler for RIC Indication buffers.
func (dispatcher *Dispatcher) Handle(payload []byte, meta transport.Meta, buffer transport.BufferHandle) {
	dispatcher.metrics.BuffersInFlight.Inc()

	submitError := dispatcher.pool.Go(func() {
		dispatcher.process(payload, meta, buffer)
	})
	if submitError != nil {
		logger.IndicationLog.Errorf("dropping indication from node=%s: %v", meta.Source, submitError)
		dispatcher.metrics.IndicationFailures.WithLabelValues(metrics.StageDispatch).Inc()
		dispatcher.release(buffer)
	}
}

// Stop waits for queued indications to finish and rejects new ones.
func (dispatcher *Dispatcher) Stop() {
	dispatcher.stopOnce.Do(func() {
		dispatcher.pool.StopAndWait()
		dispatcher.cancel()
		logger.IndicationLog.Infof("indication dispatcher stopped")
	})
}

func (dispatcher *Dispatcher) process(payload []byte, meta transport.Meta, buffer transport.BufferHandle) {
	defer dispatcher.release(buffer)
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.IndicationLog.Errorf("indication from node=%s aborted: panic: %v", meta.Source, recovered)
			dispatcher.metrics.IndicationFailures.WithLabelValues(metrics.StageDispatch).Inc()
		}
	}()

	dispatcher.metrics.IndicationsReceived.WithLabelValues(meta.Source).Inc()
	logger.IndicationLog.Debugf("processing indication from node=%s (%d bytes)", meta.Source, len(payload))

	startTime := time.Now()
	report, decodeError := dispatcher.decoder.Decode(payload, meta.Source)
	dispatcher.metrics.IndicationDuration.Observe(time.Since(startTime).Seconds())

	if decodeError != nil {
		logger.IndicationLog.Errorf("Unable to decode E2AP Indication from node=%s: %v", meta.Source, decodeError)
		dispatcher.metrics.IndicationFailures.WithLabelValues(metrics.StageEnvelope).Inc()
		return
	}
	if !meta.ReceivedAt.IsZero() {
		report.ReceivedAt = meta.ReceivedAt
	}

	if report.HeaderErr != nil {
		logger.IndicationLog.Errorf("Unable to decode KPM Indication Header from node=%s: %v", meta.Source, report.HeaderErr)
		dispatcher.metrics.IndicationFailures.WithLabelValues(metrics.StageHeader).Inc()
	} else if report.Header != nil {
		logger.IndicationLog.Infof("KPM Indication Header from node=%s is %s", meta.Source, summarizeHeader(report))
	}

	if report.MessageErr != nil {
		logger.IndicationLog.Errorf("Unable to decode KPM Indication Message from node=%s: %v", meta.Source, report.MessageErr)
		dispatcher.metrics.IndicationFailures.WithLabelValues(metrics.StageMessage).Inc()
	} else if report.Message != nil {
		logger.IndicationLog.Infof("KPM Indication Message from node=%s is %s", meta.Source, summarizeMessage(report))
	}

	if report.Header == nil && report.Message == nil {
		return
	}
	for _, consumer := range dispatcher.consumers {
		consumer.Consume(dispatcher.ctx, report)
	}
}

func (dispatcher *Dispatcher) release(buffer transport.BufferHandle) {
	dispatcher.releaser.ReleaseBuffer(buffer)
	dispatcher.metrics.BuffersInFlight.Dec()
}
