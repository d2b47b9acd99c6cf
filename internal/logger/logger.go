// Package logger provides structured loggers for the different components of
// the xApp. It wraps logrus and exposes category-specific log entries such as
// MainLog, CodecLog, IndicationLog, etc. The logging level and caller
// reporting can be adjusted at runtime via InitLog.
package logger

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	moduleNameXapp = "HWXAPP"
)

var (
	initOnce sync.Once

	// MainLog is the primary logger for lifecycle events (startup, shutdown).
	MainLog *log.Entry

	// CfgLog is used for configuration loading, validation, and printing.
	CfgLog *log.Entry

	// CodecLog is for PER encode/decode diagnostics.
	CodecLog *log.Entry

	// IndicationLog is for inbound RIC Indication processing.
	IndicationLog *log.Entry

	// SubscriptionLog is for the subscription lifecycle (create, track, delete).
	SubscriptionLog *log.Entry

	// DirectoryLog is for E2 node directory lookups.
	DirectoryLog *log.Entry

	// TransportLog is for the message transport framework (handlers, buffers).
	TransportLog *log.Entry

	// SbiLog is for HTTP interactions with the subscription registry and the
	// xApp's own HTTP surface.
	SbiLog *log.Entry

	// ContextLog is for runtime context changes (subscription records, shutdown flag).
	ContextLog *log.Entry

	// StorageLog is for the recent-indication store.
	StorageLog *log.Entry

	// ForwarderLog is for pushing decoded reports to downstream consumers.
	ForwarderLog *log.Entry

	// SchedulerLog is for periodic maintenance tasks.
	SchedulerLog *log.Entry
)

func init() {
	// Package users (tests in particular) may log before InitLog is called.
	if err := InitLog("info", false); err != nil {
		panic(err)
	}
}

// InitLog configures the global logrus settings and initializes all category
// loggers. It is safe to call multiple times; the first call builds the
// entries, subsequent calls update the log level and reportCaller flag.
func InitLog(levelString string, reportCaller bool) error {
	var initErr error

	initOnce.Do(func() {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})

		log.SetLevel(log.InfoLevel)
		log.SetReportCaller(reportCaller)

		MainLog = newCategory("MAIN")
		CfgLog = newCategory("CFG")
		CodecLog = newCategory("CODEC")
		IndicationLog = newCategory("INDICATION")
		SubscriptionLog = newCategory("SUBSCRIPTION")
		DirectoryLog = newCategory("DIRECTORY")
		TransportLog = newCategory("TRANSPORT")
		SbiLog = newCategory("SBI")
		ContextLog = newCategory("CONTEXT")
		StorageLog = newCategory("STORAGE")
		ForwarderLog = newCategory("FORWARDER")
		SchedulerLog = newCategory("SCHEDULER")
	})

	parsedLevel, parseErr := parseLogLevel(levelString)
	if parseErr != nil {
		log.SetLevel(log.InfoLevel)
		CfgLog.Warnf("invalid log level %q, falling back to info: %v", levelString, parseErr)
		initErr = parseErr
	} else {
		log.SetLevel(parsedLevel)
	}

	log.SetReportCaller(reportCaller)

	return initErr
}

// IsDebugEnabled reports whether debug-level output is currently emitted.
// Callers use it to skip building expensive dumps.
func IsDebugEnabled() bool {
	return log.IsLevelEnabled(log.DebugLevel)
}

func newCategory(category string) *log.Entry {
	return log.WithFields(log.Fields{
		"module":   moduleNameXapp,
		"category": category,
	})
}

// parseLogLevel converts a string log level (case-insensitive) into a logrus.Level.
func parseLogLevel(levelString string) (log.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(levelString))

	switch normalized {
	case "trace":
		return log.TraceLevel, nil
	case "debug":
		return log.DebugLevel, nil
	case "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	case "fatal":
		return log.FatalLevel, nil
	case "panic":
		return log.PanicLevel, nil
	default:
		return log.InfoLevel, errors.Errorf("unknown log level: %s", levelString)
	}
}
