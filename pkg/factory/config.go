package factory

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/logger"
)

// Config is the top-level configuration loaded from config/xappcfg.yaml.
type Config struct {
	Info         InfoSection         `yaml:"info"`
	Logging      LoggingSection      `yaml:"logging"`
	Xapp         XappSection         `yaml:"xapp"`
	Messaging    MessagingSection    `yaml:"messaging"`
	Transport    TransportSection    `yaml:"transport"`
	Registry     RegistrySection     `yaml:"registry"`
	Subscription SubscriptionSection `yaml:"subscription"`
	Directory    DirectorySection    `yaml:"directory"`
	Storage      StorageSection      `yaml:"storage"`
	Forwarder    ForwarderSection    `yaml:"forwarder"`
	Maintenance  MaintenanceSection  `yaml:"maintenance"`
}

// ---------- info ----------

type InfoSection struct {
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

// ---------- logging ----------

type LoggingSection struct {
	Level        string `yaml:"level"` // "trace" | "debug" | "info" | "warn" | "error"
	ReportCaller bool   `yaml:"reportCaller"`
}

// ---------- xapp identity ----------

type XappSection struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"` // e.g. "ricxapp"
	Hostname  string `yaml:"hostname"`  // defaults to $HOSTNAME
}

// ClientHost is the in-cluster service name the registry uses to reach this
// xApp, e.g. "service-ricxapp-hwxapp-0-http.ricxapp".
func (xapp XappSection) ClientHost() string {
	return fmt.Sprintf("service-%s-%s-http.%s", xapp.Namespace, xapp.Hostname, xapp.Namespace)
}

// ---------- messaging (descriptor style port list) ----------

const (
	PortNameHTTP     = "http"
	PortNameRMRRoute = "rmrroute"
	PortNameRMRData  = "rmrdata"

	DefaultHTTPPort     = 8080
	DefaultRMRRoutePort = 4561
	DefaultRMRDataPort  = 4560
)

type MessagingSection struct {
	Ports []PortEntry `yaml:"ports"`
}

type PortEntry struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

// Port returns the port registered under name.
func (messaging MessagingSection) Port(name string) (int, bool) {
	for _, entry := range messaging.Ports {
		if entry.Name == name {
			return entry.Port, true
		}
	}
	return 0, false
}

// HTTPPort returns the http port (defaults are applied when loading).
func (messaging MessagingSection) HTTPPort() int {
	port, _ := messaging.Port(PortNameHTTP)
	return port
}

// RMRDataPort returns the rmrdata port.
func (messaging MessagingSection) RMRDataPort() int {
	port, _ := messaging.Port(PortNameRMRData)
	return port
}

// HTTPListenAddr is the bind address of the xApp HTTP server.
func (messaging MessagingSection) HTTPListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", messaging.HTTPPort())
}

// ---------- transport framework ----------

type TransportSection struct {
	Driver           string       `yaml:"driver"` // "memory"
	Workers          int          `yaml:"workers"`
	QueueSize        int          `yaml:"queueSize"`
	DiscoveryDelayMs int          `yaml:"discoveryDelayMs"`
	Nodes            NodesSection `yaml:"nodes"`
}

type NodesSection struct {
	GNB []string `yaml:"gnb"`
	ENB []string `yaml:"enb"`
}

// ---------- subscription registry ----------

const DefaultRegistryBaseURL = "http://service-ricplt-submgr-http.ricplt:8088/ric/v1"

type RegistrySection struct {
	BaseURL   string `yaml:"baseUrl"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

// ---------- subscription payload ----------

type SubscriptionSection struct {
	AutoSubscribe       bool     `yaml:"autoSubscribe"`
	NodeType            string   `yaml:"nodeType"` // "gnb" | "enb"
	RANFunctionID       int      `yaml:"ranFunctionId"`
	XappEventInstanceID int      `yaml:"xappEventInstanceId"`
	ActionID            int      `yaml:"actionId"`
	RANStyleType        int      `yaml:"ranStyleType"`
	ReportingPeriodMs   int      `yaml:"reportingPeriodMs"`
	GranularityPeriodMs int      `yaml:"granularityPeriodMs"`
	Measurements        []string `yaml:"measurements"` // empty selects the default catalogue
	DiscoveryTimeoutMs  int      `yaml:"discoveryTimeoutMs"`
}

// ---------- node directory ----------

type DirectorySection struct {
	CacheTTLMs int `yaml:"cacheTtlMs"`
}

// ---------- indication store ----------

type StorageSection struct {
	Driver   string `yaml:"driver"` // "memory"
	MaxItems int    `yaml:"maxItems,omitempty"`
	TTLSec   int    `yaml:"ttlSec,omitempty"`
}

// ---------- downstream forwarder ----------

type ForwarderSection struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

// ---------- periodic maintenance ----------

type MaintenanceSection struct {
	TickMs      int `yaml:"tickMs"`
	VacuumMs    int `yaml:"vacuumMs"`    // 0 disables store vacuuming
	ReconcileMs int `yaml:"reconcileMs"` // 0 disables subscribing late nodes
}

// ---------- defaults ----------

func applyDefaults(cfg *Config) {
	// logging
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}

	// xapp
	if strings.TrimSpace(cfg.Xapp.Name) == "" {
		cfg.Xapp.Name = "hwxapp"
	}
	if strings.TrimSpace(cfg.Xapp.Namespace) == "" {
		cfg.Xapp.Namespace = "ricxapp"
	}
	if strings.TrimSpace(cfg.Xapp.Hostname) == "" {
		cfg.Xapp.Hostname = os.Getenv("HOSTNAME")
	}
	if strings.TrimSpace(cfg.Xapp.Hostname) == "" {
		cfg.Xapp.Hostname = cfg.Xapp.Name
	}

	// messaging: a missing port is not fatal, the descriptor default is used
	defaultPorts := []PortEntry{
		{Name: PortNameHTTP, Port: DefaultHTTPPort},
		{Name: PortNameRMRRoute, Port: DefaultRMRRoutePort},
		{Name: PortNameRMRData, Port: DefaultRMRDataPort},
	}
	for _, defaultPort := range defaultPorts {
		if _, found := cfg.Messaging.Port(defaultPort.Name); found {
			continue
		}
		logger.CfgLog.Warnf("Using default %s port number %d", defaultPort.Name, defaultPort.Port)
		cfg.Messaging.Ports = append(cfg.Messaging.Ports, defaultPort)
	}

	// transport
	if strings.TrimSpace(cfg.Transport.Driver) == "" {
		cfg.Transport.Driver = "memory"
	}
	if cfg.Transport.Workers <= 0 {
		cfg.Transport.Workers = 4
	}
	if cfg.Transport.QueueSize <= 0 {
		cfg.Transport.QueueSize = 256
	}
	if cfg.Transport.DiscoveryDelayMs < 0 {
		cfg.Transport.DiscoveryDelayMs = 0
	}

	// registry
	if strings.TrimSpace(cfg.Registry.BaseURL) == "" {
		cfg.Registry.BaseURL = DefaultRegistryBaseURL
	}
	if cfg.Registry.TimeoutMs <= 0 {
		cfg.Registry.TimeoutMs = 5000
	}

	// subscription
	if strings.TrimSpace(cfg.Subscription.NodeType) == "" {
		cfg.Subscription.NodeType = "gnb"
	}
	if cfg.Subscription.XappEventInstanceID <= 0 {
		cfg.Subscription.XappEventInstanceID = 12345
	}
	if cfg.Subscription.RANStyleType <= 0 {
		cfg.Subscription.RANStyleType = 1
	}
	if cfg.Subscription.ReportingPeriodMs <= 0 {
		cfg.Subscription.ReportingPeriodMs = 1000
	}
	if cfg.Subscription.GranularityPeriodMs <= 0 {
		cfg.Subscription.GranularityPeriodMs = 1000
	}
	if cfg.Subscription.DiscoveryTimeoutMs <= 0 {
		cfg.Subscription.DiscoveryTimeoutMs = 10000
	}

	// directory
	if cfg.Directory.CacheTTLMs < 0 {
		cfg.Directory.CacheTTLMs = 0
	}

	// storage
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Storage.MaxItems < 0 {
		cfg.Storage.MaxItems = 0
	}
	if cfg.Storage.TTLSec < 0 {
		cfg.Storage.TTLSec = 0
	}

	// forwarder
	if cfg.Forwarder.TimeoutMs <= 0 {
		cfg.Forwarder.TimeoutMs = 3000
	}

	// maintenance
	if cfg.Maintenance.TickMs <= 0 {
		cfg.Maintenance.TickMs = 1000
	}
	if cfg.Maintenance.VacuumMs < 0 {
		cfg.Maintenance.VacuumMs = 0
	}
	if cfg.Maintenance.ReconcileMs < 0 {
		cfg.Maintenance.ReconcileMs = 0
	}
}

// ---------- validation helpers ----------

func isValidBaseURL(u string) bool {
	if !govalidator.IsRequestURL(u) {
		return false
	}
	lowered := strings.ToLower(u)
	return strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://")
}

// ---------- Validate ----------

func validateConfig(cfg *Config) error {
	// logging
	if !govalidator.IsIn(strings.ToLower(cfg.Logging.Level), "trace", "debug", "info", "warn", "warning", "error") {
		return errors.Errorf("logging.level unsupported: %q", cfg.Logging.Level)
	}

	// xapp
	if !govalidator.IsDNSName(cfg.Xapp.Namespace) {
		return errors.Errorf("xapp.namespace is not a DNS label: %q", cfg.Xapp.Namespace)
	}
	if !govalidator.IsDNSName(cfg.Xapp.Hostname) {
		return errors.Errorf("xapp.hostname is not a DNS label: %q", cfg.Xapp.Hostname)
	}

	// messaging
	seen := make(map[string]struct{}, len(cfg.Messaging.Ports))
	for i, entry := range cfg.Messaging.Ports {
		if strings.TrimSpace(entry.Name) == "" {
			return errors.Errorf("messaging.ports[%d].name is empty", i)
		}
		if _, duplicated := seen[entry.Name]; duplicated {
			return errors.Errorf("messaging.ports[%d].name duplicated: %q", i, entry.Name)
		}
		seen[entry.Name] = struct{}{}
		if !govalidator.InRangeInt(entry.Port, 1, 65535) {
			return errors.Errorf("messaging.ports[%d].port out of range: %d", i, entry.Port)
		}
	}

	// transport
	if !govalidator.IsIn(cfg.Transport.Driver, "memory") {
		return errors.Errorf("transport.driver unsupported: %q", cfg.Transport.Driver)
	}
	for i, id := range append(append([]string{}, cfg.Transport.Nodes.GNB...), cfg.Transport.Nodes.ENB...) {
		if strings.TrimSpace(id) == "" {
			return errors.Errorf("transport.nodes entry %d is empty", i)
		}
	}

	// registry
	if !isValidBaseURL(cfg.Registry.BaseURL) {
		return errors.Errorf("registry.baseUrl is invalid: %q", cfg.Registry.BaseURL)
	}

	// subscription
	if !govalidator.IsIn(strings.ToLower(cfg.Subscription.NodeType), "gnb", "enb") {
		return errors.Errorf("subscription.nodeType unsupported: %q", cfg.Subscription.NodeType)
	}
	if !govalidator.InRangeInt(cfg.Subscription.RANFunctionID, 0, 4095) {
		return errors.Errorf("subscription.ranFunctionId out of range: %d", cfg.Subscription.RANFunctionID)
	}
	if !govalidator.InRangeInt(cfg.Subscription.ActionID, 0, 255) {
		return errors.Errorf("subscription.actionId out of range: %d", cfg.Subscription.ActionID)
	}
	// Both periods travel as unsigned 32-bit integers.
	if !govalidator.InRangeInt(cfg.Subscription.ReportingPeriodMs, 1, math.MaxUint32) {
		return errors.Errorf("subscription.reportingPeriodMs out of range: %d", cfg.Subscription.ReportingPeriodMs)
	}
	if !govalidator.InRangeInt(cfg.Subscription.GranularityPeriodMs, 1, math.MaxUint32) {
		return errors.Errorf("subscription.granularityPeriodMs out of range: %d", cfg.Subscription.GranularityPeriodMs)
	}
	for i, name := range cfg.Subscription.Measurements {
		if !govalidator.InRangeInt(len(name), 1, 150) {
			return errors.Errorf("subscription.measurements[%d] must be 1..150 characters", i)
		}
	}

	// storage
	if !govalidator.IsIn(cfg.Storage.Driver, "memory") {
		return errors.Errorf("storage.driver unsupported: %q", cfg.Storage.Driver)
	}

	// forwarder
	if cfg.Forwarder.Enabled && !isValidBaseURL(cfg.Forwarder.URL) {
		return errors.Errorf("forwarder.url invalid (enabled=true): %q", cfg.Forwarder.URL)
	}

	// maintenance
	if cfg.Maintenance.VacuumMs > 0 && cfg.Maintenance.VacuumMs < cfg.Maintenance.TickMs {
		return errors.Errorf("maintenance.vacuumMs (%d) is shorter than tickMs (%d)",
			cfg.Maintenance.VacuumMs, cfg.Maintenance.TickMs)
	}
	if cfg.Maintenance.ReconcileMs > 0 && cfg.Maintenance.ReconcileMs < cfg.Maintenance.TickMs {
		return errors.Errorf("maintenance.reconcileMs (%d) is shorter than tickMs (%d)",
			cfg.Maintenance.ReconcileMs, cfg.Maintenance.TickMs)
	}

	return nil
}
