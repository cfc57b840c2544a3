// Package config assembles the supervisor's process-level Options
// from environment variables. Parsing CLI flags themselves is out of
// scope (spec.md §6 lists the flag surface only) — a cmd/ entrypoint
// is expected to translate flags into environment variables or
// populate Options directly before calling bridge.New.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/matterbridge-go/matterbridge/internal/model"
)

// Options is the fully resolved configuration the lifecycle supervisor
// is constructed with.
type Options struct {
	HomeDir    string
	BridgeMode model.TopologyMode
	VirtualMode model.VirtualMode

	Port          int
	MdnsInterface string
	IPv4Address   string
	IPv6Address   string

	VendorID    uint16
	VendorName  string
	ProductID   uint16
	ProductName string

	LoggerLevel       string
	MatterLoggerLevel string
	FileLogger        bool
	MatterFileLogger  bool

	PluginDir string

	NoRestore bool
	NoVirtual bool
	ReadOnly  bool
	Profile   string

	Password string

	FrontendNATSURL string

	ShutdownGracePeriod time.Duration
	ServerNodeCloseTimeout time.Duration
}

// FromEnv builds Options from environment variables, following the
// getEnv/getEnvInt idiom used throughout this codebase's cmd/
// entrypoints: read, fall back to a documented default, never fail on
// a missing variable.
func FromEnv() Options {
	home := getEnv("MATTERBRIDGE_HOME", defaultHomeDir())

	return Options{
		HomeDir:     home,
		BridgeMode:  model.TopologyMode(getEnv("MATTERBRIDGE_MODE", string(model.TopologyModeBridge))),
		VirtualMode: model.VirtualMode(getEnv("MATTERBRIDGE_VIRTUAL_MODE", string(model.VirtualModeDisabled))),

		Port:          getEnvInt("MATTERBRIDGE_PORT", 0),
		MdnsInterface: getEnv("MATTERBRIDGE_MDNS_INTERFACE", ""),
		IPv4Address:   getEnv("MATTERBRIDGE_IPV4_ADDRESS", ""),
		IPv6Address:   getEnv("MATTERBRIDGE_IPV6_ADDRESS", ""),

		VendorID:    uint16(getEnvInt("MATTERBRIDGE_VENDOR_ID", 0xFFF1)),
		VendorName:  getEnv("MATTERBRIDGE_VENDOR_NAME", "Matterbridge"),
		ProductID:   uint16(getEnvInt("MATTERBRIDGE_PRODUCT_ID", 0x8000)),
		ProductName: getEnv("MATTERBRIDGE_PRODUCT_NAME", "Matterbridge"),

		LoggerLevel:       getEnv("MATTERBRIDGE_LOG_LEVEL", "info"),
		MatterLoggerLevel: getEnv("MATTERBRIDGE_MATTER_LOG_LEVEL", "info"),
		FileLogger:        getEnv("MATTERBRIDGE_FILE_LOGGER", "false") == "true",
		MatterFileLogger:  getEnv("MATTERBRIDGE_MATTER_FILE_LOGGER", "false") == "true",

		PluginDir: getEnv("MATTERBRIDGE_PLUGIN_DIR", home+"/plugins"),

		NoRestore: getEnv("MATTERBRIDGE_NO_RESTORE", "false") == "true",
		NoVirtual: getEnv("MATTERBRIDGE_NO_VIRTUAL", "false") == "true",
		ReadOnly:  getEnv("MATTERBRIDGE_READ_ONLY", "false") == "true",
		Profile:   getEnv("MATTERBRIDGE_PROFILE", ""),

		Password: os.Getenv("MATTERBRIDGE_PASSWORD"),

		FrontendNATSURL: getEnv("MATTERBRIDGE_FRONTEND_NATS_URL", ""),

		ShutdownGracePeriod:    getEnvDuration("MATTERBRIDGE_SHUTDOWN_GRACE_PERIOD", time.Second),
		ServerNodeCloseTimeout: getEnvDuration("MATTERBRIDGE_SERVER_NODE_CLOSE_TIMEOUT", 30*time.Second),
	}
}

func defaultHomeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h + "/.matterbridge"
	}
	return "./.matterbridge"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
