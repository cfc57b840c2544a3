// Package model defines the shared data types of the bridge
// supervisor: plugins, bridged endpoints, server nodes, and the
// storage contexts they persist through.
package model

import "time"

// PluginType distinguishes the two plugin archetypes the manager
// recognizes. An AccessoryPlatform contributes exactly one endpoint
// per instance; a DynamicPlatform may add or remove endpoints at
// runtime.
type PluginType string

const (
	PluginTypeAccessoryPlatform PluginType = "accessory_platform"
	PluginTypeDynamicPlatform   PluginType = "dynamic_platform"
)

// PluginState tracks a plugin instance through its lifecycle:
// added -> parsed -> loaded -> started -> configured, with in_error/shutdown as
// terminal or recoverable side states.
type PluginState string

const (
	PluginStateAdded      PluginState = "added"
	PluginStateParsed     PluginState = "parsed"
	PluginStateLoaded     PluginState = "loaded"
	PluginStateStarted    PluginState = "started"
	PluginStateConfigured PluginState = "configured"
	PluginStateInError    PluginState = "in_error"
	PluginStateShutdown   PluginState = "shutdown"
)

// Manifest describes a plugin's declared identity, independent of
// whether it is compiled in or dynamically loaded from a .so file.
type Manifest struct {
	Name        string     `json:"name"`
	Version     string     `json:"version"`
	Description string     `json:"description"`
	Author      string     `json:"author"`
	Path        string     `json:"path"`
	Type        PluginType `json:"type"`
}

// Plugin is one configured instance of a plugin within the roster.
// Identity is Name, unique across the system and immutable after
// registration.
type Plugin struct {
	Name             string                 `json:"name"`
	Manifest         Manifest               `json:"manifest"`
	Config           map[string]interface{} `json:"config"`
	Enabled          bool                   `json:"enabled"`
	Locked           bool                   `json:"locked"`
	State            PluginState            `json:"state"`
	LastError        string                 `json:"lastError,omitempty"`
	RegisteredDevices int                   `json:"registeredDevices"`
	AddedAt          time.Time              `json:"addedAt"`
	FailCount        int                    `json:"-"`
}

// Loaded reports whether the plugin has progressed at least to the
// loaded state and has not errored out.
func (p Plugin) Loaded() bool {
	switch p.State {
	case PluginStateLoaded, PluginStateStarted, PluginStateConfigured:
		return true
	default:
		return false
	}
}

// EndpointMode is the attachment mode a bridged endpoint was created
// with.
type EndpointMode string

const (
	EndpointModeBridge EndpointMode = "bridge"
	EndpointModeMatter EndpointMode = "matter"
	EndpointModeServer EndpointMode = "server"
)

// Endpoint is one bridged device endpoint contributed by a plugin.
// Identity within a Registry is the pair (PluginName, Serial).
type Endpoint struct {
	PluginName   string       `json:"pluginName"`
	Serial       string       `json:"serial"`
	UniqueID     string       `json:"uniqueId"`
	EndpointID   uint64       `json:"endpointId"`
	DeviceType   uint32       `json:"deviceType"`
	VendorID     uint16       `json:"vendorId"`
	VendorName   string       `json:"vendorName"`
	ProductID    uint16       `json:"productId"`
	ProductName  string       `json:"productName"`
	Name         string       `json:"name"`
	Mode         EndpointMode `json:"mode"`
	Children     []*Endpoint  `json:"children,omitempty"`
	IsAccessory  bool         `json:"isAccessory"`
}

// TopologyMode selects how server nodes are carved up across
// plugins.
type TopologyMode string

const (
	TopologyModeBridge      TopologyMode = "bridge"
	TopologyModeChildBridge TopologyMode = "childbridge"
	TopologyModeController  TopologyMode = "controller"
)

// VirtualMode selects the Matter device type, if any, used to expose
// supervisor commands as a virtual device.
type VirtualMode string

const (
	VirtualModeDisabled      VirtualMode = "disabled"
	VirtualModeOutlet        VirtualMode = "outlet"
	VirtualModeLight         VirtualMode = "light"
	VirtualModeSwitch        VirtualMode = "switch"
	VirtualModeMountedSwitch VirtualMode = "mounted_switch"
)

// ServerNodeSeed carries the allocated identity for a server node
// before it is brought online: port, passcode, and discriminator,
// resolved with precedence CLI > pairing file > persisted store >
// random, then consumed and post-incremented per server node created.
type ServerNodeSeed struct {
	Port          int    `json:"port"`
	Passcode      uint32 `json:"passcode"`
	Discriminator uint16 `json:"discriminator"`
}

// DefaultPort is the well-known first Matter server node port, used
// for the shared bridge-mode node absent any other configuration.
const DefaultPort = 5540

// ServerNodeState mirrors the adapter's observable lifecycle.
type ServerNodeState string

const (
	ServerNodeStateCreated               ServerNodeState = "created"
	ServerNodeStateOnlineUncommissioned  ServerNodeState = "online_uncommissioned"
	ServerNodeStateOnlineCommissioned    ServerNodeState = "online_commissioned"
	ServerNodeStateOffline               ServerNodeState = "offline"
)

// ServerNode is one Matter-network identity: the shared aggregator
// node (bridge mode) or a per-plugin node (childbridge mode).
type ServerNode struct {
	StoreID        string
	Seed           ServerNodeSeed
	State          ServerNodeState
	AggregatorOnly bool
	PluginNames    []string
	SerialNumber   string
	UniqueID       string

	AdvertisingStartedAt time.Time
}

// Advertising reports whether the node is still within its 15 minute
// uncommissioned advertising window.
func (s ServerNode) Advertising(now time.Time) bool {
	if s.AdvertisingStartedAt.IsZero() {
		return false
	}
	return now.Sub(s.AdvertisingStartedAt) < 15*time.Minute
}

// MatterStorageContext is the namespace handed to the Matter runtime
// adapter for one server node's persisted fabric/session/ACL state.
type MatterStorageContext struct {
	StoreID string
}

// NodeStorage is the supervisor's own persisted configuration: the
// plugin roster, allocated seeds, and process-level settings that
// must survive a restart.
type NodeStorage struct {
	BridgeMode   TopologyMode              `json:"bridgeMode"`
	VirtualMode  VirtualMode               `json:"virtualmode"`
	Seeds        map[string]ServerNodeSeed `json:"seeds"`
	Password     string                    `json:"password,omitempty"`
}
