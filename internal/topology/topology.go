// Package topology builds Matter server nodes and aggregator endpoints
// for the supervisor's three commissioning modes (spec.md §4.5):
// bridge (one shared server node), childbridge (one server node per
// enabled plugin), and controller (reserved, unimplemented here).
package topology

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
	"github.com/matterbridge-go/matterbridge/internal/fanout"
	"github.com/matterbridge-go/matterbridge/internal/frontend"
	"github.com/matterbridge-go/matterbridge/internal/logger"
	"github.com/matterbridge-go/matterbridge/internal/matteradapter"
	"github.com/matterbridge-go/matterbridge/internal/metrics"
	"github.com/matterbridge-go/matterbridge/internal/model"
	"github.com/matterbridge-go/matterbridge/internal/plugin"
	"github.com/matterbridge-go/matterbridge/internal/registry"
	"github.com/matterbridge-go/matterbridge/internal/timer"
)

// BridgeStoreID names the single shared server node in bridge mode.
const BridgeStoreID = "Matterbridge"

const (
	configureWaveDelay    = 30 * time.Second
	reachabilityWaveDelay = 60 * time.Second
	startupPollInterval   = 1 * time.Second

	// DefaultFailCountLimit and EmbeddedFailCountLimit are the two
	// failCountLimit profiles spec.md §4.4 names: a plugin that has
	// not progressed from loaded to started within this many
	// 1-second ticks is declared in-error and startup is halted.
	DefaultFailCountLimit  = 120
	EmbeddedFailCountLimit = 600
)

// nodeHandle bundles a server node's model-level description with its
// live adapter handles.
type nodeHandle struct {
	node        model.ServerNode
	adapterNode matteradapter.ServerNode
	aggregator  matteradapter.Endpoint
}

// Builder orchestrates the commissioning topology. It is constructed
// once per supervisor run and torn down by Close during cleanup.
type Builder struct {
	adapter  matteradapter.Adapter
	plugins  *plugin.Manager
	devices  *registry.Registry
	notifier frontend.Notifier
	timers   *timer.Registry
	metrics  *metrics.Metrics
	fan      *fanout.Fanout

	mu          sync.Mutex
	nodes       map[string]*nodeHandle
	advertising map[string]time.Time
	accessoryCount map[string]int

	alloc  *Allocator
	vendor VendorInfo

	failCountLimit int
}

// New constructs a Builder. Every collaborator is injected so tests
// can substitute fakes for the adapter and notifier. failCountLimit
// defaults to DefaultFailCountLimit; call SetFailCountLimit to apply
// the embedded-board profile.
func New(adapter matteradapter.Adapter, plugins *plugin.Manager, devices *registry.Registry, notifier frontend.Notifier, timers *timer.Registry, m *metrics.Metrics) *Builder {
	return &Builder{
		adapter:        adapter,
		plugins:        plugins,
		devices:        devices,
		notifier:       notifier,
		timers:         timers,
		metrics:        m,
		fan:            fanout.New(notifier, m),
		nodes:          make(map[string]*nodeHandle),
		advertising:    make(map[string]time.Time),
		accessoryCount: make(map[string]int),
		failCountLimit: DefaultFailCountLimit,
	}
}

// SetFailCountLimit overrides the fail-safe counter's tick limit
// (spec.md §4.4). The lifecycle supervisor calls this with
// EmbeddedFailCountLimit under the embedded-board profile.
func (b *Builder) SetFailCountLimit(n int) {
	b.failCountLimit = n
}

// BuildBridge implements the `bridge` build ordering: create server
// node -> create aggregator -> add aggregator -> add virtual devices
// -> start plugins -> when all plugins started, start the server node
// -> schedule the configure and reachability waves.
func (b *Builder) BuildBridge(ctx context.Context, alloc *Allocator, virtualMode model.VirtualMode, vendor VendorInfo) error {
	b.alloc = alloc
	b.vendor = vendor
	seed := alloc.Next()

	cfg := matteradapter.ServerNodeConfig{
		StoreID:       BridgeStoreID,
		Port:          seed.Port,
		Passcode:      seed.Passcode,
		Discriminator: seed.Discriminator,
		VendorID:      vendor.VendorID,
		VendorName:    vendor.VendorName,
		ProductID:     vendor.ProductID,
		ProductName:   vendor.ProductName,
		Certification: vendor.Certification,
	}

	adapterNode, err := b.adapter.CreateServerNode(cfg)
	if err != nil {
		return apperr.Matter(apperr.CodeServerNodeStartError, "create bridge server node", err)
	}

	aggregator, err := b.adapter.CreateAggregatorEndpoint(1)
	if err != nil {
		return apperr.Matter(apperr.CodeServerNodeStartError, "create bridge aggregator", err)
	}
	if err := adapterNode.Add(aggregator); err != nil {
		return apperr.Matter(apperr.CodeAddEndpointError, "attach bridge aggregator", err)
	}

	handle := &nodeHandle{
		node:        model.ServerNode{StoreID: BridgeStoreID, Seed: seed, AggregatorOnly: false},
		adapterNode: adapterNode,
		aggregator:  aggregator,
	}
	b.mu.Lock()
	b.nodes[BridgeStoreID] = handle
	b.mu.Unlock()

	b.trackAdvertising(BridgeStoreID, adapterNode)

	if virtualMode != model.VirtualModeDisabled {
		if err := b.addVirtualDevice(aggregator, virtualMode); err != nil {
			logger.Topology().Warn().Err(err).Msg("failed to add virtual device")
		}
	}

	if err := b.startAllPlugins(ctx, bridgeDeviceAdder{builder: b}); err != nil {
		return err
	}

	if b.plugins.AnyInError() {
		logger.Topology().Warn().Msg("a plugin is in error; bridge server node will not be started")
		if b.notifier != nil {
			b.notifier.SnackbarMessage("a plugin is in error state; disable it and restart", 0, frontend.SeverityError)
		}
		return nil
	}

	if err := adapterNode.Start(ctx); err != nil {
		return apperr.Matter(apperr.CodeServerNodeStartError, "start bridge server node", err)
	}
	if b.metrics != nil {
		b.metrics.ServerNodesOnline.Inc()
	}

	b.scheduleWaves(BridgeStoreID, []string{})
	return nil
}

// BuildChildBridge implements the `childbridge` build ordering:
// pre-create a server node for every enabled plugin (plus an aggregator
// for each DynamicPlatform), load and start all plugins concurrently
// and wait for those calls to return (bounded by the fail-safe
// counter), then start each server node and schedule the same waves.
// There is no separate blocking load pass before the server nodes are
// created.
func (b *Builder) BuildChildBridge(ctx context.Context, alloc *Allocator, vendor VendorInfo) error {
	b.alloc = alloc
	b.vendor = vendor
	enabled := b.plugins.Enabled()

	// Pre-create each plugin's server node before any plugin loads, so
	// childBridgeDeviceAdder finds it when OnLoad registers devices.
	for _, p := range enabled {
		seed := alloc.Next()
		cfg := matteradapter.ServerNodeConfig{
			StoreID:       p.Name,
			Port:          seed.Port,
			Passcode:      seed.Passcode,
			Discriminator: seed.Discriminator,
			VendorID:      vendor.VendorID,
			VendorName:    vendor.VendorName,
			ProductID:     vendor.ProductID,
			ProductName:   vendor.ProductName,
			Certification: vendor.Certification,
		}
		adapterNode, err := b.adapter.CreateServerNode(cfg)
		if err != nil {
			logger.Topology().Error().Str("plugin", p.Name).Err(err).Msg("failed to create server node, isolating plugin")
			continue
		}

		handle := &nodeHandle{node: model.ServerNode{StoreID: p.Name, Seed: seed}, adapterNode: adapterNode}

		if p.Manifest.Type == model.PluginTypeDynamicPlatform {
			aggregator, err := b.adapter.CreateAggregatorEndpoint(1)
			if err != nil {
				logger.Topology().Error().Str("plugin", p.Name).Err(err).Msg("failed to create aggregator, isolating plugin")
				continue
			}
			if err := adapterNode.Add(aggregator); err != nil {
				logger.Topology().Error().Str("plugin", p.Name).Err(err).Msg("failed to attach aggregator, isolating plugin")
				continue
			}
			handle.aggregator = aggregator
			handle.node.AggregatorOnly = true
		}

		b.mu.Lock()
		b.nodes[p.Name] = handle
		b.mu.Unlock()
	}

	if err := b.startAllPlugins(ctx, childBridgeDeviceAdder{builder: b}); err != nil {
		return err
	}

	// Pre-flight: warn about any non-DynamicPlatform plugin that
	// registered zero devices. The plugin is not rejected or marked in
	// error, and its server node is still started.
	for _, p := range enabled {
		if p.Manifest.Type != model.PluginTypeDynamicPlatform && b.devices.Count(p.Name) == 0 {
			logger.Topology().Warn().Str("plugin", p.Name).Msg("accessory plugin registered zero devices")
		}
	}

	if b.plugins.AnyInError() {
		logger.Topology().Warn().Msg("a plugin is in error; childbridge server nodes will not be started")
		if b.notifier != nil {
			b.notifier.SnackbarMessage("a plugin is in error state; disable it and restart", 0, frontend.SeverityError)
		}
		return nil
	}

	type startEntry struct {
		name   string
		handle *nodeHandle
	}
	b.mu.Lock()
	entries := make([]startEntry, 0, len(b.nodes))
	for name, h := range b.nodes {
		entries = append(entries, startEntry{name: name, handle: h})
	}
	b.mu.Unlock()

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.name)
		if err := e.handle.adapterNode.Start(ctx); err != nil {
			logger.Topology().Error().Str("plugin", e.name).Err(err).Msg("failed to start server node")
		} else if b.metrics != nil {
			b.metrics.ServerNodesOnline.Inc()
		}
		b.trackAdvertising(e.name, e.handle.adapterNode)
	}

	b.scheduleWaves("childbridge", names)
	return nil
}

// startAllPlugins loads and starts every enabled plugin concurrently,
// isolating each plugin's failure (golang.org/x/sync/errgroup is used
// purely for the bounded fan-out and completion barrier; a single
// plugin's error is captured per-plugin and never cancels its
// siblings, since spec.md's isolation invariant forbids one plugin's
// failure from aborting another's load).
//
// Running alongside the fan-out is the fail-safe counter (spec.md
// §4.4): a 1-second time.Ticker poll that declares any plugin still
// stuck between loaded and started in-error once failCountLimit ticks
// have elapsed, and halts startup rather than waiting on a hung
// plugin forever. Since plugin.Handler.OnStart offers no cancellation
// hook, the goroutine actually blocked in a hung OnStart is left
// running; the poll only stops the *supervisor* from waiting on it.
func (b *Builder) startAllPlugins(ctx context.Context, adder plugin.DeviceAdder) error {
	enabled := b.plugins.Enabled()

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, p := range enabled {
		name := p.Name
		g.Go(func() error {
			if err := b.plugins.Load(name, adder, true, "starting"); err != nil {
				logger.Topology().Warn().Str("plugin", name).Err(err).Msg("plugin failed to load/start")
				if b.metrics != nil {
					b.metrics.PluginLoadErrors.Inc()
				}
				return nil
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	ticker := time.NewTicker(startupPollInterval)
	defer ticker.Stop()

	limit := b.failCountLimit
	if limit <= 0 {
		limit = DefaultFailCountLimit
	}

	ticks := 0
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			ticks++
			if ticks < limit {
				continue
			}
			return b.haltStuckPlugins(enabled)
		}
	}
}

// haltStuckPlugins marks every enabled plugin that has not reached
// started/configured/in_error in-error, and reports the failure that
// halts the startup sequence.
func (b *Builder) haltStuckPlugins(enabled []model.Plugin) error {
	var stuck []string
	for _, p := range enabled {
		current, ok := b.plugins.Get(p.Name)
		if !ok {
			continue
		}
		switch current.State {
		case model.PluginStateStarted, model.PluginStateConfigured, model.PluginStateInError:
			continue
		}
		err := apperr.Plugin(apperr.CodePluginStartTimeout, "plugin "+p.Name+" did not reach started within the fail-safe counter limit", nil, false)
		_ = b.plugins.MarkInError(p.Name, err)
		stuck = append(stuck, p.Name)
	}

	logger.Topology().Error().Strs("plugins", stuck).Int("failCountLimit", b.failCountLimit).Msg("fail-safe counter tripped, halting startup")
	return apperr.Matter(apperr.CodeServerNodeStartError, "startup halted: plugin(s) stuck loading past the fail-safe counter limit", nil)
}

// scheduleWaves registers the +30s configure wave and the +60s
// reachability wave for the given server node names.
func (b *Builder) scheduleWaves(key string, names []string) {
	b.timers.After("configure-wave-"+key, configureWaveDelay, func() {
		for _, name := range names {
			_ = b.plugins.Configure(name)
		}
		if key == BridgeStoreID {
			for _, p := range b.plugins.Enabled() {
				_ = b.plugins.Configure(p.Name)
			}
		}
	})

	b.timers.After("reachability-wave-"+key, reachabilityWaveDelay, func() {
		if b.notifier != nil {
			b.notifier.RefreshRequired(frontend.ScopeReachability)
		}
	})
}

// trackAdvertising records the advertising-start timestamp for an
// uncommissioned node and wires a subscription that clears it on
// commissioning/decommissioning/offline, per spec.md §4.5.
func (b *Builder) trackAdvertising(storeID string, node matteradapter.ServerNode) {
	b.mu.Lock()
	b.advertising[storeID] = time.Now()
	b.mu.Unlock()

	node.Subscribe(func(ev matteradapter.Event) {
		switch ev.Kind {
		case matteradapter.EventCommissioned, matteradapter.EventDecommissioned, matteradapter.EventOffline:
			b.mu.Lock()
			delete(b.advertising, storeID)
			b.mu.Unlock()
		case matteradapter.EventOnline:
			b.mu.Lock()
			b.advertising[storeID] = time.Now()
			b.mu.Unlock()
		}
	})
}

// Advertising reports whether storeID is within its 15 minute
// uncommissioned advertising window.
func (b *Builder) Advertising(storeID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	start, ok := b.advertising[storeID]
	if !ok {
		return false
	}
	return time.Since(start) < 15*time.Minute
}

// VendorInfo carries the vendor/product descriptors applied to every
// server node created by this builder, plus an optional pairing-file
// certification override applied the same way (spec.md §4.8).
type VendorInfo struct {
	VendorID    uint16
	VendorName  string
	ProductID   uint16
	ProductName string

	Certification *matteradapter.DeviceCertification
}

// Close stops every server node this builder started, honoring the
// caller-supplied close timeout per node; timeouts are logged and
// swallowed so cleanup always makes progress.
func (b *Builder) Close(ctx context.Context, timeout time.Duration) {
	b.mu.Lock()
	nodes := make([]*nodeHandle, 0, len(b.nodes))
	for _, h := range b.nodes {
		nodes = append(nodes, h)
	}
	b.mu.Unlock()

	for _, h := range nodes {
		if err := h.adapterNode.Close(ctx, timeout); err != nil {
			logger.Topology().Warn().Str("store_id", h.node.StoreID).Err(err).Msg("server node close did not complete cleanly")
		}
	}
}
