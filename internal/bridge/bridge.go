// Package bridge implements the lifecycle supervisor: the top-level
// state machine that initializes the store, negotiates a commissioning
// mode, drives the topology builder, and owns the cleanup sequence run
// on shutdown or on an operator-issued reset/restart/factory-reset.
package bridge

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
	"github.com/matterbridge-go/matterbridge/internal/config"
	"github.com/matterbridge-go/matterbridge/internal/fanout"
	"github.com/matterbridge-go/matterbridge/internal/frontend"
	"github.com/matterbridge-go/matterbridge/internal/kvstore"
	"github.com/matterbridge-go/matterbridge/internal/logger"
	"github.com/matterbridge-go/matterbridge/internal/matteradapter"
	"github.com/matterbridge-go/matterbridge/internal/metrics"
	"github.com/matterbridge-go/matterbridge/internal/model"
	"github.com/matterbridge-go/matterbridge/internal/pairing"
	"github.com/matterbridge-go/matterbridge/internal/plugin"
	"github.com/matterbridge-go/matterbridge/internal/registry"
	"github.com/matterbridge-go/matterbridge/internal/timer"
	"github.com/matterbridge-go/matterbridge/internal/topology"
)

// State names the supervisor's top-level lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateRunning       State = "running"
	StateCleaning      State = "cleaning"
	StateTerminated    State = "terminated"
)

// CleanupReason selects the terminal action the cleanup sequence takes
// once every plugin and server node has been shut down.
type CleanupReason string

const (
	CleanupShutdown        CleanupReason = "shutdown"
	CleanupRestart         CleanupReason = "restart"
	CleanupUpdate          CleanupReason = "update"
	CleanupReset           CleanupReason = "reset"
	CleanupUnregisteredAll CleanupReason = "unregistered-all"
	CleanupFactoryReset    CleanupReason = "factory-reset"
)

const inFlightDrainTimeout = 1 * time.Second

var (
	instance     *Supervisor
	instanceOnce sync.Once
)

// Get returns the process-wide Supervisor singleton, constructing it
// on first call. Most callers (cmd/matterbridged) use this; tests
// construct independent supervisors with New to stay isolated from
// each other.
func Get(opts config.Options) *Supervisor {
	instanceOnce.Do(func() {
		instance = New(opts)
	})
	return instance
}

// Supervisor owns the full lifecycle: initialization, the running
// topology, and cleanup. Every exported method is safe to call from
// the signal handler goroutine and from an API/CLI handler goroutine
// concurrently; state transitions are serialized under mu.
type Supervisor struct {
	opts config.Options

	mu    sync.Mutex
	state State
	mode  model.TopologyMode

	store       *kvstore.Store
	matterStore *kvstore.Store
	ns          *kvstore.Namespace

	adapter   matteradapter.Adapter
	notifier  frontend.Notifier
	plugins   *plugin.Manager
	discovery *plugin.Discovery
	devices   *registry.Registry
	fan       *fanout.Fanout
	timers    *timer.Registry
	metrics   *metrics.Metrics
	topo      *topology.Builder

	override *pairing.Override

	signals   chan os.Signal
	cleanupWG sync.WaitGroup
	cleaning  bool
}

// New constructs a Supervisor. It does not start anything — call
// Initialize, then Run.
func New(opts config.Options) *Supervisor {
	return &Supervisor{
		opts:    opts,
		state:   StateUninitialized,
		signals: make(chan os.Signal, 1),
	}
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize runs the startup sequence described in spec.md §4.7:
// resolve directories, open the supervisor store with recovery,
// load the pairing file, validate network overrides, decide the
// bridge mode, load the plugin roster, and register the process-level
// signal handlers. It stops short of resolving seeds and standing up
// the Matter topology — call Run for that.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return apperr.Matter(apperr.CodeServerNodeStartError, "supervisor already initialized", nil)
	}
	s.state = StateInitializing
	s.mu.Unlock()

	logger.Bridge().Info().Str("home", s.opts.HomeDir).Msg("initializing supervisor")

	if err := validateNetworkConfig(s.opts); err != nil {
		return err
	}

	if err := os.MkdirAll(s.opts.HomeDir, 0o755); err != nil {
		return apperr.Storage(apperr.CodeNamespaceNotFound, "create home directory", err)
	}
	if err := os.MkdirAll(s.opts.PluginDir, 0o755); err != nil {
		return apperr.Storage(apperr.CodeNamespaceNotFound, "create plugin directory", err)
	}

	store, err := s.openStoreWithRecovery(s.opts.HomeDir + "/storage")
	if err != nil {
		return err
	}
	s.store = store

	matterStore, err := s.openStoreWithRecovery(s.opts.HomeDir + "/matterstorage")
	if err != nil {
		return err
	}
	s.matterStore = matterStore

	ns, err := store.Namespace("matterbridge")
	if err != nil {
		return err
	}
	s.ns = ns

	override, err := pairing.Load(s.opts.HomeDir)
	if err != nil {
		return err
	}
	s.override = override

	if s.opts.Password != "" {
		if err := s.persistPassword(ns, s.opts.Password); err != nil {
			return err
		}
	}

	s.adapter = matteradapter.New()
	s.metrics = metrics.New()
	s.timers = timer.New()

	notifier, err := frontend.NewNATSNotifier(frontend.NATSConfig{URL: s.opts.FrontendNATSURL})
	if err != nil {
		return err
	}
	if s.opts.FrontendNATSURL == "" {
		s.notifier = frontend.NewChanNotifier(64)
	} else {
		s.notifier = notifier
	}

	s.devices = registry.New(s.notifier)
	s.fan = fanout.New(s.notifier, s.metrics)

	s.discovery = plugin.NewDiscovery(s.opts.PluginDir, s.opts.HomeDir+"/plugins")
	plugins, err := plugin.New(s.store, s.discovery, s.notifier)
	if err != nil {
		return err
	}
	s.plugins = plugins

	if err := s.discovery.Watch(func() {
		logger.Bridge().Info().Msg("plugin directory changed, rescan available")
		if s.notifier != nil {
			s.notifier.RefreshRequired(frontend.ScopePlugins)
		}
	}); err != nil {
		logger.Bridge().Warn().Err(err).Msg("could not start plugin directory watch")
	}

	for _, p := range s.plugins.List() {
		if err := s.plugins.Parse(p.Name); err != nil {
			logger.Bridge().Warn().Str("plugin", p.Name).Err(err).Msg("plugin manifest invalid, isolating")
		}
	}

	mode := s.opts.BridgeMode
	if mode == "" {
		mode = model.TopologyModeBridge
	}
	s.mode = mode

	s.topo = topology.New(s.adapter, s.plugins, s.devices, s.notifier, s.timers, s.metrics)
	if s.opts.Profile == "embedded" {
		s.topo.SetFailCountLimit(topology.EmbeddedFailCountLimit)
	}

	s.registerSignalHandlers()

	logger.Bridge().Info().Str("mode", string(s.mode)).Msg("supervisor initialized")
	return nil
}

// openStoreWithRecovery opens a kvstore.Store at dir, restoring from
// its sibling backup if the root is missing, empty, or contains
// unparseable records, and a backup exists (spec.md §4.1 open
// protocol). A successful open that did not need restoring refreshes
// the backup so the next crash has something recent to recover from.
// MATTERBRIDGE_NO_RESTORE disables the automatic restore, surfacing
// the corruption as a fatal error instead — an operator diagnosing a
// corrupt store does not want it silently papered over.
func (s *Supervisor) openStoreWithRecovery(dir string) (*kvstore.Store, error) {
	missingOrEmpty := false
	if entries, err := os.ReadDir(dir); err != nil || len(entries) == 0 {
		missingOrEmpty = true
	}

	store, err := kvstore.Open(dir)
	if err != nil {
		return nil, err
	}

	corrupt := false
	if !missingOrEmpty {
		if err := store.Validate(); err != nil {
			logger.Bridge().Warn().Str("dir", dir).Err(err).Msg("store contains corrupt records")
			corrupt = true
		}
	}

	switch {
	case corrupt && s.opts.NoRestore:
		return nil, apperr.Storage(apperr.CodeCorruptRecord, "store at "+dir+" contains corrupt records and MATTERBRIDGE_NO_RESTORE is set", nil)
	case corrupt && !store.HasBackup():
		return nil, apperr.Storage(apperr.CodeRestoreFailed, "store at "+dir+" is corrupt and no backup exists", nil)
	case corrupt:
		logger.Bridge().Warn().Str("dir", dir).Msg("store corrupt, restoring from backup")
		if err := store.Restore(); err != nil {
			return nil, err
		}
		return store, nil
	case missingOrEmpty && store.HasBackup() && !s.opts.NoRestore:
		logger.Bridge().Warn().Str("dir", dir).Msg("store root missing or empty, restoring from backup")
		if err := store.Restore(); err != nil {
			return nil, err
		}
		return store, nil
	}

	if err := store.Backup(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Supervisor) registerSignalHandlers() {
	signal.Notify(s.signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signals
		if !ok {
			return
		}
		logger.Bridge().Info().Str("signal", sig.String()).Msg("received shutdown signal")
		s.Cleanup(context.Background(), CleanupShutdown)
	}()
}

func (s *Supervisor) deregisterSignalHandlers() {
	signal.Stop(s.signals)
}

// resolveVendor merges the configured vendor/product identity with any
// pairing-file override (spec.md §4.8 precedence: pairing file beats
// configured defaults field-by-field).
func (s *Supervisor) resolveVendor() topology.VendorInfo {
	vendor := topology.VendorInfo{
		VendorID:    s.opts.VendorID,
		VendorName:  s.opts.VendorName,
		ProductID:   s.opts.ProductID,
		ProductName: s.opts.ProductName,
	}
	if s.override == nil {
		return vendor
	}
	if s.override.VendorID != nil {
		vendor.VendorID = *s.override.VendorID
	}
	if s.override.VendorName != nil {
		vendor.VendorName = *s.override.VendorName
	}
	if s.override.ProductID != nil {
		vendor.ProductID = *s.override.ProductID
	}
	if s.override.ProductName != nil {
		vendor.ProductName = *s.override.ProductName
	}
	vendor.Certification = s.override.Certification
	return vendor
}

// validateNetworkConfig checks that any configured mDNS interface and
// IPv4/IPv6 address overrides actually name something on this host,
// rejecting typos before they surface as an obscure mDNS bind failure
// deep inside the adapter.
func validateNetworkConfig(opts config.Options) error {
	if opts.MdnsInterface != "" {
		if _, err := net.InterfaceByName(opts.MdnsInterface); err != nil {
			return apperr.Config(apperr.CodeInvalidNetworkConfig, "mDNS interface "+opts.MdnsInterface+" not found", err)
		}
	}
	if opts.IPv4Address != "" {
		ip := net.ParseIP(opts.IPv4Address)
		if ip == nil || ip.To4() == nil {
			return apperr.Config(apperr.CodeInvalidNetworkConfig, "invalid IPv4 address override "+opts.IPv4Address, nil)
		}
	}
	if opts.IPv6Address != "" {
		ip := net.ParseIP(opts.IPv6Address)
		if ip == nil || ip.To4() != nil {
			return apperr.Config(apperr.CodeInvalidNetworkConfig, "invalid IPv6 address override "+opts.IPv6Address, nil)
		}
	}
	return nil
}

// Run stands up the commissioning topology for the negotiated mode and
// transitions to StateRunning. It must follow a successful Initialize.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateInitializing {
		s.mu.Unlock()
		return apperr.Matter(apperr.CodeServerNodeStartError, "supervisor is not ready to run", nil)
	}
	s.mu.Unlock()

	vendor := s.resolveVendor()

	var persisted model.ServerNodeSeed
	_ = s.ns.Get("seed", &persisted)

	seedSource := topology.SeedSource{
		CLIPort:   s.opts.Port,
		Persisted: persisted,
		Adapter:   s.adapter,
	}
	if s.override != nil {
		seedSource.PairingPasscode = s.override.Passcode
		seedSource.PairingDiscriminator = s.override.Discriminator
	}
	start, err := seedSource.Resolve()
	if err != nil {
		return err
	}
	alloc := topology.NewAllocator(start)

	switch s.mode {
	case model.TopologyModeChildBridge:
		err = s.topo.BuildChildBridge(ctx, alloc, vendor)
	case model.TopologyModeController:
		return apperr.Matter(apperr.CodeServerNodeStartError, "controller mode is reserved and not implemented", nil)
	default:
		err = s.topo.BuildBridge(ctx, alloc, s.opts.VirtualMode, vendor)
	}
	if err != nil {
		return err
	}

	_ = s.ns.Set("seed", alloc.Current())

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	logger.Bridge().Info().Str("mode", string(s.mode)).Msg("supervisor running")
	return nil
}

// Cleanup runs the shutdown sequence (spec.md §4.7): clear timers,
// shut down every enabled non-error plugin, drain in-flight exchanges,
// stop server nodes, apply reason-specific storage handling, close
// the notifier and the plugin directory watch, deregister handlers,
// and transition to StateTerminated. A
// second concurrent call while one is in flight is a no-op.
func (s *Supervisor) Cleanup(ctx context.Context, reason CleanupReason) error {
	s.mu.Lock()
	if s.cleaning || s.state == StateTerminated {
		s.mu.Unlock()
		return nil
	}
	s.cleaning = true
	s.state = StateCleaning
	s.mu.Unlock()

	start := time.Now()
	logger.Bridge().Info().Str("reason", string(reason)).Msg("cleanup_started")

	var errs error

	if s.timers != nil {
		s.timers.CancelAll()
	}

	if s.plugins != nil {
		for _, p := range s.plugins.Enabled() {
			if p.State == model.PluginStateInError {
				continue
			}
			if err := s.plugins.Shutdown(p.Name, "closing: "+string(reason), false); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}

	time.Sleep(inFlightDrainTimeout)

	if s.topo != nil {
		s.topo.Close(ctx, s.opts.ServerNodeCloseTimeout)
	}

	switch reason {
	case CleanupReset:
		if s.ns != nil {
			if err := s.ns.Remove("seed"); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	case CleanupUnregisteredAll:
		if s.devices != nil {
			s.devices.Clear()
		}
	case CleanupFactoryReset:
		if s.matterStore != nil {
			if err := os.RemoveAll(s.matterStore.Root()); err != nil {
				errs = multierr.Append(errs, err)
			}
			_ = os.RemoveAll(s.matterStore.Root() + ".backup")
		}
		if s.store != nil {
			if err := os.RemoveAll(s.store.Root()); err != nil {
				errs = multierr.Append(errs, err)
			}
			_ = os.RemoveAll(s.store.Root() + ".backup")
		}
	}

	if s.notifier != nil {
		if err := s.notifier.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if s.discovery != nil {
		if err := s.discovery.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	s.deregisterSignalHandlers()

	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.CleanupDuration.Observe(time.Since(start).Seconds())
	}

	logger.Bridge().Info().Str("reason", string(reason)).Err(errs).Msg("cleanup_completed")
	return errs
}

// Devices exposes the device registry for API/CLI callers.
func (s *Supervisor) Devices() *registry.Registry { return s.devices }

// Plugins exposes the plugin manager for API/CLI callers.
func (s *Supervisor) Plugins() *plugin.Manager { return s.plugins }

// Metrics exposes the metrics bundle and its private registry, for a
// caller that wants to serve /metrics itself.
func (s *Supervisor) Metrics() *metrics.Metrics { return s.metrics }

// Notifier exposes the frontend outbound contract.
func (s *Supervisor) Notifier() frontend.Notifier { return s.notifier }
