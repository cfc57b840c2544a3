// Package plugin implements the plugin manager: it owns the persisted
// plugin roster and drives each plugin instance through
// parse -> load -> start -> configure -> shutdown, isolating failures
// to the offending plugin per spec.md §4.4/§4.7.
package plugin

import (
	"fmt"
	"sync"
	"time"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
	"github.com/matterbridge-go/matterbridge/internal/frontend"
	"github.com/matterbridge-go/matterbridge/internal/kvstore"
	"github.com/matterbridge-go/matterbridge/internal/logger"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

const rosterKey = "roster"

// Loaded is the in-memory counterpart of a roster entry: the
// persisted model.Plugin plus its live Handler and Context, once
// loaded.
type Loaded struct {
	model.Plugin
	Handler Handler
	Context *Context
}

// Manager owns the plugin roster (persisted) and the loaded instances
// (in-memory). All public methods are safe for concurrent use; the
// in-memory map is guarded by a single RWMutex as in the teacher's
// Runtime, since plugin count is small and lock contention is not a
// concern at this scale.
type Manager struct {
	store     *kvstore.Store
	ns        *kvstore.Namespace
	discovery *Discovery
	notifier  frontend.Notifier

	mu      sync.RWMutex
	roster  map[string]*model.Plugin
	loaded  map[string]*Loaded
}

// New constructs a Manager backed by store's "matterbridge" namespace
// for the roster; each plugin's isolated storage is the namespace
// named after the plugin itself.
func New(store *kvstore.Store, discovery *Discovery, notifier frontend.Notifier) (*Manager, error) {
	ns, err := store.Namespace("matterbridge")
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:     store,
		ns:        ns,
		discovery: discovery,
		notifier:  notifier,
		roster:    make(map[string]*model.Plugin),
		loaded:    make(map[string]*Loaded),
	}

	var persisted []model.Plugin
	if err := ns.Get(rosterKey, &persisted); err != nil && !apperr.Is(err, apperr.CodeKeyNotFound) {
		return nil, err
	}
	for i := range persisted {
		p := persisted[i]
		m.roster[p.Name] = &p
	}

	return m, nil
}

func (m *Manager) persistRoster() error {
	list := make([]model.Plugin, 0, len(m.roster))
	for _, p := range m.roster {
		list = append(list, *p)
	}
	return m.ns.Set(rosterKey, list)
}

// Add appends the caller-supplied manifest to the roster with
// enabled=true and, when ctor is non-nil, registers it under the
// manifest name. ref is not read: no package name or path is resolved
// to a manifest here. It fails if a plugin with the same manifest name
// is already registered.
func (m *Manager) Add(ref string, ctor ConstructorFunc, manifest model.Manifest, config map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.roster[manifest.Name]; exists {
		return apperr.Plugin(apperr.CodeDuplicatePlugin, "plugin "+manifest.Name+" already registered", nil, false)
	}

	if ctor != nil {
		Register(manifest.Name, ctor)
	}

	m.roster[manifest.Name] = &model.Plugin{
		Name:     manifest.Name,
		Manifest: manifest,
		Config:   config,
		Enabled:  true,
		State:    model.PluginStateAdded,
		AddedAt:  time.Now(),
	}
	return m.persistRoster()
}

// Remove shuts the plugin down, optionally clears its Matter
// namespace, then drops it from the roster.
func (m *Manager) Remove(name string, reason string, clearMatterNamespace func() error) error {
	m.mu.Lock()
	p, ok := m.roster[name]
	m.mu.Unlock()
	if !ok {
		return apperr.Plugin(apperr.CodePluginNotFound, "plugin "+name+" not found", nil, false)
	}

	if p.Loaded() {
		if err := m.Shutdown(name, reason, true); err != nil {
			logger.Plugin().Warn().Str("plugin", name).Err(err).Msg("shutdown during remove reported an error, continuing")
		}
	}

	if clearMatterNamespace != nil {
		if err := clearMatterNamespace(); err != nil {
			logger.Plugin().Warn().Str("plugin", name).Err(err).Msg("failed to clear matter namespace during remove")
		}
	}

	m.mu.Lock()
	delete(m.roster, name)
	delete(m.loaded, name)
	err := m.persistRoster()
	m.mu.Unlock()
	return err
}

// Enable or Disable toggle the persisted flag. Disable also resets the
// state to added and, after persisting, shuts down a plugin that was
// enabled (a loaded one then ends in the shutdown state).
func (m *Manager) Enable(name string) error  { return m.setEnabled(name, true) }
func (m *Manager) Disable(name string) error { return m.setEnabled(name, false) }

func (m *Manager) setEnabled(name string, enabled bool) error {
	m.mu.Lock()
	p, ok := m.roster[name]
	if !ok {
		m.mu.Unlock()
		return apperr.Plugin(apperr.CodePluginNotFound, "plugin "+name+" not found", nil, false)
	}
	wasEnabled := p.Enabled
	p.Enabled = enabled
	if !enabled {
		p.State = model.PluginStateAdded
	}
	err := m.persistRoster()
	m.mu.Unlock()

	if wasEnabled && !enabled {
		_ = m.Shutdown(name, "disabled", false)
	}
	return err
}

// Get returns a copy of the roster entry for name.
func (m *Manager) Get(name string) (model.Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.roster[name]
	if !ok {
		return model.Plugin{}, false
	}
	return *p, true
}

// List returns every roster entry.
func (m *Manager) List() []model.Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Plugin, 0, len(m.roster))
	for _, p := range m.roster {
		out = append(out, *p)
	}
	return out
}

// Parse validates the roster entry's manifest. A malformed manifest
// returns a CodeManifestMissing error and leaves the state unchanged;
// the caller (internal/bridge) logs it and runs no reinstall or other
// recovery.
func (m *Manager) Parse(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.roster[name]
	if !ok {
		return apperr.Plugin(apperr.CodePluginNotFound, "plugin "+name+" not found", nil, false)
	}
	if p.Manifest.Name == "" || p.Manifest.Version == "" {
		return apperr.Plugin(apperr.CodeManifestMissing, "plugin "+name+" has an incomplete manifest", nil, true)
	}
	p.State = model.PluginStateParsed
	return nil
}

// Load constructs the plugin's runtime instance and calls OnLoad. If
// start is true and loading succeeds, OnStart(reason) is invoked.
// Errors set the roster entry's state to in_error and LastError, and
// are returned to the caller but must not crash the supervisor.
func (m *Manager) Load(name string, devices DeviceAdder, start bool, reason string) error {
	m.mu.Lock()
	p, ok := m.roster[name]
	if !ok {
		m.mu.Unlock()
		return apperr.Plugin(apperr.CodePluginNotFound, "plugin "+name+" not found", nil, false)
	}
	if !p.Enabled {
		m.mu.Unlock()
		return nil
	}
	ctor, ok := Lookup(name)
	m.mu.Unlock()
	if !ok {
		return m.fail(name, apperr.Plugin(apperr.CodePluginLoadError, "no constructor registered for "+name, nil, true))
	}

	handler, err := ctor(p.Manifest, p.Config)
	if err != nil {
		return m.fail(name, apperr.Plugin(apperr.CodePluginLoadError, "construct plugin "+name, err, true))
	}

	ns, err := m.store.Namespace(name)
	if err != nil {
		return m.fail(name, apperr.Plugin(apperr.CodePluginLoadError, "open plugin namespace for "+name, err, true))
	}

	ctx := &Context{
		PluginName: name,
		Manifest:   p.Manifest,
		Config:     p.Config,
		Storage:    ns,
		Logger:     logger.Plugin(),
		Scheduler:  newScheduler(),
		Devices:    devices,
	}

	if err := handler.OnLoad(ctx); err != nil {
		ctx.Scheduler.stop()
		return m.fail(name, apperr.Plugin(apperr.CodePluginLoadError, "load plugin "+name, err, true))
	}

	m.mu.Lock()
	p.State = model.PluginStateLoaded
	p.LastError = ""
	m.loaded[name] = &Loaded{Plugin: *p, Handler: handler, Context: ctx}
	m.mu.Unlock()

	if start {
		if err := handler.OnStart(reason); err != nil {
			return m.fail(name, apperr.Plugin(apperr.CodePluginStartError, "start plugin "+name, err, true))
		}
		m.mu.Lock()
		p.State = model.PluginStateStarted
		m.mu.Unlock()
	}

	return nil
}

// Configure invokes OnConfigure. Per spec.md §4.4 this is a
// three-valued result: nil is success, an apperr.Error with
// Recoverable=true is a silent failure (surface a snackbar, don't
// isolate the plugin), anything else is an exception that isolates
// the plugin the same way a load/start failure does.
func (m *Manager) Configure(name string) error {
	m.mu.RLock()
	l, ok := m.loaded[name]
	m.mu.RUnlock()
	if !ok {
		return apperr.Plugin(apperr.CodePluginNotFound, "plugin "+name+" is not loaded", nil, false)
	}

	if err := l.Handler.OnConfigure(); err != nil {
		if !apperr.Recoverable(err) {
			return m.fail(name, apperr.Plugin(apperr.CodeConfigureError, "configure plugin "+name, err, false))
		}
		wrapped := apperr.Plugin(apperr.CodeConfigureError, "configure plugin "+name, err, true)
		if m.notifier != nil {
			m.notifier.SnackbarMessage(fmt.Sprintf("plugin %s failed to configure: %v", name, err), 10, frontend.SeverityWarning)
		}
		return wrapped
	}

	m.mu.Lock()
	if p, ok := m.roster[name]; ok {
		p.State = model.PluginStateConfigured
	}
	m.mu.Unlock()
	return nil
}

// Shutdown invokes OnShutdown. If removeDevices is true and the plugin
// has a device adder, it then waits 100ms; it does not remove the
// plugin's bridged endpoints from the device registry or the Matter
// topology.
func (m *Manager) Shutdown(name string, reason string, removeDevices bool) error {
	m.mu.Lock()
	l, ok := m.loaded[name]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.loaded, name)
	if p, ok := m.roster[name]; ok {
		p.State = model.PluginStateShutdown
	}
	m.mu.Unlock()

	l.Context.Scheduler.stop()

	err := l.Handler.OnShutdown(reason)
	if err != nil {
		logger.Plugin().Warn().Str("plugin", name).Err(err).Msg("plugin reported an error during shutdown")
	}

	if removeDevices && l.Context.Devices != nil {
		time.Sleep(100 * time.Millisecond)
	}

	return err
}

// MarkInError forcibly isolates name, the same way an OnLoad/OnStart
// failure would. Used by the topology builder's fail-safe counter
// (spec.md §4.4) when a plugin has not progressed from loaded to
// started within failCountLimit ticks of its 1-second poll.
func (m *Manager) MarkInError(name string, err *apperr.Error) error {
	return m.fail(name, err)
}

func (m *Manager) fail(name string, err *apperr.Error) error {
	m.mu.Lock()
	if p, ok := m.roster[name]; ok {
		p.State = model.PluginStateInError
		p.LastError = err.Error()
		p.FailCount++
	}
	m.mu.Unlock()

	logger.Plugin().Error().Str("plugin", name).Err(err).Msg("plugin entered error state")
	if m.notifier != nil {
		m.notifier.SnackbarMessage(fmt.Sprintf("plugin %s is in error state: %v", name, err), 0, frontend.SeverityError)
	}
	return err
}

// AnyInError reports whether any enabled plugin is currently in_error
// — the fail-stop barrier internal/topology checks before starting
// Matter server nodes.
func (m *Manager) AnyInError() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.roster {
		if p.Enabled && p.State == model.PluginStateInError {
			return true
		}
	}
	return false
}

// AllStarted reports whether every enabled, non-error plugin has
// reached at least the started state. The startup poll in
// internal/topology does not call it; it waits for the load/start
// calls themselves to return.
func (m *Manager) AllStarted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.roster {
		if !p.Enabled {
			continue
		}
		if p.State == model.PluginStateInError {
			continue
		}
		if p.State != model.PluginStateStarted && p.State != model.PluginStateConfigured {
			return false
		}
	}
	return true
}

// Enabled returns every enabled roster entry.
func (m *Manager) Enabled() []model.Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Plugin
	for _, p := range m.roster {
		if p.Enabled {
			out = append(out, *p)
		}
	}
	return out
}
