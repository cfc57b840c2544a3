package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
	"github.com/matterbridge-go/matterbridge/internal/frontend"
	"github.com/matterbridge-go/matterbridge/internal/kvstore"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

type fakeHandler struct {
	onLoadErr      error
	onStartErr     error
	onConfigureErr error
	shutdownCalls  int

	scheduleSpec string
	scheduleErr  error
}

func (h *fakeHandler) OnLoad(ctx *Context) error {
	if h.scheduleSpec != "" {
		h.scheduleErr = ctx.Scheduler.Schedule(h.scheduleSpec, func() {})
	}
	return h.onLoadErr
}
func (h *fakeHandler) OnStart(reason string) error    { return h.onStartErr }
func (h *fakeHandler) OnConfigure() error             { return h.onConfigureErr }
func (h *fakeHandler) OnShutdown(reason string) error { h.shutdownCalls++; return nil }

type fakeDeviceAdder struct{}

func (fakeDeviceAdder) AddBridgedEndpoint(ep *model.Endpoint) error { return nil }
func (fakeDeviceAdder) RemoveBridgedEndpoint(serial string) error   { return nil }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	m, err := New(store, NewDiscovery(), frontend.NewChanNotifier(8))
	require.NoError(t, err)
	return m
}

func TestAddRejectsDuplicateName(t *testing.T) {
	m := newTestManager(t)
	manifest := model.Manifest{Name: "lights", Version: "1.0.0", Type: model.PluginTypeDynamicPlatform}
	ctor := func(model.Manifest, map[string]interface{}) (Handler, error) { return &fakeHandler{}, nil }

	require.NoError(t, m.Add("lights", ctor, manifest, nil))
	err := m.Add("lights", ctor, manifest, nil)
	assert.Error(t, err)
}

func TestLoadAndStartSuccessTransitionsToStarted(t *testing.T) {
	m := newTestManager(t)
	manifest := model.Manifest{Name: "lights", Version: "1.0.0"}
	ctor := func(model.Manifest, map[string]interface{}) (Handler, error) { return &fakeHandler{}, nil }
	require.NoError(t, m.Add("lights", ctor, manifest, nil))

	require.NoError(t, m.Load("lights", fakeDeviceAdder{}, true, "starting"))

	p, ok := m.Get("lights")
	require.True(t, ok)
	assert.Equal(t, model.PluginStateStarted, p.State)
}

func TestLoadFailureSetsInError(t *testing.T) {
	m := newTestManager(t)
	manifest := model.Manifest{Name: "broken", Version: "1.0.0"}
	ctor := func(model.Manifest, map[string]interface{}) (Handler, error) {
		return &fakeHandler{onLoadErr: errors.New("boom")}, nil
	}
	require.NoError(t, m.Add("broken", ctor, manifest, nil))

	err := m.Load("broken", fakeDeviceAdder{}, true, "starting")
	assert.Error(t, err)

	p, ok := m.Get("broken")
	require.True(t, ok)
	assert.Equal(t, model.PluginStateInError, p.State)
	assert.True(t, m.AnyInError())
}

func TestConfigureFailureIsRecoverableAndDoesNotIsolate(t *testing.T) {
	m := newTestManager(t)
	manifest := model.Manifest{Name: "flaky", Version: "1.0.0"}
	ctor := func(model.Manifest, map[string]interface{}) (Handler, error) {
		return &fakeHandler{onConfigureErr: apperr.Plugin(apperr.CodeConfigureError, "transient", nil, true)}, nil
	}
	require.NoError(t, m.Add("flaky", ctor, manifest, nil))
	require.NoError(t, m.Load("flaky", fakeDeviceAdder{}, true, "starting"))

	err := m.Configure("flaky")
	assert.Error(t, err)

	p, ok := m.Get("flaky")
	require.True(t, ok)
	assert.NotEqual(t, model.PluginStateInError, p.State)
	assert.False(t, m.AnyInError())
}

func TestShutdownInvokesHandlerAndClearsLoaded(t *testing.T) {
	m := newTestManager(t)
	manifest := model.Manifest{Name: "lights", Version: "1.0.0"}
	handler := &fakeHandler{}
	ctor := func(model.Manifest, map[string]interface{}) (Handler, error) { return handler, nil }
	require.NoError(t, m.Add("lights", ctor, manifest, nil))
	require.NoError(t, m.Load("lights", fakeDeviceAdder{}, true, "starting"))

	require.NoError(t, m.Shutdown("lights", "test", false))
	assert.Equal(t, 1, handler.shutdownCalls)

	p, ok := m.Get("lights")
	require.True(t, ok)
	assert.Equal(t, model.PluginStateShutdown, p.State)
}

func TestDisableShutsDownAnEnabledLoadedPlugin(t *testing.T) {
	m := newTestManager(t)
	manifest := model.Manifest{Name: "lights", Version: "1.0.0"}
	handler := &fakeHandler{}
	ctor := func(model.Manifest, map[string]interface{}) (Handler, error) { return handler, nil }
	require.NoError(t, m.Add("lights", ctor, manifest, nil))
	require.NoError(t, m.Load("lights", fakeDeviceAdder{}, true, "starting"))

	require.NoError(t, m.Disable("lights"))
	assert.Equal(t, 1, handler.shutdownCalls)

	p, ok := m.Get("lights")
	require.True(t, ok)
	assert.False(t, p.Enabled)
}

func TestAllStartedIgnoresInErrorPlugins(t *testing.T) {
	m := newTestManager(t)
	okManifest := model.Manifest{Name: "ok", Version: "1.0.0"}
	okCtor := func(model.Manifest, map[string]interface{}) (Handler, error) { return &fakeHandler{}, nil }
	require.NoError(t, m.Add("ok", okCtor, okManifest, nil))
	require.NoError(t, m.Load("ok", fakeDeviceAdder{}, true, "starting"))

	brokenManifest := model.Manifest{Name: "broken", Version: "1.0.0"}
	brokenCtor := func(model.Manifest, map[string]interface{}) (Handler, error) {
		return &fakeHandler{onLoadErr: errors.New("boom")}, nil
	}
	require.NoError(t, m.Add("broken", brokenCtor, brokenManifest, nil))
	_ = m.Load("broken", fakeDeviceAdder{}, true, "starting")

	assert.True(t, m.AllStarted())
}

func TestOnLoadCanScheduleAPeriodicJob(t *testing.T) {
	m := newTestManager(t)
	manifest := model.Manifest{Name: "ticking", Version: "1.0.0"}
	handler := &fakeHandler{scheduleSpec: "@every 1h"}
	ctor := func(model.Manifest, map[string]interface{}) (Handler, error) { return handler, nil }
	require.NoError(t, m.Add("ticking", ctor, manifest, nil))

	require.NoError(t, m.Load("ticking", fakeDeviceAdder{}, true, "starting"))
	require.NoError(t, handler.scheduleErr)

	// Shutdown must stop the plugin's scheduler without blocking or
	// panicking, even though a job was registered.
	require.NoError(t, m.Shutdown("ticking", "test", false))
}

func TestOnLoadRejectsMalformedScheduleSpec(t *testing.T) {
	m := newTestManager(t)
	manifest := model.Manifest{Name: "broken-cron", Version: "1.0.0"}
	handler := &fakeHandler{scheduleSpec: "not a cron spec"}
	ctor := func(model.Manifest, map[string]interface{}) (Handler, error) { return handler, nil }
	require.NoError(t, m.Add("broken-cron", ctor, manifest, nil))

	require.NoError(t, m.Load("broken-cron", fakeDeviceAdder{}, true, "starting"))
	assert.Error(t, handler.scheduleErr)
}

func TestRosterPersistsAcrossManagerReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := kvstore.Open(dir)
	require.NoError(t, err)

	m, err := New(store, NewDiscovery(), nil)
	require.NoError(t, err)
	manifest := model.Manifest{Name: "lights", Version: "1.0.0"}
	ctor := func(model.Manifest, map[string]interface{}) (Handler, error) { return &fakeHandler{}, nil }
	require.NoError(t, m.Add("lights", ctor, manifest, nil))

	store2, err := kvstore.Open(dir)
	require.NoError(t, err)
	m2, err := New(store2, NewDiscovery(), nil)
	require.NoError(t, err)

	_, ok := m2.Get("lights")
	assert.True(t, ok)
}
