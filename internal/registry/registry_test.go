package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matterbridge-go/matterbridge/internal/frontend"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

func TestSetAndGetRoundTrip(t *testing.T) {
	notifier := frontend.NewChanNotifier(4)
	r := New(notifier)

	ep := &model.Endpoint{PluginName: "lights", Serial: "abc123", Name: "Kitchen Light"}
	require.NoError(t, r.Set(ep))

	all := r.Array()
	require.Len(t, all, 1)
	assert.Equal(t, "Kitchen Light", all[0].Name)

	select {
	case scope := <-notifier.Refreshes:
		assert.Equal(t, frontend.ScopePlugins, scope)
	default:
		t.Fatal("expected a refresh notification")
	}
}

func TestSetRejectsMissingIdentity(t *testing.T) {
	r := New(nil)
	err := r.Set(&model.Endpoint{PluginName: "", Serial: ""})
	assert.Error(t, err)
}

func TestPerPluginSerialUniquenessAllowsCrossPluginCollision(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Set(&model.Endpoint{PluginName: "a", Serial: "1", Name: "first"}))
	require.NoError(t, r.Set(&model.Endpoint{PluginName: "b", Serial: "1", Name: "second"}))

	assert.Len(t, r.Array(), 2)
	assert.Equal(t, 1, r.Count("a"))
	assert.Equal(t, 1, r.Count("b"))
}

func TestSetReplacesSameIdentity(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Set(&model.Endpoint{PluginName: "a", Serial: "1", Name: "first"}))
	require.NoError(t, r.Set(&model.Endpoint{PluginName: "a", Serial: "1", Name: "renamed"}))

	all := r.Array()
	require.Len(t, all, 1)
	assert.Equal(t, "renamed", all[0].Name)
}

func TestRemoveAllDeletesOnlyThatPluginsEndpoints(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Set(&model.Endpoint{PluginName: "a", Serial: "1"}))
	require.NoError(t, r.Set(&model.Endpoint{PluginName: "a", Serial: "2"}))
	require.NoError(t, r.Set(&model.Endpoint{PluginName: "b", Serial: "1"}))

	removed := r.RemoveAll("a")
	assert.Equal(t, 2, removed)
	assert.Len(t, r.Array(), 1)
	assert.Equal(t, 0, r.Count("a"))
}

func TestClearEmptiesRegistry(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Set(&model.Endpoint{PluginName: "a", Serial: "1"}))
	r.Clear()
	assert.Empty(t, r.Array())
}
