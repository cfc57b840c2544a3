package fanout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matterbridge-go/matterbridge/internal/frontend"
	"github.com/matterbridge-go/matterbridge/internal/matteradapter"
	"github.com/matterbridge-go/matterbridge/internal/metrics"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

func newTestEndpoint(t *testing.T, pairs ...[2]string) matteradapter.Endpoint {
	t.Helper()
	adapter := matteradapter.New()
	ep, err := adapter.CreateAggregatorEndpoint(1)
	require.NoError(t, err)
	matteradapter.WithAttributeServers(ep, pairs...)
	return ep
}

func TestSubscribeForwardsAllowListedAttribute(t *testing.T) {
	notifier := frontend.NewChanNotifier(8)
	f := New(notifier, metrics.New())

	ep := newTestEndpoint(t, [2]string{"OnOff", "OnOff"})
	meta := model.Endpoint{PluginName: "lights", Serial: "s1"}

	f.Subscribe(ep, meta, false, nil)
	matteradapter.TriggerAttribute(ep, "OnOff", "OnOff", true)

	select {
	case change := <-notifier.Attributes:
		assert.Equal(t, "lights", change.Plugin)
		assert.Equal(t, "s1", change.Serial)
		assert.Equal(t, "OnOff", change.Cluster)
		assert.Equal(t, true, change.Value)
	default:
		t.Fatal("expected a forwarded attribute change")
	}
}

func TestSubscribeSkipsAttributesNotPresent(t *testing.T) {
	notifier := frontend.NewChanNotifier(8)
	f := New(notifier, metrics.New())

	ep := newTestEndpoint(t) // no attribute servers declared beyond the aggregator default
	meta := model.Endpoint{PluginName: "lights", Serial: "s1"}

	f.Subscribe(ep, meta, false, nil)

	assert.False(t, ep.HasAttributeServer("OnOff", "OnOff"))
	select {
	case <-notifier.Attributes:
		t.Fatal("expected no forwarded attribute change")
	default:
	}
}

func TestSubscribeWalksOneLevelOfChildrenIndependently(t *testing.T) {
	notifier := frontend.NewChanNotifier(8)
	f := New(notifier, metrics.New())

	parentEP := newTestEndpoint(t, [2]string{"OnOff", "OnOff"})
	childEP := newTestEndpoint(t, [2]string{"OnOff", "OnOff"})

	child := model.Endpoint{PluginName: "lights", Serial: "s1-child"}
	meta := model.Endpoint{PluginName: "lights", Serial: "s1", Children: []*model.Endpoint{&child}}

	f.Subscribe(parentEP, meta, false, []matteradapter.Endpoint{childEP})

	// Triggering the child's own endpoint must forward the child's
	// identity, not the parent's, and must not also fire the parent's
	// subscription.
	matteradapter.TriggerAttribute(childEP, "OnOff", "OnOff", true)

	select {
	case change := <-notifier.Attributes:
		assert.Equal(t, "s1-child", change.Serial)
		assert.Equal(t, true, change.Value)
	default:
		t.Fatal("expected the child's own attribute change to be forwarded")
	}
	select {
	case <-notifier.Attributes:
		t.Fatal("child trigger must not also fire the parent's subscription")
	default:
	}

	// The parent's own subscription still fires independently.
	matteradapter.TriggerAttribute(parentEP, "OnOff", "OnOff", false)
	select {
	case change := <-notifier.Attributes:
		assert.Equal(t, "s1", change.Serial)
		assert.Equal(t, false, change.Value)
	default:
		t.Fatal("expected the parent's own attribute change to be forwarded")
	}
}

func TestSubscribeSkipsChildWithNoEndpointHandle(t *testing.T) {
	notifier := frontend.NewChanNotifier(8)
	f := New(notifier, metrics.New())

	parentEP := newTestEndpoint(t, [2]string{"OnOff", "OnOff"})
	child := model.Endpoint{PluginName: "lights", Serial: "s1-child"}
	meta := model.Endpoint{PluginName: "lights", Serial: "s1", Children: []*model.Endpoint{&child}}

	assert.NotPanics(t, func() {
		f.Subscribe(parentEP, meta, false, nil)
	})
}

func TestAccessoryChildbridgeAddsReachabilityAttribute(t *testing.T) {
	notifier := frontend.NewChanNotifier(8)
	f := New(notifier, metrics.New())

	ep := newTestEndpoint(t, [2]string{"BasicInformation", "Reachable"})
	meta := model.Endpoint{PluginName: "accessory", Serial: "s1"}

	f.Subscribe(ep, meta, true, nil)

	assert.True(t, ep.HasAttributeServer("BasicInformation", "Reachable"))
	matteradapter.TriggerAttribute(ep, "BasicInformation", "Reachable", true)
	select {
	case change := <-notifier.Attributes:
		assert.Equal(t, "BasicInformation", change.Cluster)
	default:
		t.Fatal("expected the reachability change to be forwarded")
	}
}

func TestBridgedModeAddsBridgedReachabilityAttribute(t *testing.T) {
	notifier := frontend.NewChanNotifier(8)
	f := New(notifier, metrics.New())

	ep := newTestEndpoint(t)
	meta := model.Endpoint{PluginName: "lights", Serial: "s1"}

	f.Subscribe(ep, meta, false, nil)

	assert.True(t, ep.HasAttributeServer("BridgedDeviceBasicInformation", "Reachable"))
	matteradapter.TriggerAttribute(ep, "BridgedDeviceBasicInformation", "Reachable", true)
	select {
	case change := <-notifier.Attributes:
		assert.Equal(t, "BridgedDeviceBasicInformation", change.Cluster)
	default:
		t.Fatal("expected the bridged reachability change to be forwarded")
	}
}

func TestAllowListContainsCoreClusters(t *testing.T) {
	assert.Contains(t, AllowList, [2]string{"OnOff", "OnOff"})
	assert.Contains(t, AllowList, [2]string{"DoorLock", "LockState"})
	assert.Contains(t, AllowList, [2]string{"Thermostat", "LocalTemperature"})
}
