package matteradapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

func TestCreateServerNodeRequiresStoreID(t *testing.T) {
	adapter := New()
	_, err := adapter.CreateServerNode(ServerNodeConfig{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeServerNodeStartError))
}

func TestServerNodeStartEmitsOnlineEvent(t *testing.T) {
	adapter := New()
	node, err := adapter.CreateServerNode(ServerNodeConfig{StoreID: "test"})
	require.NoError(t, err)

	events := make(chan Event, 4)
	node.Subscribe(func(ev Event) { events <- ev })

	require.NoError(t, node.Start(context.Background()))
	assert.Equal(t, model.ServerNodeStateOnlineUncommissioned, node.State())

	select {
	case ev := <-events:
		assert.Equal(t, EventOnline, ev.Kind)
	default:
		t.Fatal("expected an online event")
	}
}

func TestServerNodeCloseSucceedsWithinTimeout(t *testing.T) {
	adapter := New()
	node, err := adapter.CreateServerNode(ServerNodeConfig{StoreID: "test"})
	require.NoError(t, err)

	err = node.Close(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, model.ServerNodeStateOffline, node.State())
}

func TestServerNodeCloseTimesOutOnCancelledContext(t *testing.T) {
	adapter := New()
	node, err := adapter.CreateServerNode(ServerNodeConfig{StoreID: "test"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = node.Close(ctx, time.Second)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeServerNodeCloseTimeout))
}

func TestEndpointSubscribeRequiresAttributeServer(t *testing.T) {
	adapter := New()
	ep, err := adapter.CreateAggregatorEndpoint(1)
	require.NoError(t, err)

	err = ep.SubscribeAttribute("OnOff", "OnOff", func(interface{}) {})
	require.Error(t, err)

	WithAttributeServers(ep, [2]string{"OnOff", "OnOff"})
	require.NoError(t, ep.SubscribeAttribute("OnOff", "OnOff", func(interface{}) {}))
}

func TestRandomPasscodeAndDiscriminatorAreInRange(t *testing.T) {
	adapter := New()
	for i := 0; i < 20; i++ {
		passcode, err := adapter.RandomPasscode()
		require.NoError(t, err)
		assert.LessOrEqual(t, passcode, uint32(99999998))
		assert.GreaterOrEqual(t, passcode, uint32(1))

		discriminator, err := adapter.RandomDiscriminator()
		require.NoError(t, err)
		assert.Less(t, discriminator, uint16(4096))
	}
}

func TestPairingCodesReflectConfig(t *testing.T) {
	adapter := New()
	node, err := adapter.CreateServerNode(ServerNodeConfig{StoreID: "test", Passcode: 12345678, Discriminator: 256})
	require.NoError(t, err)

	assert.Equal(t, "12345678", node.PairingCodeManual())
	assert.Contains(t, node.PairingCodeQR(), "test")
}
