package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNATSNotifierDegradesGracefullyWithNoURL(t *testing.T) {
	n, err := NewNATSNotifier(NATSConfig{})
	require.NoError(t, err)
	require.NotNil(t, n)

	// A disabled notifier must still be safe to call and close.
	n.SnackbarMessage("hello", 0, SeverityInfo)
	n.RefreshRequired(ScopeMatter)
	n.AttributeChanged(AttributeChange{})
	n.Log(LogLine{})
	assert.NoError(t, n.Close())
}

func TestNewNATSNotifierDegradesGracefullyOnUnreachableURL(t *testing.T) {
	n, err := NewNATSNotifier(NATSConfig{URL: "nats://127.0.0.1:1"})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.NoError(t, n.Close())
}
