package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matterbridge-go/matterbridge/internal/kvstore"
)

func newTestNamespace(t *testing.T) *kvstore.Namespace {
	t.Helper()
	store, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	ns, err := store.Namespace("matterbridge")
	require.NoError(t, err)
	return ns
}

func TestCheckPasswordAcceptsAnyValueWhenNoneIsPersisted(t *testing.T) {
	s := &Supervisor{ns: newTestNamespace(t)}

	ok, err := s.checkPassword("whatever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPersistPasswordNeverStoresPlaintext(t *testing.T) {
	ns := newTestNamespace(t)
	s := &Supervisor{ns: ns}
	require.NoError(t, s.persistPassword(ns, "hunter2"))

	var stored string
	require.NoError(t, ns.Get(passwordKey, &stored))
	assert.NotEqual(t, "hunter2", stored)
}

func TestCheckPasswordMatchesThePersistedHash(t *testing.T) {
	ns := newTestNamespace(t)
	s := &Supervisor{ns: ns}
	require.NoError(t, s.persistPassword(ns, "hunter2"))

	ok, err := s.checkPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.checkPassword("wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}
