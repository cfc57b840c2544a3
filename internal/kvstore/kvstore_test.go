package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestNamespaceSetGetRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	ns, err := store.Namespace("widgets")
	require.NoError(t, err)

	in := record{Name: "gizmo", Count: 3}
	require.NoError(t, ns.Set("gizmo", in))

	var out record
	require.NoError(t, ns.Get("gizmo", &out))
	assert.Equal(t, in, out)
}

func TestNamespaceIsSharedAcrossCalls(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	a, err := store.Namespace("shared")
	require.NoError(t, err)
	b, err := store.Namespace("shared")
	require.NoError(t, err)

	assert.Same(t, a, b)
}

func TestGetMissingKeyReturnsKeyNotFound(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	ns, err := store.Namespace("widgets")
	require.NoError(t, err)

	var out record
	err = ns.Get("absent", &out)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeKeyNotFound))
}

func TestRemoveAndListKeys(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	ns, err := store.Namespace("widgets")
	require.NoError(t, err)

	require.NoError(t, ns.Set("a", record{Name: "a"}))
	require.NoError(t, ns.Set("b", record{Name: "b"}))

	keys, err := ns.ListKeys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	require.NoError(t, ns.Remove("a"))
	keys, err = ns.ListKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	// Removing an already-absent key is not an error.
	require.NoError(t, ns.Remove("a"))
}

func TestClearRemovesEveryKey(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	ns, err := store.Namespace("widgets")
	require.NoError(t, err)

	require.NoError(t, ns.Set("a", record{Name: "a"}))
	require.NoError(t, ns.Set("b", record{Name: "b"}))
	require.NoError(t, ns.Clear())

	keys, err := ns.ListKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestBackupAndRestoreRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	store, err := Open(root)
	require.NoError(t, err)

	ns, err := store.Namespace("widgets")
	require.NoError(t, err)
	require.NoError(t, ns.Set("gizmo", record{Name: "gizmo", Count: 1}))

	require.NoError(t, store.Backup())
	assert.True(t, store.HasBackup())

	require.NoError(t, ns.Set("gizmo", record{Name: "gizmo", Count: 99}))
	require.NoError(t, store.Restore())

	// Restore replaces the root directory underneath the open store;
	// re-open it and read through a fresh namespace handle to observe
	// the restored contents.
	store2, err := Open(root)
	require.NoError(t, err)
	ns2, err := store2.Namespace("widgets")
	require.NoError(t, err)

	var out record
	require.NoError(t, ns2.Get("gizmo", &out))
	assert.Equal(t, 1, out.Count)
}

func TestRestoreWithoutBackupFails(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	err = store.Restore()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeRestoreFailed))
}

func TestCopyTreeCopiesNestedFiles(t *testing.T) {
	src := t.TempDir()
	store, err := Open(src)
	require.NoError(t, err)
	ns, err := store.Namespace("nested")
	require.NoError(t, err)
	require.NoError(t, ns.Set("key", record{Name: "n"}))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyTree(src, dst))

	copied, err := Open(dst)
	require.NoError(t, err)
	copiedNS, err := copied.Namespace("nested")
	require.NoError(t, err)

	var out record
	require.NoError(t, copiedNS.Get("key", &out))
	assert.Equal(t, "n", out.Name)
}
