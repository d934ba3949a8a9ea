package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Insert(NamespaceData, []byte("k1"), []byte("v1")))
	value, ok, err := store.Get(NamespaceData, []byte("k1"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), value)
}

func TestGetMissingKey(t *testing.T) {
	store := openTestStore(t)
	_, ok, err := store.Get(NamespaceData, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNamespacesDoNotCollide(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Insert(NamespaceCatalog, []byte("x"), []byte("catalog")))
	require.NoError(t, store.Insert(NamespaceData, []byte("x"), []byte("data")))

	v, ok, err := store.Get(NamespaceCatalog, []byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("catalog"), v)

	v, ok, err = store.Get(NamespaceData, []byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("data"), v)
}

func TestScanPrefixOrdered(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Insert(NamespaceData, []byte("r\x00t\x00b"), []byte("2")))
	require.NoError(t, store.Insert(NamespaceData, []byte("r\x00t\x00a"), []byte("1")))
	require.NoError(t, store.Insert(NamespaceData, []byte("other"), []byte("3")))

	kvs, err := store.ScanPrefix(NamespaceData, []byte("r\x00t\x00"))
	require.NoError(t, err)
	require.Len(t, kvs, 2)
	assert.Equal(t, []byte("1"), kvs[0].Value)
	assert.Equal(t, []byte("2"), kvs[1].Value)
}

func TestApplyBatchAtomic(t *testing.T) {
	store := openTestStore(t)
	ops := []Op{
		{Namespace: NamespaceData, Key: []byte("a"), Value: []byte("1")},
		{Namespace: NamespaceData, Key: []byte("b"), Value: []byte("2")},
	}
	require.NoError(t, store.ApplyBatch(ops))

	_, ok, err := store.Get(NamespaceData, []byte("a"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.ApplyBatch([]Op{{Namespace: NamespaceData, Key: []byte("a"), Value: nil}}))
	_, ok, err = store.Get(NamespaceData, []byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}
