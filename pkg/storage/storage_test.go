package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T, dir string) *Catalog {
	t.Helper()
	c, err := OpenCatalog(dir, nil)
	require.NoError(t, err)
	return c
}

func TestCatalog_StreamIDIsStable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "events.catalog")

	c := openTestCatalog(t, dir)
	id, err := c.StreamID()
	require.NoError(t, err)
	again, err := c.StreamID()
	require.NoError(t, err)
	assert.Equal(t, id, again)
	require.NoError(t, c.Close())

	c = openTestCatalog(t, dir)
	defer c.Close()
	reopened, err := c.StreamID()
	require.NoError(t, err)
	assert.Equal(t, id, reopened)
}

func TestCatalog_Rotation(t *testing.T) {
	c := openTestCatalog(t, t.TempDir())
	defer c.Close()

	first, err := c.NextRotation(0)
	require.NoError(t, err)
	second, err := c.NextRotation(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first)
	assert.Equal(t, uint64(1), second)

	jumped, err := c.NextRotation(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), jumped)

	next, err := c.NextRotation(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), next)
}

func TestCatalog_Archives(t *testing.T) {
	c := openTestCatalog(t, t.TempDir())
	defer c.Close()

	base := time.Unix(1700000000, 0)
	require.NoError(t, c.AddArchive(ArchiveEntry{Name: "b.glog", CreatedAt: base.Add(time.Hour), Records: 2, Bytes: 20}))
	require.NoError(t, c.AddArchive(ArchiveEntry{Name: "a.glog", CreatedAt: base, Records: 1, Bytes: 10}))
	require.NoError(t, c.AddArchive(ArchiveEntry{Name: "a.glog", CreatedAt: base.Add(2 * time.Hour), Records: 4, Bytes: 40}))

	e, ok, err := c.Archive("a.glog")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base.UnixNano(), e.CreatedAt.UnixNano())
	assert.Equal(t, int64(5), e.Records)
	assert.Equal(t, int64(50), e.Bytes)

	list, err := c.Archives()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a.glog", list[0].Name)
	assert.Equal(t, "b.glog", list[1].Name)

	require.NoError(t, c.DeleteArchive("a.glog"))
	_, ok, err = c.Archive("a.glog")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalog_CacheCreated(t *testing.T) {
	c := openTestCatalog(t, t.TempDir())
	defer c.Close()

	_, ok, err := c.CacheCreated()
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Unix(1700000000, 123)
	require.NoError(t, c.SetCacheCreated(now))
	got, ok, err := c.CacheCreated()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, now.Equal(got))
}
