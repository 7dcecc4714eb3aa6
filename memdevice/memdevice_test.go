package memdevice_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/memdevice"
)

func writeTempDump(t *testing.T, contents []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "dump")
	require.NoError(t, err)
	_, err = f.Write(contents)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestPagedDeviceReadAt(t *testing.T) {
	contents := make([]byte, 256)
	for i := range contents {
		contents[i] = byte(i)
	}
	path := writeTempDump(t, contents)

	d, err := memdevice.Open(context.Background(), path, memdevice.IdentityVirtualMemory{}, false)
	require.NoError(t, err)
	defer d.Close()

	buf := make([]byte, 16)
	n, err := d.ReadAt(context.Background(), buf, 32)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, contents[32:48], buf)
}

func TestPagedDeviceReadAtShortReadErrors(t *testing.T) {
	path := writeTempDump(t, make([]byte, 8))
	d, err := memdevice.Open(context.Background(), path, memdevice.IdentityVirtualMemory{}, false)
	require.NoError(t, err)
	defer d.Close()

	buf := make([]byte, 32)
	_, err = d.ReadAt(context.Background(), buf, 0)
	assert.Error(t, err)
}

func TestIdentityVirtualMemoryTranslatesToSelf(t *testing.T) {
	phys, pageSize, err := memdevice.IdentityVirtualMemory{}.Translate(0xdead0000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xdead0000), phys)
	assert.Equal(t, uint64(0), pageSize)
}

func TestReadVirtualReadsThroughIdentityTranslation(t *testing.T) {
	contents := make([]byte, 64)
	for i := range contents {
		contents[i] = byte(i)
	}
	path := writeTempDump(t, contents)
	d, err := memdevice.Open(context.Background(), path, memdevice.IdentityVirtualMemory{}, false)
	require.NoError(t, err)
	defer d.Close()

	buf := make([]byte, 10)
	n, err := memdevice.ReadVirtual(context.Background(), d, buf, 20)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, contents[20:30], buf)
}

func TestSerializedDeviceStillReads(t *testing.T) {
	contents := []byte("0123456789abcdef")
	path := writeTempDump(t, contents)
	d, err := memdevice.Open(context.Background(), path, memdevice.IdentityVirtualMemory{}, true)
	require.NoError(t, err)
	defer d.Close()

	buf := make([]byte, 4)
	n, err := d.ReadAt(context.Background(), buf, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("4567"), buf)
}
