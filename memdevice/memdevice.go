// Package memdevice is the external collaborator for the physical
// memory dump (spec.md §1, §6): random-access reads against a flat
// physical-address file, plus a Translate hook that delegates kernel
// virtual-to-physical translation to a caller-supplied VirtualMemory
// (this package reads no bootstrap symbols itself). Grounded on original_source/memtoold/memorydump.cpp's
// MemoryDump (QIODevice::seek + read against a flat dump file, the
// same "open once, seek per read" shape as
// grailbio-gql/gql/file_handler.go's FileHandler, generalized here to
// context-aware random access instead of FileHandler's whole-file
// Table reads).
package memdevice

import (
	"context"
	"os"
	"time"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/retry"
	"golang.org/x/sys/unix"

	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
)

// Device reads bytes from a physical memory dump at an arbitrary
// physical offset, and performs the architecture's virtual-to-physical
// translation memmap needs before it can read at a kernel virtual
// address.
type Device interface {
	// ReadAt reads len(p) bytes starting at physical offset off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// Translate resolves a kernel virtual address to a physical offset
	// and the containing page's size, per
	// memorydump.cpp's virtualToPhysical.
	Translate(ctx context.Context, vaddr uint64) (phys uint64, pageSize uint64, err error)
	// Close releases the underlying file descriptor.
	Close() error
}

// VirtualMemory performs the address-space-specific virtual-to-physical
// walk (page tables, or the i386 bootstrap's direct-mapped window
// before paging is set up). Supplied by the caller because the walk
// depends on the target architecture and the dump's own bootstrap
// symbols (original_source/memtoold/memorydump.cpp reads
// `swapper_pg_dir`-style symbols for this).
type VirtualMemory interface {
	Translate(vaddr uint64) (phys uint64, pageSize uint64, err error)
}

// IdentityVirtualMemory implements VirtualMemory for a dump where
// virtual and physical address spaces coincide (e.g. a pre-paging
// bootstrap image, or a dump already pre-translated by the capture
// tool). pageSize is reported as 0 (unknown/unbounded).
type IdentityVirtualMemory struct{}

func (IdentityVirtualMemory) Translate(vaddr uint64) (uint64, uint64, error) {
	return vaddr, 0, nil
}

// PagedDevice is a Device over a single physical dump file, read via
// unix.Pread so concurrent builder threads (spec.md §5's N builder
// threads) never contend on a shared file offset the way a plain
// os.File.Read/Seek pair would.
type PagedDevice struct {
	f    *os.File
	vmem VirtualMemory

	// Serialize, when true, routes every ReadAt through readMu,
	// matching spec.md §5's "configurable thread-safety mode; when
	// enabled, all reads are serialised through a single mutex."
	// Left as a plain bool + mutex rather than sync.RWMutex: reads
	// never need to be concurrent with each other when this mode is on,
	// only mutually exclusive.
	Serialize bool
	readMu    chan struct{} // 1-buffered; used as a non-reentrant mutex
}

// Open opens path as a physical memory dump (spec.md §1), using
// grailbio/base/file the way the teacher's own FileHandler does for
// any backend file supports (local disk, object storage, ...), then
// re-derives a local *os.File for Pread (object-storage backends open
// a ReadCloser, not a seekable fd; the common physical-dump case is a
// local file, so LocalPath is required here).
func Open(ctx context.Context, path string, vmem VirtualMemory, serialize bool) (*PagedDevice, error) {
	localPath, err := localFilePath(ctx, path)
	if err != nil {
		return nil, kerr.E(kerr.MemoryError, err, "opening memory dump %q", path)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return nil, kerr.E(kerr.MemoryError, err, "opening memory dump %q", path)
	}
	d := &PagedDevice{f: f, vmem: vmem, Serialize: serialize}
	if serialize {
		d.readMu = make(chan struct{}, 1)
		d.readMu <- struct{}{}
	}
	return d, nil
}

// localFilePath resolves path to a local filesystem path via
// grailbio/base/file's Stat (which fails fast for unsupported, e.g.
// object-storage, schemes), matching the
// "stat before open" idiom grailbio-gql/gql/file_handler_test.go tests
// against.
func localFilePath(ctx context.Context, path string) (string, error) {
	if _, err := file.Stat(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

// ReadAt implements Device, retrying an interrupted or would-block pread
// (EINTR/EAGAIN) the way grailbio-gql/gql/cache.go's LookupCache retries
// a flaky read (retry.Backoff + retry.Wait). A short read is not retried:
// it fails at once with a MemoryError.
func (d *PagedDevice) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if d.Serialize {
		select {
		case <-d.readMu:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		defer func() { d.readMu <- struct{}{} }()
	}

	backoff := retry.Backoff(10*time.Millisecond, time.Second, 2)
	var (
		n   int
		err error
	)
	for retries := 0; ; retries++ {
		n, err = unix.Pread(int(d.f.Fd()), p, off)
		if err == nil || err != unix.EINTR && err != unix.EAGAIN {
			break
		}
		if werr := retry.Wait(ctx, backoff, retries); werr != nil {
			return n, werr
		}
	}
	if err != nil {
		return n, kerr.E(kerr.MemoryError, err, "reading %d bytes at physical offset 0x%x", len(p), off)
	}
	if n < len(p) {
		return n, kerr.E(kerr.MemoryError, "short read: wanted %d bytes at physical offset 0x%x, got %d", len(p), off, n)
	}
	return n, nil
}

// Translate implements Device by delegating to vmem.
func (d *PagedDevice) Translate(_ context.Context, vaddr uint64) (uint64, uint64, error) {
	phys, pageSize, err := d.vmem.Translate(vaddr)
	if err != nil {
		return 0, 0, kerr.E(kerr.MemoryError, err, "translating virtual address 0x%x", vaddr)
	}
	return phys, pageSize, nil
}

// Close releases the dump file descriptor.
func (d *PagedDevice) Close() error { return d.f.Close() }

// ReadVirtual reads len(p) bytes starting at the kernel virtual address
// vaddr, translating through d.Translate first. A read that crosses a
// page boundary is split into one ReadAt per physical page, matching
// memorydump.cpp's own per-page read loop.
func ReadVirtual(ctx context.Context, d Device, p []byte, vaddr uint64) (int, error) {
	total := 0
	for total < len(p) {
		phys, pageSize, err := d.Translate(ctx, vaddr+uint64(total))
		if err != nil {
			return total, err
		}
		chunk := len(p) - total
		if pageSize > 0 {
			remaining := pageSize - (vaddr+uint64(total))%pageSize
			if uint64(chunk) > remaining {
				chunk = int(remaining)
			}
		}
		n, err := d.ReadAt(ctx, p[total:total+chunk], int64(phys))
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, kerr.E(kerr.MemoryError, "zero-length read at virtual address 0x%x", vaddr+uint64(total))
		}
	}
	return total, nil
}
