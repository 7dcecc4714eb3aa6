package memmap

import "bytes"

// DiffRun is one run of differing bytes between two physical-memory
// snapshots (spec.md §4.E.8): "records runs of difference as
// (start, length) records."
type DiffRun struct {
	Start  int64
	Length int64
}

// DefaultDiffGranularity is the fixed comparison granularity spec.md
// §4.E.8 leaves as "design choice, e.g. 16 bytes".
const DefaultDiffGranularity = 16

// Diff compares a and b byte-wise at granularity-byte blocks and
// returns the runs that differ. It is idempotent and side-effect-free
// on its inputs, matching spec.md §4.E.8; a and b must be the same
// length. granularity <= 0 is treated as DefaultDiffGranularity.
//
// This scans with stdlib bytes.Equal rather than
// github.com/grailbio/base/simd: simd's surface exercised elsewhere in
// the pack (grailbio-gql/gql/bam_table.go's AddConst8) is arithmetic
// (add-constant, popcount-style), not a boolean equality scan, so there
// is no confirmed simd entry point for this specific comparison.
func Diff(a, b []byte, granularity int) []DiffRun {
	if granularity <= 0 {
		granularity = DefaultDiffGranularity
	}
	var runs []DiffRun
	var open *DiffRun
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for off := 0; off < n; off += granularity {
		end := off + granularity
		if end > n {
			end = n
		}
		if bytes.Equal(a[off:end], b[off:end]) {
			open = nil
			continue
		}
		if open != nil && open.Start+open.Length == int64(off) {
			open.Length += int64(end - off)
			continue
		}
		runs = append(runs, DiffRun{Start: int64(off), Length: int64(end - off)})
		open = &runs[len(runs)-1]
	}
	return runs
}
