package persist

import (
	"bytes"
	"context"
	"encoding/gob"
	"io"
	"sync"

	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"

	"github.com/allewwaly/insight-vmi-sub006/memmap"
)

var initZstd sync.Once

// WriteSnapshot writes every node of graph to w as a zstd-compressed
// recordio stream, one gob-encoded memmap.Node per record — a
// compressed rebuild cache for a map that can otherwise take minutes to
// reconstruct, the same "reload if hash matches" idea the teacher's own
// gql/cache.go applies to subquery results, here applied to a rebuilt
// memory map instead (grailbio-gql/gql/btsv_table.go's
// recordio.NewWriter/recordiozstd.Name usage).
func WriteSnapshot(w io.Writer, graph *memmap.Graph) error {
	initZstd.Do(recordiozstd.Init)
	rio := recordio.NewWriter(w, recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	for id := memmap.NodeID(0); int(id) < graph.Len(); id++ {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(*graph.At(id)); err != nil {
			return err
		}
		rio.Append(buf.Bytes())
	}
	return rio.Flush()
}

// ReadSnapshot reconstructs a Graph from a stream WriteSnapshot produced.
// Node ids are assigned in read order, which WriteSnapshot guarantees
// matches the original graph's node-id order, so Parents/Children
// references decoded along with each node remain valid.
func ReadSnapshot(ctx context.Context, r io.Reader, mode memmap.Mode) (*memmap.Graph, error) {
	initZstd.Do(recordiozstd.Init)
	sc := recordio.NewScanner(r, recordio.ScannerOpts{})
	graph := memmap.NewGraph(mode)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var n memmap.Node
		if err := gob.NewDecoder(bytes.NewReader(sc.Get().([]byte))).Decode(&n); err != nil {
			return nil, err
		}
		graph.Add(n)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return graph, nil
}
