// Package persist implements the two on-disk renderings of a memmap.Graph
// spec.md §6 names: the line-oriented "persisted map" text format and the
// indented init-task subtree dump. Grounded on the teacher's
// line-oriented table I/O (grailbio-gql/gql/tsv_table.go,
// gql/tsv_col.go), adapted from columnar TSV rows to the fixed field
// layout spec.md §6 fixes.
package persist

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/memmap"
)

// WriteMap renders every node in graph as one line of spec.md §6's
// persisted-map format: "address (hex 16), size (dec), probability (4
// decimals), type-id (hex 8), type-name (quoted)". Rows are emitted in
// node-id order, which is creation order, not address order.
func WriteMap(w io.Writer, graph *memmap.Graph, cat *ctype.Catalog) error {
	bw := bufio.NewWriter(w)
	for id := memmap.NodeID(0); int(id) < graph.Len(); id++ {
		n := graph.At(id)
		size, _ := cat.SizeBytes(n.Type)
		name := typeName(cat, n.Type)
		if _, err := fmt.Fprintf(bw, "%016x %d %.4f %08x %s\n",
			n.Address, size, n.Probability, uint32(n.Type), strconv.Quote(name)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func typeName(cat *ctype.Catalog, id ctype.ID) string {
	t, ok := cat.ByID(id)
	if !ok {
		return "?"
	}
	return t.String()
}

// WriteTree renders the init-task subtree reachable from root as spec.md
// §6's indented tree format: one line per node, indented by one level
// per parent-child step, with a trailing "[!]" marker on a node whose
// candidate set was not exhausted (memmap.Node.Incomplete).
func WriteTree(w io.Writer, graph *memmap.Graph, cat *ctype.Catalog, root memmap.NodeID) error {
	bw := bufio.NewWriter(w)
	if err := writeTreeNode(bw, graph, cat, root, 0); err != nil {
		return err
	}
	return bw.Flush()
}

func writeTreeNode(w *bufio.Writer, graph *memmap.Graph, cat *ctype.Catalog, id memmap.NodeID, depth int) error {
	n := graph.At(id)
	for i := 0; i < depth; i++ {
		if _, err := io.WriteString(w, "  "); err != nil {
			return err
		}
	}
	marker := ""
	if n.Incomplete {
		marker = " [!]"
	}
	if _, err := fmt.Fprintf(w, "%s @ 0x%x (%s)%s\n", n.NamePath, n.Address, typeName(cat, n.Type), marker); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := writeTreeNode(w, graph, cat, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}
