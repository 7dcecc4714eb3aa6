package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/yasushi-saito/readline"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/allewwaly/insight-vmi-sub006/cmd"
	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/expr"
	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
	"github.com/allewwaly/insight-vmi-sub006/memdevice"
	"github.com/allewwaly/insight-vmi-sub006/memmap"
	"github.com/allewwaly/insight-vmi-sub006/persist"
	"github.com/allewwaly/insight-vmi-sub006/rangetree"
	"github.com/allewwaly/insight-vmi-sub006/rules"
	"github.com/allewwaly/insight-vmi-sub006/symsource"
)

var (
	dumpFlag      = flag.String("dump", "", "physical memory dump to read")
	symbolsFlag   = flag.String("symbols", "", "comma-separated list of gob-encoded symbol files, one per compile unit")
	rulesFlag     = flag.String("rules", "", "comma-separated list of type-knowledge rule files")
	outputFlag    = flag.String("output", "", "file to write the persisted map to; defaults to stdout")
	treeRootFlag  = flag.String("tree-root", "", "if set, write an indented subtree dump rooted at this global variable instead of the full map")
	kernelMinFlag = flag.String("kernel-min", "0xffff880000000000", "lower bound (hex) of the kernel virtual-address range")
	kernelMaxFlag = flag.String("kernel-max", "0xffffffffffffffff", "upper bound (hex) of the kernel virtual-address range")
	modeFlag      = flag.String("node-mode", "dag", `node-sharing mode for the graph: "dag" or "tree"`)
	threadsFlag   = flag.Int("threads", runtime.NumCPU(), "builder-thread count (capped at 32)")
	serializeFlag = flag.Bool("serialize-reads", false, "serialize dump reads behind a single lock, for dumps not safe for concurrent pread")
)

// addrRuntime binds "instance_base" to a single concrete instance
// address, so a rule file's address-expression actions
// (expr.AddrExpr.Factory) fold against the real candidate being
// evaluated, the way rules/xml_test.go's mapRuntime does for tests.
type addrRuntime uint64

func (rt addrRuntime) Lookup(name string) (expr.ExpressionResult, error) {
	if name == "instance_base" {
		return expr.ExpressionResult{Kind: expr.Constant, Value: int64(rt)}, nil
	}
	return expr.ExpressionResult{}, kerr.E(kerr.EvaluationError, fmt.Sprintf("undefined identifier %q in rule address expression", name))
}

func parseHexUint64(s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
	must.Nilf(err, "parse address %q", s)
	return v
}

// openSymbolSources opens every file named in -symbols and wraps it in
// a symsource.GobDecoder, indexed by its position in the list (spec.md
// §3's fileIndex). The returned close func must run after Ingest
// completes.
func openSymbolSources(paths []string) ([]symsource.Source, func()) {
	files := make([]*os.File, len(paths))
	sources := make([]symsource.Source, len(paths))
	for i, p := range paths {
		f, err := os.Open(p)
		must.Nilf(err, "open symbol file %q", p)
		files[i] = f
		sources[i] = symsource.Source{FileIndex: i, Decoder: symsource.NewGobDecoder(f)}
	}
	return sources, func() {
		for _, f := range files {
			f.Close()
		}
	}
}

func loadRules(ctx context.Context, cat *ctype.Catalog, paths []string) (*rules.Engine, error) {
	engine := rules.NewEngine(rules.NopScriptHost{})
	factory := func(addr uint64) expr.Runtime { return addrRuntime(addr) }
	loader := rules.NewLoader(cat, factory)
	for _, p := range paths {
		rs, err := loader.LoadFile(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, r := range rs {
			engine.Add(r)
		}
	}
	engine.Build()
	return engine, nil
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	flag.Parse()
	must.Truef(*dumpFlag != "", "-dump is required")
	must.Truef(*symbolsFlag != "", "-symbols is required")
	if err := readline.Init(readline.Opts{Name: "insight-vmi", ExpandHistory: true}); err != nil {
		log.Error.Printf("readline.Init: %v", err)
	}

	ctx := context.Background()
	cat := ctype.NewCatalog()

	sources, closeSources := openSymbolSources(strings.Split(*symbolsFlag, ","))
	err := symsource.Ingest(ctx, cat, sources)
	closeSources()
	if err != nil {
		// Symbol-parse failure before any node is produced: non-zero exit
		// (spec.md §6).
		log.Error.Printf("symbols: %v", err)
		os.Exit(1)
	}

	var rulePaths []string
	if *rulesFlag != "" {
		rulePaths = strings.Split(*rulesFlag, ",")
	}
	engine, err := loadRules(ctx, cat, rulePaths)
	if err != nil {
		// Rule-validation failure: non-zero exit (spec.md §6).
		log.Error.Printf("rules: %v", err)
		os.Exit(1)
	}

	device, err := memdevice.Open(ctx, *dumpFlag, memdevice.IdentityVirtualMemory{}, *serializeFlag)
	if err != nil {
		// Dump-read failure before any node is produced: non-zero exit
		// (spec.md §6).
		log.Error.Printf("dump: %v", err)
		os.Exit(1)
	}
	defer device.Close()

	kernelRange := memmap.AddressRange{Min: parseHexUint64(*kernelMinFlag), Max: parseHexUint64(*kernelMaxFlag)}
	tree := rangetree.New(kernelRange.Max)

	mode := memmap.ModeDAG
	if strings.ToLower(*modeFlag) == "tree" {
		mode = memmap.ModeTree
	}
	graph := memmap.NewGraph(mode)

	threads := *threadsFlag
	if threads < 1 {
		threads = 1
	}
	if threads > 32 {
		threads = 32
	}
	builder := memmap.NewBuilder(device, cat, engine, graph, tree, nil, kernelRange, threads)

	// Map-building failures are recovered locally and surfaced only as
	// warnings (spec.md §6, §7); they never change the exit code.
	if err := builder.Run(ctx); err != nil {
		log.Error.Printf("memmap: build finished with warnings: %v", err)
	}

	interactive := terminal.IsTerminal(syscall.Stdin) && terminal.IsTerminal(syscall.Stdout)
	env := cmd.New(cat, engine, builder, graph, interactive)

	switch {
	case *treeRootFlag != "":
		writeTreeRoot(graph, cat, *treeRootFlag)
	case interactive && flag.NArg() == 0:
		fmt.Println("insight-vmi: graph built,", graph.Len(), "nodes. Type \"help\" for commands.")
		env.Loop()
		return
	default:
		writeMap(graph, cat)
	}
}

func writeMap(graph *memmap.Graph, cat *ctype.Catalog) {
	w := os.Stdout
	if *outputFlag != "" {
		f, err := os.Create(*outputFlag)
		must.Nilf(err, "create output file %q", *outputFlag)
		defer f.Close()
		must.Nil(persist.WriteMap(f, graph, cat), "write persisted map")
		return
	}
	must.Nil(persist.WriteMap(w, graph, cat), "write persisted map")
}

func writeTreeRoot(graph *memmap.Graph, cat *ctype.Catalog, name string) {
	var root memmap.NodeID
	found := false
	for i := 0; i < graph.Len(); i++ {
		id := memmap.NodeID(i)
		n := graph.At(id)
		if len(n.Parents) == 0 && n.NamePath == name {
			root, found = id, true
			break
		}
	}
	must.Truef(found, "tree-root %q: no matching root node", name)

	w := os.Stdout
	if *outputFlag != "" {
		f, err := os.Create(*outputFlag)
		must.Nilf(err, "create output file %q", *outputFlag)
		defer f.Close()
		must.Nil(persist.WriteTree(f, graph, cat, root), "write tree dump")
		return
	}
	must.Nil(persist.WriteTree(w, graph, cat, root), "write tree dump")
}
