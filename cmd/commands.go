// Package cmd implements command-line parsing and a REPL loop driving a
// memory-map build (spec.md §6's "CLI surface is out of scope for this
// spec"; this is the ambient shell a shippable binary still needs).
package cmd

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/yasushi-saito/readline"
	"v.io/x/lib/vlog"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/memmap"
	"github.com/allewwaly/insight-vmi-sub006/persist"
	"github.com/allewwaly/insight-vmi-sub006/rules"
	"github.com/allewwaly/insight-vmi-sub006/termutil"
)

// command defines one builtin REPL command.
type command struct {
	callback func(ctx context.Context, args string)
	help     string
}

// Env captures the state a REPL session drives: the catalog and rule
// engine assembled by main, and the Builder/Graph produced by the most
// recent "build" command.
type Env struct {
	Catalog *ctype.Catalog
	Engine  *rules.Engine
	Builder *memmap.Builder
	Graph   *memmap.Graph

	// interactive is true if the application is running under an
	// interactive terminal.
	interactive bool
	builtinCmds map[string]command
	orgLog      *vlog.Logger
}

var (
	pipeRE = regexp.MustCompile(`(.*)\|\s*(less)$`)

	// redirectRE matches >>path or >path. The "path" deliberately
	// restricts the characters to avoid matching a legit command
	// argument.
	redirectRE = regexp.MustCompile(`(.*?)(>?)>\s*([-\w\d.,=~_/:]+)$`)
)

// parseRedirect is separated from parseCommandline for unittesting.
func parseRedirect(line string) (prefix string, out string, append bool, pipe bool) {
	prefix = strings.TrimSpace(line)
	if m := pipeRE.FindStringSubmatch(prefix); m != nil {
		prefix = strings.TrimSpace(m[1])
		out = strings.TrimSpace(m[2])
		pipe = true
	} else if m := redirectRE.FindStringSubmatch(prefix); m != nil {
		prefix = strings.TrimSpace(m[1])
		append = (m[2] != "")
		out = strings.TrimSpace(m[3])
	}
	return
}

// New creates a new environment. Arg interactive should be true if this
// is an interactive commandline session.
func New(cat *ctype.Catalog, engine *rules.Engine, builder *memmap.Builder, graph *memmap.Graph, interactive bool) *Env {
	env := &Env{
		Catalog:     cat,
		Engine:      engine,
		Builder:     builder,
		Graph:       graph,
		interactive: interactive,
		orgLog:      vlog.Log,
	}

	env.builtinCmds = map[string]command{
		"logdir": command{
			callback: env.runLogdir,
			help: `Usage: logdir [dirname]

  Sends log messages to files under the given directory. Invoking
  "logdir" without an argument sends log messages back to stderr.`},
		"build": command{
			callback: env.runBuild,
			help: `Usage: build

  Walks the memory dump from every global/per-CPU root and rebuilds
  the node graph. Replaces any graph from a previous build or load.`},
		"map": command{
			callback: env.runMap,
			help: `Usage: map

  Writes the persisted map (one line per node: address, size,
  probability, type id, type name) for the current graph.`},
		"tree": command{
			callback: env.runTree,
			help: `Usage: tree <variable-name>

  Writes an indented subtree dump rooted at the named global
  variable's node. A trailing "[!]" marks a node whose expansion was
  interrupted before its candidate set was exhausted.`},
		"save": command{
			callback: env.runSave,
			help: `Usage: save <path>

  Writes the current graph as a compressed recordio snapshot that a
  later "load" can restore without re-walking the dump.`},
		"load": command{
			callback: env.runLoad,
			help: `Usage: load <path>

  Replaces the current graph with one read back from a snapshot
  written by "save".`},
		"quit": command{
			callback: env.runQuit,
			help: `Usage: quit

  Terminates the process.`},
		"help": command{
			callback: env.runHelp,
			help: `Usage: help [command]

  Shows help messages. If "command" is given, shows the help for
  that command alone.`},
		"history": command{
			callback: env.runHistory,
			help: `Usage: history

  Prints a notice that input history is not retained; it does not list
  past inputs.`},
	}
	return env
}

// parseCommandline checks if a commandline contains a redirect suffix
// such as '>file'. If so, it removes the suffix from the commandline
// and returns a Printer object that matches the redirect spec.
func (c *Env) parseCommandline(line string) (string, termutil.Printer, bool) {
	prefix, out, append, pipe := parseRedirect(line)
	if out != "" {
		if pipe {
			p, err := termutil.NewPipePrinter(out)
			if err == nil {
				return prefix, p, true
			}
			log.Error.Print(err)
		} else {
			p, err := termutil.NewFilePrinter(out, append)
			if err == nil {
				return prefix, p, true
			}
			log.Error.Print(err)
		}
	}
	return prefix, c.NewOutput(), false
}

// runLogdir implements the "logdir" command.
//
// TODO(saito) This code assumes that the underlying logger is vlog.
func (c *Env) runLogdir(ctx context.Context, args string) {
	path := strings.TrimSpace(args)
	if path == "" {
		vlog.Log = c.orgLog
		return
	}
	if err := os.Mkdir(path, 0755); err != nil && !os.IsExist(err) {
		log.Error.Printf("logdir %s: %v", path, err)
		return
	}
	vl := vlog.NewLogger("vlog")
	vl.Configure(vlog.LogDir(path))      // nolint: errcheck
	vl.Configure(vlog.LogToStderr(true)) // nolint: errcheck
	vlog.Log = vl
}

// Loop runs an interactive command loop. It never returns.
func (c *Env) Loop() {
	termutil.InstallSignalHandler()
	for {
		termutil.ClearSignal()
		ctx, done := termutil.WithCancel(vcontext.Background())
		func() {
			defer done()
			line, err := readline.Readline("vmi> ")
			if err != nil {
				fmt.Printf("\nreadline: %v\n", err)
				return
			}
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				return
			}
			defer func() {
				if err := readline.AddHistory(trimmed); err != nil {
					log.Error.Printf("readline.AddHistory: %v", err)
				}
			}()
			tokens := strings.SplitN(trimmed, " ", 2)
			cmd, ok := c.builtinCmds[tokens[0]]
			if !ok {
				fmt.Printf("unknown command %q, try \"help\"\n", tokens[0])
				return
			}
			args := ""
			if len(tokens) > 1 {
				args = tokens[1]
			}
			defer func() {
				if err := recover(); err != nil {
					log.Printf("Recovered from error: %v: %v", err, string(debug.Stack()))
				}
			}()
			cmd.callback(ctx, args)
		}()
	}
}

func (c *Env) runBuild(ctx context.Context, args string) {
	if c.Builder == nil {
		log.Error.Printf("build: no Builder wired into this session")
		return
	}
	if err := c.Builder.Run(ctx); err != nil {
		// Map-building failures are non-fatal (spec.md §6): logged, not
		// surfaced as a REPL error.
		log.Error.Printf("build: finished with warnings: %v", err)
		return
	}
	log.Printf("build: %d nodes", c.Graph.Len())
}

func (c *Env) runMap(ctx context.Context, args string) {
	_, out, _ := c.parseCommandline(args)
	defer out.Close()
	if err := persist.WriteMap(out, c.Graph, c.Catalog); err != nil {
		log.Error.Printf("map: %v", err)
	}
}

func (c *Env) runTree(ctx context.Context, args string) {
	expr, out, _ := c.parseCommandline(args)
	defer out.Close()
	name := strings.TrimSpace(expr)
	if name == "" {
		log.Error.Printf("tree: usage: tree <variable-name>")
		return
	}
	root, ok := findRoot(c.Graph, name)
	if !ok {
		log.Error.Printf("tree: no root node named %q (has \"build\" been run?)", name)
		return
	}
	if err := persist.WriteTree(out, c.Graph, c.Catalog, root); err != nil {
		log.Error.Printf("tree: %v", err)
	}
}

// findRoot finds the node with no parents whose NamePath matches name.
func findRoot(g *memmap.Graph, name string) (memmap.NodeID, bool) {
	for i := 0; i < g.Len(); i++ {
		id := memmap.NodeID(i)
		n := g.At(id)
		if len(n.Parents) == 0 && n.NamePath == name {
			return id, true
		}
	}
	return 0, false
}

func (c *Env) runSave(ctx context.Context, args string) {
	path := strings.TrimSpace(args)
	if path == "" {
		log.Error.Printf("save: usage: save <path>")
		return
	}
	f, err := os.Create(path)
	if err != nil {
		log.Error.Printf("save: %v", err)
		return
	}
	defer f.Close()
	if err := persist.WriteSnapshot(f, c.Graph); err != nil {
		log.Error.Printf("save: %v", err)
	}
}

func (c *Env) runLoad(ctx context.Context, args string) {
	path := strings.TrimSpace(args)
	if path == "" {
		log.Error.Printf("load: usage: load <path>")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		log.Error.Printf("load: %v", err)
		return
	}
	defer f.Close()
	graph, err := persist.ReadSnapshot(ctx, f, c.Graph.Mode)
	if err != nil {
		log.Error.Printf("load: %v", err)
		return
	}
	c.Graph = graph
	if c.Builder != nil {
		c.Builder.Graph = graph
	}
	log.Printf("load: %d nodes", c.Graph.Len())
}

// NewOutput creates a Printer object that prints to the standard output.
func (c *Env) NewOutput() termutil.Printer {
	if c.interactive {
		return termutil.NewTerminalPrinter(os.Stdout)
	}
	return termutil.NewBatchPrinter(os.Stdout)
}

func (c *Env) runQuit(ctx context.Context, args string) {
	os.Exit(0)
}

func (c *Env) runHistory(ctx context.Context, args string) {
	_, out, _ := c.parseCommandline(args)
	defer out.Close()
	fmt.Fprintln(out, "history is not retained across invocations in this shell")
}

func (c *Env) runHelp(ctx context.Context, args string) {
	expr, out, _ := c.parseCommandline(args)
	defer out.Close()

	writeLine := func(s string) {
		out.WriteString(s)
		out.WriteString("\n")
	}

	if expr != "" {
		if cmd, ok := c.builtinCmds[expr]; ok {
			writeLine(cmd.help)
			return
		}
		log.Error.Printf("help: no such command %q", expr)
		return
	}

	writeLine("* List of commands:")
	var names []string
	for name := range c.builtinCmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeLine("- " + name + "\n" + c.builtinCmds[name].help + "\n")
	}
	writeLine(`A command can be followed by ">file", ">>file", or "|less".
- >file writes the output to a file.
- >>file appends the output to a file.
- |less sends the output to the "less" command.`)
}
