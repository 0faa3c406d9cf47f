// Command arbor is a command line front end to a nested interval tree store
// and its layered attributes.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/alexflint/go-arg"
	"github.com/pkg/profile"

	"arbor.lol/attr"
	"arbor.lol/config"
	"arbor.lol/context"
	"arbor.lol/interrupt"
	"arbor.lol/lol"
	"arbor.lol/nested"
	"arbor.lol/ratel"
	"arbor.lol/rediskv"
	"arbor.lol/store"
)

var log, chk = lol.Main.Log, lol.Main.Check

type InsertCmd struct {
	Kind   string `arg:"positional,required" help:"kind of tree"`
	Name   string `arg:"positional,required"`
	Parent uint64 `help:"key of the parent node, the top level if unset"`
}

type TreeCmd struct {
	Kind string `arg:"positional,required" help:"kind of tree"`
}

type DescendantsCmd struct {
	Key uint64 `arg:"positional,required" help:"key of the node"`
}

type AncestorCmd struct {
	A uint64 `arg:"positional,required" help:"key of the candidate ancestor"`
	B uint64 `arg:"positional,required" help:"key of the candidate descendant"`
}

type AttrCmd struct {
	Op          string `arg:"positional,required" help:"[get|set|rm|list]"`
	Namespace   string `arg:"positional,required"`
	Name        string `arg:"positional"`
	Value       string `arg:"positional"`
	Owner       uint64 `help:"key of the record the attribute belongs to"`
	Layer       string `help:"name of the layer, the base value if unset"`
	Description string `help:"description stored with a set value"`
}

type LayerCmd struct {
	Name   string `arg:"positional" help:"name of a new layer, lists the layers if unset"`
	Parent string `help:"name of the parent layer"`
}

type ExportCmd struct {
	File string `arg:"positional" help:"file to write, stdout if unset"`
}

type ImportCmd struct {
	File string `arg:"positional" help:"file to read, stdin if unset"`
}

type RescanCmd struct{}

var args struct {
	Insert      *InsertCmd      `arg:"subcommand:insert" help:"add a node to a tree"`
	Tree        *TreeCmd        `arg:"subcommand:tree" help:"print a tree"`
	Descendants *DescendantsCmd `arg:"subcommand:descendants" help:"list the descendants of a node"`
	Ancestor    *AncestorCmd    `arg:"subcommand:ancestor" help:"report whether one node is an ancestor of another"`
	Attr        *AttrCmd        `arg:"subcommand:attr" help:"read and write layered attributes"`
	Layer       *LayerCmd       `arg:"subcommand:layer" help:"create or list layers"`
	Export      *ExportCmd      `arg:"subcommand:export" help:"write every record as a CBOR sequence"`
	Import      *ImportCmd      `arg:"subcommand:import" help:"load records written by export"`
	Rescan      *RescanCmd      `arg:"subcommand:rescan" help:"rebuild the indexes of every record"`
}

// app holds the opened engines for the commands.
type app struct {
	db    store.I
	tree  *nested.Tree
	attrs *attr.Resolver
}

func main() {
	var err error
	var cfg *config.C
	if cfg, err = config.New(); chk.T(err) {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err)
		config.PrintHelp(cfg, os.Stderr)
		os.Exit(1)
	}
	if config.GetEnv() {
		config.PrintEnv(cfg, os.Stdout)
		os.Exit(0)
	}
	if config.HelpRequested() {
		if p, perr := arg.NewParser(arg.Config{Program: "arbor"}, &args); perr == nil {
			p.WriteHelp(os.Stderr)
		}
		_, _ = fmt.Fprintln(os.Stderr)
		config.PrintHelp(cfg, os.Stderr)
		os.Exit(0)
	}
	p := arg.MustParse(&args)
	if p.Subcommand() == nil {
		p.Fail("missing command")
	}
	lol.SetLogLevel(cfg.LogLevel)
	if cfg.Pprof {
		// registered first so it runs last, after the store is closed
		interrupt.AddHandler(profiler(filepath.Join(cfg.Profile, "pprof")))
	}
	if cfg.MemLimit > 0 {
		debug.SetMemoryLimit(cfg.MemLimit)
	}
	c, cancel := context.Cancel(context.Bg())
	var wg sync.WaitGroup
	var a *app
	if a, err = open(c, &wg, cfg); chk.E(err) {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		interrupt.Request()
		os.Exit(1)
	}
	interrupt.AddHandler(func() {
		cancel()
		chk.E(a.db.Close())
	})
	if err = a.run(c, p.Subcommand()); chk.E(err) {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
	}
	interrupt.Request()
	if err != nil {
		os.Exit(1)
	}
}

// profiler starts a CPU profile written to dir and returns its stop. The
// interrupt handlers stop it, as os.Exit skips deferred calls.
func profiler(dir string) (stop func()) {
	return profile.Start(profile.CPUProfile, profile.ProfilePath(dir),
		profile.NoShutdownHook, profile.Quiet).Stop
}

func open(c context.T, wg *sync.WaitGroup, cfg *config.C) (a *app, err error) {
	a = &app{}
	if cfg.RedisAddr != "" {
		a.db = rediskv.New(rediskv.Params{Addr: cfg.RedisAddr, Prefix: cfg.AppName + ":"})
		if err = a.db.Init(""); err != nil {
			return
		}
	} else {
		r := ratel.New(ratel.BackendParams{
			Ctx:               c,
			WG:                wg,
			BlockCacheSize:    cfg.BlockCacheSize,
			LogLevel:          lol.GetLogLevel(cfg.DbLogLevel),
			Compression:       cfg.Compression,
			SequenceBandwidth: uint64(cfg.SequenceBandwidth),
		})
		if err = r.Init(cfg.Path()); err != nil {
			return
		}
		a.db = r
	}
	if a.tree, err = nested.New(a.db, nested.Options{MaxDepth: cfg.MaxDepth}); err != nil {
		return
	}
	for _, k := range cfg.Kinds {
		if err = a.tree.Register(k); err != nil {
			return
		}
	}
	a.attrs, err = attr.New(a.db, a.tree, attr.Options{RequireBase: cfg.RequireBase})
	return
}
