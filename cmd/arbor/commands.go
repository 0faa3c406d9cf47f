package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"arbor.lol/attr"
	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/nested"
	"arbor.lol/store"
)

type exporter interface {
	Export(c context.T, w io.Writer) (count int, err error)
}

type importer interface {
	Import(c context.T, rd io.Reader) (count int, err error)
}

type rescanner interface {
	Rescan(c context.T) (err error)
}

func (a *app) run(c context.T, cmd any) (err error) {
	switch cmd := cmd.(type) {
	case *InsertCmd:
		return a.insert(c, cmd)
	case *TreeCmd:
		return a.printTree(c, cmd)
	case *DescendantsCmd:
		return a.descendants(c, cmd)
	case *AncestorCmd:
		return a.ancestor(c, cmd)
	case *AttrCmd:
		return a.attr(c, cmd)
	case *LayerCmd:
		return a.layer(c, cmd)
	case *ExportCmd:
		return a.export(c, cmd)
	case *ImportCmd:
		return a.load(c, cmd)
	case *RescanCmd:
		r, ok := a.db.(rescanner)
		if !ok {
			return unsupported("rescan")
		}
		return r.Rescan(c)
	}
	return fault.New(fault.ErrInvalidArgument, "unknown command %T", cmd)
}

func unsupported(op string) error {
	return fault.New(fault.ErrInvalidOperation, "the redis store cannot %s", op)
}

// ensure registers a tree kind unless something registered it already.
func (a *app) ensure(kind string) (err error) {
	if _, err = a.db.Schemas().Get(kind); err == nil {
		return
	}
	return a.tree.Register(kind)
}

// node returns the node with the key and registers its kind.
func (a *app) node(c context.T, key uint64) (n *nested.Node, err error) {
	if n, err = a.tree.Get(c, store.Key(key)); err != nil {
		return
	}
	err = a.ensure(n.Kind())
	return
}

func (a *app) insert(c context.T, cmd *InsertCmd) (err error) {
	if err = a.ensure(cmd.Kind); err != nil {
		return
	}
	var n *nested.Node
	if n, err = a.tree.InsertChild(c, cmd.Kind, store.Key(cmd.Parent), cmd.Name); err != nil {
		return
	}
	fmt.Println(n.Key())
	log.D.Ln("inserted", n)
	return
}

func printNode(n *nested.Node, indent int64) {
	fmt.Printf("%s%d %s [%s, %s)\n", strings.Repeat("  ", int(indent)), n.Key(), n.Name(),
		n.NodeFraction(), n.SiblingFraction())
}

func (a *app) printTree(c context.T, cmd *TreeCmd) (err error) {
	if err = a.ensure(cmd.Kind); err != nil {
		return
	}
	var ns []*nested.Node
	if ns, err = a.tree.Walk(c, cmd.Kind); err != nil {
		return
	}
	for _, n := range ns {
		printNode(n, n.Depth()-1)
	}
	return
}

func (a *app) descendants(c context.T, cmd *DescendantsCmd) (err error) {
	var n *nested.Node
	if n, err = a.node(c, cmd.Key); err != nil {
		return
	}
	for d, err := range a.tree.FindDescendants(c, n) {
		if err != nil {
			return err
		}
		printNode(d, d.Depth()-n.Depth()-1)
	}
	return
}

func (a *app) ancestor(c context.T, cmd *AncestorCmd) (err error) {
	var x, y *nested.Node
	if x, err = a.node(c, cmd.A); err != nil {
		return
	}
	if y, err = a.node(c, cmd.B); err != nil {
		return
	}
	var ok bool
	if ok, err = nested.IsAncestorOf(x, y); err != nil {
		return
	}
	fmt.Println(ok)
	return
}

// layerKey resolves a layer name, zero being the base.
func (a *app) layerKey(c context.T, name string) (k store.Key, err error) {
	if name == "" {
		return
	}
	var l *attr.Layer
	if l, err = a.attrs.FindLayer(c, name); err != nil {
		return
	}
	return l.Key(), nil
}

func (a *app) attr(c context.T, cmd *AttrCmd) (err error) {
	var layer store.Key
	if layer, err = a.layerKey(c, cmd.Layer); err != nil {
		return
	}
	owner := store.Key(cmd.Owner)
	switch strings.ToLower(cmd.Op) {
	case "get":
		var at *attr.Attribute
		if at, err = a.attrs.Lookup(c, cmd.Namespace, owner, cmd.Name, layer); err != nil {
			return
		}
		if at == nil {
			return fault.New(fault.ErrNotFound, "%s.%s is not defined", cmd.Namespace, cmd.Name)
		}
		fmt.Println(at.Value)
	case "set":
		if cmd.Description != "" {
			return a.attrs.SetWithDescription(c, cmd.Namespace, owner, cmd.Name, cmd.Value,
				cmd.Description, layer)
		}
		return a.attrs.Set(c, cmd.Namespace, owner, cmd.Name, cmd.Value, layer)
	case "rm":
		return a.attrs.Remove(c, cmd.Namespace, owner, cmd.Name, layer)
	case "list":
		var as []*attr.Attribute
		if as, err = a.attrs.List(c, cmd.Namespace, owner, layer); err != nil {
			return
		}
		for _, at := range as {
			fmt.Printf("%s=%s\n", at.Name, at.Value)
		}
	default:
		return fault.New(fault.ErrInvalidArgument, "unknown attribute operation %q", cmd.Op)
	}
	return
}

func (a *app) layer(c context.T, cmd *LayerCmd) (err error) {
	if cmd.Name == "" {
		var ls []*attr.Layer
		if ls, err = a.attrs.Layers(c); err != nil {
			return
		}
		for _, l := range ls {
			printNode(l.Node, l.Depth()-1)
		}
		return
	}
	var parent store.Key
	if parent, err = a.layerKey(c, cmd.Parent); err != nil {
		return
	}
	var l *attr.Layer
	if l, err = a.attrs.CreateLayer(c, cmd.Name, parent); err != nil {
		return
	}
	fmt.Println(l.Key())
	return
}

func (a *app) export(c context.T, cmd *ExportCmd) (err error) {
	x, ok := a.db.(exporter)
	if !ok {
		return unsupported("export")
	}
	w := io.Writer(os.Stdout)
	if cmd.File != "" {
		var f *os.File
		if f, err = os.Create(cmd.File); chk.E(err) {
			return
		}
		defer func() { chk.E(f.Close()) }()
		w = f
	}
	var n int
	if n, err = x.Export(c, w); err != nil {
		return
	}
	log.I.F("exported %d records", n)
	return
}

func (a *app) load(c context.T, cmd *ImportCmd) (err error) {
	im, ok := a.db.(importer)
	if !ok {
		return unsupported("import")
	}
	rd := io.Reader(os.Stdin)
	if cmd.File != "" {
		var f *os.File
		if f, err = os.Open(cmd.File); chk.E(err) {
			return
		}
		defer func() { chk.E(f.Close()) }()
		rd = f
	}
	var n int
	if n, err = im.Import(c, rd); err != nil {
		return
	}
	log.I.F("imported %d records", n)
	return
}
