// Package ast defines the Sieve abstract syntax tree: Command, Test, and
// Argument nodes. Sieve's command and test vocabulary is open — extensions
// add new commands and tests at runtime — so Command and Test are single,
// name-dispatched node shapes rather than one struct per command. Argument
// kinds, in contrast, are a closed, RFC-fixed set, so each gets its own
// type plus a visitor interface.
package ast

import "fmt"

// NodeID uniquely identifies a node within one Script's AST. The validator
// uses it to key side-tables of per-command bookkeeping data (the size
// test's over/under discriminator, for example) instead of attaching
// arbitrary data directly to node structs.
type NodeID int

// Location pinpoints a node's origin in source text, including which
// script it came from — required once a multiscript chain reports
// diagnostics from more than one script.
type Location struct {
	ScriptID int
	Line     int32
	Column   int
}

func (l Location) String() string {
	return fmt.Sprintf("script %d, line %d, column %d", l.ScriptID, l.Line, l.Column)
}

// idGen hands out NodeIDs while building a single AST. It is not
// safe for concurrent use; each compile owns its own Builder.
type idGen struct {
	next NodeID
}

func (g *idGen) take() NodeID {
	id := g.next
	g.next++
	return id
}

// Builder assigns NodeIDs while a parser constructs command and test nodes,
// and holds the id of the script this tree belongs to. One Builder per script keeps
// node-id allocation local to that AST.
type Builder struct {
	ids      idGen
	scriptID int
}

// NewBuilder constructs a Builder that stamps every node it creates with
// scriptID.
func NewBuilder(scriptID int) *Builder {
	return &Builder{scriptID: scriptID}
}

func (b *Builder) loc(line int32, column int) Location {
	return Location{ScriptID: b.scriptID, Line: line, Column: column}
}

// NewCommand constructs a Command node with a fresh NodeID.
func (b *Builder) NewCommand(name string, line int32, column int) *Command {
	return &Command{ID: b.ids.take(), Name: name, Loc: b.loc(line, column)}
}

// NewTest constructs a Test node with a fresh NodeID.
func (b *Builder) NewTest(name string, line int32, column int) *Test {
	return &Test{ID: b.ids.take(), Name: name, Loc: b.loc(line, column)}
}

// NewStringArg, NewStringListArg, NewNumberArg, NewTagArg, and
// NewVariableArg construct Argument nodes with a fresh NodeID.

func (b *Builder) NewStringArg(value string, line int32, column int) *StringArg {
	return &StringArg{ID: b.ids.take(), Loc: b.loc(line, column), Value: value}
}

func (b *Builder) NewStringListArg(values []string, line int32, column int) *StringListArg {
	return &StringListArg{ID: b.ids.take(), Loc: b.loc(line, column), Values: values}
}

func (b *Builder) NewNumberArg(value int64, line int32, column int) *NumberArg {
	return &NumberArg{ID: b.ids.take(), Loc: b.loc(line, column), Value: value}
}

func (b *Builder) NewTagArg(name string, line int32, column int) *TagArg {
	return &TagArg{ID: b.ids.take(), Loc: b.loc(line, column), Name: name}
}

func (b *Builder) NewVariableArg(name string, line int32, column int) *VariableArg {
	return &VariableArg{ID: b.ids.take(), Loc: b.loc(line, column), Name: name}
}
