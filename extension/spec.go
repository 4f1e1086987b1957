package extension

import "github.com/sievecore/sievecore/ast"

// ArgKind enumerates the closed set of argument node kinds an extension's
// command/test/tag spec can require at a given position, mirroring the five
// ast.Argument variants (ast/argument.go).
type ArgKind int

const (
	ArgKindString ArgKind = iota
	ArgKindStringList
	ArgKindNumber
	ArgKindTag
	ArgKindVariable
)

// CommandSpec describes one command's grammar: how many positional
// arguments it takes, their kinds, which tags it accepts directly, and
// whether it is the "if" control form (which carries ast.Command.Clauses
// instead of a flat argument list).
type CommandSpec struct {
	Name            string
	MinPositional   int
	MaxPositional   int // -1 means unbounded
	PositionalKinds []ArgKind
	AllowedTags     []string
	AllowsBlock     bool
	IsControl       bool
}

// TestSpec describes one test's grammar, analogous to CommandSpec.
// IsCombinator marks allof/anyof/not, whose operands are sub-tests rather
// than a flat argument list.
type TestSpec struct {
	Name            string
	MinPositional   int
	MaxPositional   int
	PositionalKinds []ArgKind
	AllowedTags     []string
	IsCombinator    bool
	MinSubTests     int
	MaxSubTests     int // -1 unbounded
}

// TagSpec describes one tag an extension contributes, either to a single
// command/test's local tag set (tier one of the two-tier tag
// dispatch) or to the pool every enabled extension's Tags map forms for
// tier two (Registry.ResolveGlobalTag walks that pool by name — the Go
// equivalent of each global registry's "is_instance_of(name)" predicate).
type TagSpec struct {
	Name          string
	TakesArgument bool
	ArgumentKind  ArgKind
	Validate      func(tag *ast.TagArg) error
}
