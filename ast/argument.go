package ast

// ArgumentVisitor is the interface for operating on every Argument node
// kind. Argument kinds are closed and RFC-fixed, so — unlike the open
// Command/Test vocabulary — one Visit method per concrete type works.
type ArgumentVisitor interface {
	VisitStringArg(arg *StringArg) any
	VisitStringListArg(arg *StringListArg) any
	VisitNumberArg(arg *NumberArg) any
	VisitTagArg(arg *TagArg) any
	VisitVariableArg(arg *VariableArg) any
}

// Argument is the base interface for every argument AST node. Each
// concrete type implements Accept, dispatching to the matching
// ArgumentVisitor method.
type Argument interface {
	Accept(v ArgumentVisitor) any
	Location() Location
	NodeID() NodeID
}

// StringArg is a quoted-string or multi-line "text:" literal.
type StringArg struct {
	ID    NodeID
	Loc   Location
	Value string
}

func (a *StringArg) Accept(v ArgumentVisitor) any { return v.VisitStringArg(a) }
func (a *StringArg) Location() Location           { return a.Loc }
func (a *StringArg) NodeID() NodeID               { return a.ID }

// StringListArg is a bracketed "[...]" string list. The validator also
// rewrites a bare StringArg into a single-element StringListArg wherever
// the command or test spec calls for a string list; it never turns a
// StringListArg into a StringArg.
type StringListArg struct {
	ID     NodeID
	Loc    Location
	Values []string
}

func (a *StringListArg) Accept(v ArgumentVisitor) any { return v.VisitStringListArg(a) }
func (a *StringListArg) Location() Location           { return a.Loc }
func (a *StringListArg) NodeID() NodeID               { return a.ID }

// NumberArg is a number literal, already expanded for any K/M/G quantity
// suffix by the lexer.
type NumberArg struct {
	ID    NodeID
	Loc   Location
	Value int64
}

func (a *NumberArg) Accept(v ArgumentVisitor) any { return v.VisitNumberArg(a) }
func (a *NumberArg) Location() Location           { return a.Loc }
func (a *NumberArg) NodeID() NodeID               { return a.ID }

// TagArg is a ":name" tagged argument, optionally followed by its own
// parameter (e.g. ":comparator \"i;octet\"" carries a StringArg parameter,
// ":over" on the size test carries none). ExtensionID and Handler are set
// by the validator once the tag is resolved against a command's own tag
// set or one of the global comparator/match-type/address-part/custom-tag
// registries — Handler's concrete type is an
// extension-package type; ast stays decoupled from extension to avoid an
// import cycle, so it is carried here as any.
type TagArg struct {
	ID          NodeID
	Loc         Location
	Name        string
	Parameter   Argument
	ExtensionID int
	Handler     any
}

func (a *TagArg) Accept(v ArgumentVisitor) any { return v.VisitTagArg(a) }
func (a *TagArg) Location() Location           { return a.Loc }
func (a *TagArg) NodeID() NodeID               { return a.ID }

// VariableArg references a variable by name (the "variables" extension).
type VariableArg struct {
	ID   NodeID
	Loc  Location
	Name string
}

func (a *VariableArg) Accept(v ArgumentVisitor) any { return v.VisitVariableArg(a) }
func (a *VariableArg) Location() Location           { return a.Loc }
func (a *VariableArg) NodeID() NodeID               { return a.ID }
