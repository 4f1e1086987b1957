// Package validator implements the semantic pass that walks a parsed
// ast.Script, resolves every command/test/tag name against an
// extension.Registry, enforces the require-first ordering rule, and
// normalizes string/string-list argument shape.
package validator

import (
	"fmt"

	"github.com/sievecore/sievecore/ast"
	"github.com/sievecore/sievecore/extension"
	"github.com/sievecore/sievecore/sieveerr"
)

// SizeDiscriminator records which side of the "size" test's :over/:under
// tags a given test node resolved to. It lives in a NodeID-keyed side-table
// on the Validator so node types stay closed instead of growing an opaque
// per-command data field.
type SizeDiscriminator int

const (
	SizeUnspecified SizeDiscriminator = iota
	SizeOver
	SizeUnder
)

// Validator runs one semantic pass over one Script. Like ast.Builder, a
// Validator belongs to exactly one compile (the single-ownership
// rule for compile-time state).
type Validator struct {
	registry *extension.Registry
	deps     *extension.Dependencies

	scriptName string
	errors     []error
	sideTable  map[ast.NodeID]any

	sawNonRequire bool
}

// New constructs a Validator that resolves names against registry, records
// require'd extensions into deps, and attributes diagnostics to
// scriptName.
func New(registry *extension.Registry, deps *extension.Dependencies, scriptName string) *Validator {
	return &Validator{
		registry:   registry,
		deps:       deps,
		scriptName: scriptName,
		sideTable:  make(map[ast.NodeID]any),
	}
}

// SideTable returns the per-node bookkeeping map the validator filled in
// while walking the script (currently just the size test's discriminator).
// The compiler consults it during code generation.
func (v *Validator) SideTable() map[ast.NodeID]any {
	return v.sideTable
}

// Validate walks every top-level command of script and returns every
// diagnostic collected. A nil or empty result means the script is valid.
func (v *Validator) Validate(script *ast.Script) []error {
	for _, cmd := range script.Commands {
		v.validateTopLevel(cmd)
	}
	return v.errors
}

func (v *Validator) fail(loc ast.Location, format string, args ...any) {
	v.errors = append(v.errors, sieveerr.NewNotValidError(v.scriptName, loc.Line, loc.Column, fmt.Sprintf(format, args...)))
}

func (v *Validator) validateTopLevel(cmd *ast.Command) {
	if cmd.Name == "require" {
		if v.sawNonRequire {
			v.fail(cmd.Loc, "require command can only be placed at top level at the beginning of the file")
		}
	} else {
		v.sawNonRequire = true
	}
	v.validateCommand(cmd)
}

func (v *Validator) validateCommand(cmd *ast.Command) {
	if cmd.Name == "require" {
		v.validateRequire(cmd)
		return
	}

	ext, spec, ok := v.registry.ResolveCommand(cmd.Name)
	if !ok {
		v.fail(cmd.Loc, "unknown command %q", cmd.Name)
		return
	}
	if err := v.ensureRequired(ext); err != nil {
		v.fail(cmd.Loc, "%v", err)
	}
	cmd.Handler = spec

	v.validatePositional(cmd.Loc, cmd.Name, cmd.Positional, spec.MinPositional, spec.MaxPositional, spec.PositionalKinds)
	cmd.Positional = v.normalizeStringLists(cmd.Positional, spec.PositionalKinds)
	v.validateTags(cmd.Loc, cmd.Name, cmd.Tagged, spec.AllowedTags)

	if spec.IsControl {
		for _, clause := range cmd.Clauses {
			v.validateTest(clause.Test)
			for _, inner := range clause.Block {
				v.validateCommand(inner)
			}
		}
		for _, inner := range cmd.ElseBlock {
			v.validateCommand(inner)
		}
		return
	}

	if spec.AllowsBlock {
		for _, inner := range cmd.Block {
			v.validateCommand(inner)
		}
	}
}

func (v *Validator) validateRequire(cmd *ast.Command) {
	if len(cmd.Positional) != 1 {
		v.fail(cmd.Loc, "require takes exactly one string or string-list argument")
		return
	}
	names := stringListValues(cmd.Positional[0])
	if names == nil {
		v.fail(cmd.Loc, "require argument must be a string or string list")
		return
	}
	for _, name := range names {
		if _, err := v.deps.Use(name); err != nil {
			v.fail(cmd.Loc, "%v", err)
		}
	}
}

func (v *Validator) validateTest(t *ast.Test) {
	ext, spec, ok := v.registry.ResolveTest(t.Name)
	if !ok {
		v.fail(t.Loc, "unknown test %q", t.Name)
		for _, sub := range t.SubTests {
			v.validateTest(sub)
		}
		return
	}
	if err := v.ensureRequired(ext); err != nil {
		v.fail(t.Loc, "%v", err)
	}
	t.Handler = spec

	if spec.IsCombinator {
		if len(t.SubTests) < spec.MinSubTests || (spec.MaxSubTests >= 0 && len(t.SubTests) > spec.MaxSubTests) {
			v.fail(t.Loc, "%s takes between %d and %d sub-tests", t.Name, spec.MinSubTests, spec.MaxSubTests)
		}
		for _, sub := range t.SubTests {
			v.validateTest(sub)
		}
		return
	}

	v.validatePositional(t.Loc, t.Name, t.Positional, spec.MinPositional, spec.MaxPositional, spec.PositionalKinds)
	t.Positional = v.normalizeStringLists(t.Positional, spec.PositionalKinds)
	v.validateTags(t.Loc, t.Name, t.Tagged, spec.AllowedTags)

	if t.Name == "size" {
		v.recordSizeDiscriminator(t)
	}
}

func (v *Validator) recordSizeDiscriminator(t *ast.Test) {
	for _, tag := range t.Tagged {
		switch tag.Name {
		case ":over":
			v.sideTable[t.ID] = SizeOver
			return
		case ":under":
			v.sideTable[t.ID] = SizeUnder
			return
		}
	}
	v.fail(t.Loc, "size test requires :over or :under")
}

func (v *Validator) validatePositional(loc ast.Location, name string, args []ast.Argument, min, max int, kinds []extension.ArgKind) {
	if len(args) < min || (max >= 0 && len(args) > max) {
		v.fail(loc, "%s takes between %d and %d positional arguments, got %d", name, min, max, len(args))
		return
	}
	for i, kind := range kinds {
		if i >= len(args) {
			break
		}
		if !kindMatches(args[i], kind) {
			v.fail(loc, "%s: argument %d has the wrong type", name, i+1)
		}
	}
}

func kindMatches(arg ast.Argument, kind extension.ArgKind) bool {
	switch kind {
	case extension.ArgKindString:
		switch arg.(type) {
		case *ast.StringArg, *ast.VariableArg:
			return true
		}
		return false
	case extension.ArgKindStringList:
		switch arg.(type) {
		case *ast.StringArg, *ast.StringListArg, *ast.VariableArg:
			return true
		}
		return false
	case extension.ArgKindNumber:
		_, ok := arg.(*ast.NumberArg)
		return ok
	case extension.ArgKindTag:
		_, ok := arg.(*ast.TagArg)
		return ok
	case extension.ArgKindVariable:
		_, ok := arg.(*ast.VariableArg)
		return ok
	default:
		return false
	}
}

// normalizeStringLists rewrites a bare StringArg into a single-element
// StringListArg wherever the argument spec calls for a string-list, so the
// compiler and interpreter only ever handle one shape for that position.
func (v *Validator) normalizeStringLists(args []ast.Argument, kinds []extension.ArgKind) []ast.Argument {
	if len(kinds) == 0 {
		return args
	}
	out := make([]ast.Argument, len(args))
	copy(out, args)
	for i, kind := range kinds {
		if i >= len(out) {
			break
		}
		if kind != extension.ArgKindStringList {
			continue
		}
		if s, ok := out[i].(*ast.StringArg); ok {
			out[i] = &ast.StringListArg{ID: s.ID, Loc: s.Loc, Values: []string{s.Value}}
		}
	}
	return out
}

func stringListValues(arg ast.Argument) []string {
	switch a := arg.(type) {
	case *ast.StringArg:
		return []string{a.Value}
	case *ast.StringListArg:
		return a.Values
	default:
		return nil
	}
}

// validateTags resolves every tagged argument of a command or test. Tier
// one: the name is in the command/test's own AllowedTags — always accepted
// syntactically, and additionally wired to a global TagSpec (for
// validation/handler purposes) when one happens to exist under that name.
// Tier two: the name is absent from AllowedTags but resolves against some
// enabled extension's global tag pool.
func (v *Validator) validateTags(loc ast.Location, name string, tagged []*ast.TagArg, allowed []string) {
	for _, tag := range tagged {
		if !containsString(allowed, tag.Name) {
			ext, spec, ok := v.registry.ResolveGlobalTag(tag.Name)
			if !ok {
				v.fail(loc, "%s: tag %s is not allowed here", name, tag.Name)
				continue
			}
			if err := v.ensureRequired(ext); err != nil {
				v.fail(loc, "%v", err)
			}
			v.wireTag(tag, ext, spec, loc)
			continue
		}

		if ext, spec, ok := v.registry.ResolveGlobalTag(tag.Name); ok {
			v.wireTag(tag, ext, spec, loc)
		}
	}
}

func (v *Validator) wireTag(tag *ast.TagArg, ext *extension.Extension, spec extension.TagSpec, loc ast.Location) {
	tag.ExtensionID = int(ext.ID)
	tag.Handler = spec
	if spec.Validate != nil {
		if err := spec.Validate(tag); err != nil {
			v.fail(loc, "%v", err)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ensureRequired reports an error unless ext is implicitly available
// (admin-Required, e.g. @core or the comparator/match-type/address-part
// trio) or was already named in the script's own "require" command.
func (v *Validator) ensureRequired(ext *extension.Extension) error {
	if ext.Required {
		return nil
	}
	if _, ok := v.deps.IndexOf(ext.Name); ok {
		return nil
	}
	return fmt.Errorf("%q used without a require %q;", ext.Name, ext.Name)
}
