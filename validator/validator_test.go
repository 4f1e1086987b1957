package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievecore/sievecore/ast"
	"github.com/sievecore/sievecore/extension"
)

func newRegistry(t *testing.T) *extension.Registry {
	t.Helper()
	r := extension.NewRegistry()
	require.NoError(t, extension.RegisterBuiltins(r, false))
	return r
}

func TestRequireMustPrecedeOtherCommands(t *testing.T) {
	b := ast.NewBuilder(0)
	keep := b.NewCommand("keep", 1, 1)
	req := b.NewCommand("require", 2, 1)
	req.Positional = []ast.Argument{b.NewStringArg("fileinto", 2, 1)}

	script := &ast.Script{ID: 0, Name: "t", Commands: []*ast.Command{keep, req}}

	r := newRegistry(t)
	deps := extension.NewDependencies(r)
	v := New(r, deps, "t")
	errs := v.Validate(script)
	require.NotEmpty(t, errs)
}

func TestUnknownCommandReportsError(t *testing.T) {
	b := ast.NewBuilder(0)
	cmd := b.NewCommand("frobnicate", 1, 1)
	script := &ast.Script{Commands: []*ast.Command{cmd}}

	r := newRegistry(t)
	v := New(r, extension.NewDependencies(r), "t")
	errs := v.Validate(script)
	require.Len(t, errs, 1)
}

func TestFileintoWithoutRequireFails(t *testing.T) {
	b := ast.NewBuilder(0)
	cmd := b.NewCommand("fileinto", 1, 1)
	cmd.Positional = []ast.Argument{b.NewStringArg("Work", 1, 10)}
	script := &ast.Script{Commands: []*ast.Command{cmd}}

	r := newRegistry(t)
	v := New(r, extension.NewDependencies(r), "t")
	errs := v.Validate(script)
	require.NotEmpty(t, errs)
}

func TestFileintoWithRequirePasses(t *testing.T) {
	b := ast.NewBuilder(0)
	req := b.NewCommand("require", 1, 1)
	req.Positional = []ast.Argument{b.NewStringArg("fileinto", 1, 9)}
	cmd := b.NewCommand("fileinto", 2, 1)
	cmd.Positional = []ast.Argument{b.NewStringArg("Work", 2, 10)}
	script := &ast.Script{Commands: []*ast.Command{req, cmd}}

	r := newRegistry(t)
	deps := extension.NewDependencies(r)
	v := New(r, deps, "t")
	errs := v.Validate(script)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"fileinto"}, deps.Names())
}

func TestBareStringNormalizesToStringList(t *testing.T) {
	b := ast.NewBuilder(0)
	req := b.NewCommand("require", 1, 1)
	req.Positional = []ast.Argument{b.NewStringArg("imap4flags", 1, 9)}

	cmd := b.NewCommand("setflag", 2, 1)
	cmd.Positional = []ast.Argument{b.NewStringArg("\\Seen", 2, 9)}
	script := &ast.Script{Commands: []*ast.Command{req, cmd}}

	r := newRegistry(t)
	v := New(r, extension.NewDependencies(r), "t")
	errs := v.Validate(script)
	require.Empty(t, errs)

	_, isStringArg := cmd.Positional[0].(*ast.StringArg)
	assert.False(t, isStringArg, "setflag's flag-list argument is normalized to a string list")
}

func TestHeaderTestWithComparatorTagResolvesTierTwo(t *testing.T) {
	b := ast.NewBuilder(0)
	headerNames := b.NewStringArg("Subject", 1, 8)
	headerValues := b.NewStringListArg([]string{"sale"}, 1, 20)
	test := b.NewTest("header", 1, 1)
	test.Positional = []ast.Argument{headerNames, headerValues}
	comparatorTag := b.NewTagArg(":comparator", 1, 10)
	comparatorTag.Parameter = b.NewStringArg("i;ascii-casemap", 1, 22)
	test.Tagged = []*ast.TagArg{comparatorTag}

	clause := &ast.Clause{Test: test}
	ifCmd := b.NewCommand("if", 1, 1)
	ifCmd.Clauses = []*ast.Clause{clause}
	script := &ast.Script{Commands: []*ast.Command{ifCmd}}

	r := newRegistry(t)
	v := New(r, extension.NewDependencies(r), "t")
	errs := v.Validate(script)
	require.Empty(t, errs)
	assert.NotNil(t, comparatorTag.Handler)
}

func TestSizeTestRecordsDiscriminatorInSideTable(t *testing.T) {
	b := ast.NewBuilder(0)
	size := b.NewTest("size", 1, 1)
	size.Positional = []ast.Argument{b.NewNumberArg(1024, 1, 6)}
	overTag := b.NewTagArg(":over", 1, 6)
	size.Tagged = []*ast.TagArg{overTag}

	clause := &ast.Clause{Test: size}
	ifCmd := b.NewCommand("if", 1, 1)
	ifCmd.Clauses = []*ast.Clause{clause}
	script := &ast.Script{Commands: []*ast.Command{ifCmd}}

	r := newRegistry(t)
	v := New(r, extension.NewDependencies(r), "t")
	errs := v.Validate(script)
	require.Empty(t, errs)

	assert.Equal(t, SizeOver, v.SideTable()[size.ID])
}

func TestUnknownTagRejected(t *testing.T) {
	b := ast.NewBuilder(0)
	req := b.NewCommand("require", 1, 1)
	req.Positional = []ast.Argument{b.NewStringArg("fileinto", 1, 9)}

	cmd := b.NewCommand("fileinto", 2, 1)
	cmd.Positional = []ast.Argument{b.NewStringArg("Work", 2, 10)}
	cmd.Tagged = []*ast.TagArg{b.NewTagArg(":bogus", 2, 20)}
	script := &ast.Script{Commands: []*ast.Command{req, cmd}}

	r := newRegistry(t)
	v := New(r, extension.NewDependencies(r), "t")
	errs := v.Validate(script)
	require.NotEmpty(t, errs)
}
