package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievecore/sievecore/ast"
	"github.com/sievecore/sievecore/lexer"
)

func parseScript(t *testing.T, src string) (*ast.Script, []error) {
	t.Helper()
	toks, lexErrs := lexer.New(src, 0).Scan()
	require.Empty(t, lexErrs)
	return Make(toks, 0, "t").Parse()
}

func TestParsesSimpleFileinto(t *testing.T) {
	script, errs := parseScript(t, `require "fileinto"; fileinto "Work";`)
	require.Empty(t, errs)
	require.Len(t, script.Commands, 2)
	assert.Equal(t, "require", script.Commands[0].Name)
	assert.Equal(t, "fileinto", script.Commands[1].Name)
	require.Len(t, script.Commands[1].Positional, 1)
	str, ok := script.Commands[1].Positional[0].(*ast.StringArg)
	require.True(t, ok)
	assert.Equal(t, "Work", str.Value)
}

func TestParsesIfElsifElse(t *testing.T) {
	src := `
	if header :contains "Subject" "sale" {
		discard;
	} elsif header :contains "Subject" "invoice" {
		keep;
	} else {
		stop;
	}
	`
	script, errs := parseScript(t, src)
	require.Empty(t, errs)
	require.Len(t, script.Commands, 1)

	ifCmd := script.Commands[0]
	assert.Equal(t, "if", ifCmd.Name)
	require.Len(t, ifCmd.Clauses, 2)
	assert.Equal(t, "header", ifCmd.Clauses[0].Test.Name)
	require.Len(t, ifCmd.Clauses[0].Block, 1)
	assert.Equal(t, "discard", ifCmd.Clauses[0].Block[0].Name)
	require.Len(t, ifCmd.ElseBlock, 1)
	assert.Equal(t, "stop", ifCmd.ElseBlock[0].Name)
}

func TestParsesAnyofCombinator(t *testing.T) {
	src := `if anyof (header :is "X" "1", header :is "Y" "2") { keep; }`
	script, errs := parseScript(t, src)
	require.Empty(t, errs)

	test := script.Commands[0].Clauses[0].Test
	assert.Equal(t, "anyof", test.Name)
	require.Len(t, test.SubTests, 2)
}

func TestParsesBareNotTest(t *testing.T) {
	src := `if not header :is "X" "1" { keep; }`
	script, errs := parseScript(t, src)
	require.Empty(t, errs)

	test := script.Commands[0].Clauses[0].Test
	assert.Equal(t, "not", test.Name)
	require.Len(t, test.SubTests, 1)
	assert.Equal(t, "header", test.SubTests[0].Name)
}

func TestParsesTagWithParameter(t *testing.T) {
	src := `if header :comparator "i;ascii-casemap" :contains "Subject" "x" { keep; }`
	script, errs := parseScript(t, src)
	require.Empty(t, errs)

	test := script.Commands[0].Clauses[0].Test
	require.Len(t, test.Tagged, 2)
	assert.Equal(t, ":comparator", test.Tagged[0].Name)
	require.NotNil(t, test.Tagged[0].Parameter)
	str, ok := test.Tagged[0].Parameter.(*ast.StringArg)
	require.True(t, ok)
	assert.Equal(t, "i;ascii-casemap", str.Value)
	assert.Equal(t, ":contains", test.Tagged[1].Name)
	assert.Nil(t, test.Tagged[1].Parameter)
}

func TestParsesStringListArgument(t *testing.T) {
	src := `vacation :addresses ["a@example.org", "b@example.org"] "reply text";`
	script, errs := parseScript(t, src)
	require.Empty(t, errs)
	tag := script.Commands[0].Tagged[0]
	list, ok := tag.Parameter.(*ast.StringListArg)
	require.True(t, ok)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, list.Values)
}

func TestSyntaxErrorInBlockIsReported(t *testing.T) {
	src := `if header "bad" { keep } fileinto "Work";`
	_, errs := parseScript(t, src)
	assert.NotEmpty(t, errs)
}
