package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievecore/sievecore/compiler"
	"github.com/sievecore/sievecore/delivery"
	"github.com/sievecore/sievecore/extension"
	"github.com/sievecore/sievecore/lexer"
	"github.com/sievecore/sievecore/message"
	"github.com/sievecore/sievecore/parser"
	"github.com/sievecore/sievecore/result"
	"github.com/sievecore/sievecore/validator"
)

func compileAndRun(t *testing.T, src, rawMessage string) (*result.Result, bool) {
	t.Helper()
	toks, lexErrs := lexer.New(src, 0).Scan()
	require.Empty(t, lexErrs)
	script, parseErrs := parser.Make(toks, 0, "t").Parse()
	require.Empty(t, parseErrs)

	reg := extension.NewRegistry()
	require.NoError(t, extension.RegisterBuiltins(reg, false))
	deps := extension.NewDependencies(reg)
	v := validator.New(reg, deps, "t")
	errs := v.Validate(script)
	require.Empty(t, errs)

	bc, err := compiler.New(deps, v.SideTable()).Compile(script)
	require.NoError(t, err)

	msg, err := message.NewStatic(rawMessage)
	require.NoError(t, err)

	res := result.New(0, 0)
	stopped, runErr := New().Run(bc, msg, res)
	require.NoError(t, runErr)
	return res, stopped
}

const sampleMessage = "From: sender@example.org\r\nTo: recipient@example.org\r\nSubject: big sale today\r\n\r\nbody\r\n"

func TestHeaderContainsTriggersFileinto(t *testing.T) {
	res, _ := compileAndRun(t, `require "fileinto"; if header :contains "Subject" "sale" { fileinto "Offers"; }`, sampleMessage)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, result.ActionFileinto, actions[0].Kind)
	assert.Equal(t, "Offers", actions[0].Folder)
}

func TestHeaderIsFallsThroughToImplicitKeep(t *testing.T) {
	res, _ := compileAndRun(t, `if header :is "Subject" "nope" { discard; }`, sampleMessage)
	report, err := res.Execute(delivery.NewRecorder("postmaster@example.org"))
	require.NoError(t, err)
	assert.True(t, report.ImplicitKeepPerformed)
}

func TestExistsRequiresEveryNamedHeader(t *testing.T) {
	res, _ := compileAndRun(t, `if exists ["From", "Subject"] { discard; }`, sampleMessage)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, result.ActionDiscard, actions[0].Kind)

	res, _ = compileAndRun(t, `if exists ["From", "X-Missing"] { discard; }`, sampleMessage)
	assert.Empty(t, res.Actions())
}

func TestTrueAndFalseTests(t *testing.T) {
	res, _ := compileAndRun(t, `if true { discard; }`, sampleMessage)
	require.Len(t, res.Actions(), 1)

	res, _ = compileAndRun(t, `if false { discard; }`, sampleMessage)
	assert.Empty(t, res.Actions())
}

func TestNotInvertsHeaderTest(t *testing.T) {
	res, _ := compileAndRun(t, `if not header :contains "Subject" "sale" { discard; } else { keep; }`, sampleMessage)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, result.ActionKeep, actions[0].Kind)
}

func TestAnyofShortCircuitsOnFirstMatch(t *testing.T) {
	res, _ := compileAndRun(t, `if anyof (header :is "Subject" "sale", header :is "Subject" "big sale today") { discard; }`, sampleMessage)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, result.ActionDiscard, actions[0].Kind)
}

func TestSizeOverTrips(t *testing.T) {
	res, _ := compileAndRun(t, `if size :over 10 { discard; }`, sampleMessage)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, result.ActionDiscard, actions[0].Kind)
}

func TestStopHaltsExecution(t *testing.T) {
	res, stopped := compileAndRun(t, `require "fileinto"; discard; stop; fileinto "Never";`, sampleMessage)
	assert.True(t, stopped)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, result.ActionDiscard, actions[0].Kind)
}

func TestVariablesSetAndInterpolate(t *testing.T) {
	src := `require ["variables", "fileinto"];
	set "folder" "Offers";
	fileinto "${folder}";`
	res, _ := compileAndRun(t, src, sampleMessage)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "Offers", actions[0].Folder)
}

func TestImap4FlagsSetflagAppliesToKeep(t *testing.T) {
	src := `require "imap4flags";
	setflag ["\\Flagged"];
	keep;`
	res, _ := compileAndRun(t, src, sampleMessage)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, []string{"\\Flagged"}, actions[0].Flags)
}

func TestHasflagSeesSetflagState(t *testing.T) {
	src := `require "imap4flags";
	setflag ["\\Flagged"];
	if hasflag "\\Flagged" { discard; }`
	res, _ := compileAndRun(t, src, sampleMessage)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, result.ActionDiscard, actions[0].Kind)
}

func TestVacationProducesVacationAction(t *testing.T) {
	src := `require "vacation"; vacation :days 2 :subject "Away" "I am away";`
	res, _ := compileAndRun(t, src, sampleMessage)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, result.ActionVacation, actions[0].Kind)
	assert.Equal(t, "Away", actions[0].Vacation.Subject)
	assert.Equal(t, "I am away", actions[0].Vacation.Reason)
}

func TestRejectProducesRejectAction(t *testing.T) {
	src := `require "reject"; reject "no thanks";`
	res, _ := compileAndRun(t, src, sampleMessage)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, result.ActionReject, actions[0].Kind)
	assert.Equal(t, "no thanks", actions[0].Reason)
}

func TestEnvelopeFromTest(t *testing.T) {
	src := `require "envelope"; if envelope :is "from" "sender@example.org" { discard; }`
	res, _ := compileAndRun(t, src, sampleMessage)
	actions := res.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, result.ActionDiscard, actions[0].Kind)
}
