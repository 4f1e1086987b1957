package sieve

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievecore/sievecore/delivery"
	"github.com/sievecore/sievecore/message"
	"github.com/sievecore/sievecore/multiscript"
)

const sampleMessage = "Subject: big SALE today\r\nFrom: sender@example.org\r\n\r\nbody\r\n"

func newMsg(t *testing.T) message.Message {
	t.Helper()
	msg, err := message.NewStatic(sampleMessage)
	require.NoError(t, err)
	return msg
}

func TestCompileAndExecuteFileinto(t *testing.T) {
	inst, err := NewInstance(Config{})
	require.NoError(t, err)

	bc, errs := inst.Compile("t", `require "fileinto"; if header :contains "Subject" "sale" { fileinto "Offers"; }`)
	require.Empty(t, errs)

	rec := delivery.NewRecorder("postmaster@example.org")
	report, err := inst.Execute(bc, newMsg(t), rec)
	require.NoError(t, err)
	require.Len(t, report.Executed, 1)
	assert.Equal(t, "Offers", rec.Stores[0].Folder)
}

func TestCompileRejectsUnrequiredExtension(t *testing.T) {
	inst, err := NewInstance(Config{})
	require.NoError(t, err)

	_, errs := inst.Compile("t", `if header :contains "Subject" "sale" { fileinto "Offers"; }`)
	assert.NotEmpty(t, errs)
}

func TestCompileRejectsDisabledExtension(t *testing.T) {
	inst, err := NewInstance(Config{EnabledExtensions: "fileinto"})
	require.NoError(t, err)

	_, errs := inst.Compile("t", `require "vacation"; vacation "away";`)
	assert.NotEmpty(t, errs)
}

func TestSaveLoadRoundTripsThroughInstance(t *testing.T) {
	inst, err := NewInstance(Config{})
	require.NoError(t, err)

	src := `require "fileinto"; fileinto "Offers";`
	bc, errs := inst.Compile("t", src)
	require.Empty(t, errs)

	path := filepath.Join(t.TempDir(), "script.svbc")
	require.NoError(t, Save(path, bc, src, 1700000000))

	loaded, _, err := inst.Load(path)
	require.NoError(t, err)
	assert.Equal(t, bc.Instructions, loaded.Instructions)
}

func TestLoadRejectsBinaryReferencingDisabledExtension(t *testing.T) {
	full, err := NewInstance(Config{})
	require.NoError(t, err)
	src := `require "vacation"; vacation "away";`
	bc, errs := full.Compile("t", src)
	require.Empty(t, errs)

	path := filepath.Join(t.TempDir(), "script.svbc")
	require.NoError(t, Save(path, bc, src, 1700000000))

	restricted, err := NewInstance(Config{EnabledExtensions: "fileinto"})
	require.NoError(t, err)
	_, _, loadErr := restricted.Load(path)
	assert.Error(t, loadErr)
}

func TestCompileRejectsOversizedScript(t *testing.T) {
	inst, err := NewInstance(Config{MaxScriptSize: 16})
	require.NoError(t, err)

	_, errs := inst.Compile("t", `require "fileinto"; fileinto "Offers";`)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "script-size")
}

func TestExecuteEnforcesActionCap(t *testing.T) {
	inst, err := NewInstance(Config{MaxActions: 1})
	require.NoError(t, err)

	bc, errs := inst.Compile("t", `require "fileinto"; fileinto "A"; fileinto "B";`)
	require.Empty(t, errs)

	rec := delivery.NewRecorder("postmaster@example.org")
	_, execErr := inst.Execute(bc, newMsg(t), rec)
	assert.Error(t, execErr)
}

func TestParseTraceLevelOrdering(t *testing.T) {
	actions, err := ParseTraceLevel("actions")
	require.NoError(t, err)
	matching, err := ParseTraceLevel("matching")
	require.NoError(t, err)
	assert.True(t, actions < matching)
	assert.Equal(t, "actions", actions.String())

	_, err = ParseTraceLevel("verbose")
	assert.Error(t, err)
}

func TestExecuteChainSharesResultAcrossScripts(t *testing.T) {
	inst, err := NewInstance(Config{})
	require.NoError(t, err)

	bc1, errs := inst.Compile("s1", `require "fileinto"; fileinto "A";`)
	require.Empty(t, errs)
	bc2, errs := inst.Compile("s2", `keep;`)
	require.Empty(t, errs)

	rec := delivery.NewRecorder("postmaster@example.org")
	report, err := inst.ExecuteChain([]multiscript.Script{
		{Name: "s1", Bytecode: bc1},
		{Name: "s2", Bytecode: bc2},
	}, nil, newMsg(t), rec)
	require.NoError(t, err)
	require.Len(t, report.Executed, 2)
	require.Len(t, rec.Stores, 2)
}
