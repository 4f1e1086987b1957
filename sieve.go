// Package sieve is the top-level facade tying the compile/execute pipeline
// together: an Instance owns one extension.Registry and compiles Sieve
// source into compiler.Bytecode, saves/loads it through the binary
// package, and runs it — alone or chained via multiscript — against a
// message.Message and a delivery.Target.
package sieve

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/sievecore/sievecore/binary"
	"github.com/sievecore/sievecore/compiler"
	"github.com/sievecore/sievecore/delivery"
	"github.com/sievecore/sievecore/extension"
	"github.com/sievecore/sievecore/interpreter"
	"github.com/sievecore/sievecore/lexer"
	"github.com/sievecore/sievecore/message"
	"github.com/sievecore/sievecore/multiscript"
	"github.com/sievecore/sievecore/parser"
	"github.com/sievecore/sievecore/result"
	"github.com/sievecore/sievecore/sieveerr"
	"github.com/sievecore/sievecore/validator"
)

// Config selects which extensions an Instance starts with (the
// sieve_extensions knob) and the resource limits it enforces.
type Config struct {
	// EnabledExtensions, if non-empty, is passed to
	// extension.Registry.SetEnabled verbatim (space-separated names,
	// optionally "+"/"-" prefixed). Empty means "every registered
	// extension stays enabled".
	EnabledExtensions string

	// AllowDeprecatedImapflags gates the deprecated imapflags extension
	// behind an explicit opt-in.
	AllowDeprecatedImapflags bool

	// MaxRedirects caps redirects per execution (the sieve_max_redirects
	// knob); zero means unlimited.
	MaxRedirects int

	// MaxActions caps the total number of distinct actions one execution
	// may accumulate (sieve_max_actions); zero means unlimited.
	MaxActions int

	// MaxScriptSize caps the source size in bytes Compile accepts
	// (sieve_max_script_size); zero means unlimited.
	MaxScriptSize int

	// TraceLevel is handed through to whatever trace collaborator the
	// embedder wires up; this library records the knob but emits no trace
	// output itself.
	TraceLevel TraceLevel
}

// TraceLevel orders execution-trace verbosity cumulatively: each level
// includes everything below it.
type TraceLevel int

const (
	TraceNone TraceLevel = iota
	TraceActions
	TraceCommands
	TraceTests
	TraceMatching
)

var traceLevelNames = map[string]TraceLevel{
	"none":     TraceNone,
	"actions":  TraceActions,
	"commands": TraceCommands,
	"tests":    TraceTests,
	"matching": TraceMatching,
}

// ParseTraceLevel maps a sieve_trace_level knob value to its TraceLevel.
func ParseTraceLevel(name string) (TraceLevel, error) {
	lvl, ok := traceLevelNames[name]
	if !ok {
		return TraceNone, fmt.Errorf("sieve: unknown trace level %q", name)
	}
	return lvl, nil
}

func (l TraceLevel) String() string {
	for name, lvl := range traceLevelNames {
		if lvl == l {
			return name
		}
	}
	return "none"
}

// Instance is one configured Sieve processing context: a registry plus the
// resource limits every compile/execute through it will honor.
type Instance struct {
	registry      *extension.Registry
	maxRedirects  int
	maxActions    int
	maxScriptSize int
	traceLevel    TraceLevel
}

// NewInstance builds an Instance, registering the built-in extensions and
// applying cfg's enabled-extension list.
func NewInstance(cfg Config) (*Instance, error) {
	reg := extension.NewRegistry()
	if err := extension.RegisterBuiltins(reg, cfg.AllowDeprecatedImapflags); err != nil {
		return nil, fmt.Errorf("sieve: registering builtins: %w", err)
	}
	if cfg.EnabledExtensions != "" {
		if err := reg.SetEnabled(cfg.EnabledExtensions); err != nil {
			return nil, fmt.Errorf("sieve: applying extension list: %w", err)
		}
	}
	return &Instance{
		registry:      reg,
		maxRedirects:  cfg.MaxRedirects,
		maxActions:    cfg.MaxActions,
		maxScriptSize: cfg.MaxScriptSize,
		traceLevel:    cfg.TraceLevel,
	}, nil
}

// TraceLevel returns the trace verbosity this Instance was configured
// with, for the embedder's trace collaborator to consult.
func (inst *Instance) TraceLevel() TraceLevel {
	return inst.traceLevel
}

// CapabilityString returns the space-separated names of every enabled,
// non-hidden extension.
func (inst *Instance) CapabilityString() string {
	return inst.registry.CapabilityString()
}

// Compile parses, validates, and code-generates source (named scriptName
// for diagnostics), returning the resulting Bytecode, or the accumulated
// validation/parse errors.
func (inst *Instance) Compile(scriptName, source string) (*compiler.Bytecode, []error) {
	if inst.maxScriptSize > 0 && len(source) > inst.maxScriptSize {
		return nil, []error{&sieveerr.ResourceError{Limit: "script-size", Message: fmt.Sprintf("script %s exceeds %d bytes", scriptName, inst.maxScriptSize)}}
	}
	toks, lexErrs := lexer.New(source, 0).Scan()
	if len(lexErrs) > 0 {
		return nil, lexErrs
	}

	script, parseErrs := parser.Make(toks, 0, scriptName).Parse()
	if len(parseErrs) > 0 {
		return nil, parseErrs
	}

	deps := extension.NewDependencies(inst.registry)
	v := validator.New(inst.registry, deps, scriptName)
	if errs := v.Validate(script); len(errs) > 0 {
		return nil, errs
	}

	bc, err := compiler.New(deps, v.SideTable()).Compile(script)
	if err != nil {
		return nil, []error{err}
	}
	return bc, nil
}

// Fingerprint computes the source fingerprint binary.Meta carries. A hash
// is used rather than an mtime since an Instance has no filesystem mtime of
// its own to fall back on.
func Fingerprint(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Save persists bc to path via the binary package, stamping it with
// source's fingerprint.
func Save(path string, bc *compiler.Bytecode, source string, generatedAtUnix int64) error {
	return binary.Save(path, bc, binary.Meta{GeneratedAtUnix: generatedAtUnix, SourceFingerprint: Fingerprint(source)}, binary.DefaultSaveMode)
}

// Load reads a binary previously written by Save and checks that its
// extension-dependency table is satisfied by this Instance's enabled
// extensions.
func (inst *Instance) Load(path string) (*compiler.Bytecode, binary.Meta, error) {
	bc, meta, err := binary.Load(path)
	if err != nil {
		return nil, binary.Meta{}, err
	}
	if err := binary.CheckDependencies(bc, inst.enabledNames()); err != nil {
		return nil, binary.Meta{}, err
	}
	return bc, meta, nil
}

func (inst *Instance) enabledNames() map[string]bool {
	enabled := make(map[string]bool)
	for _, ext := range inst.registry.ListEnabled() {
		enabled[ext.Name] = true
	}
	return enabled
}

// Execute runs one compiled script against msg and immediately executes
// its accumulated Result against target — the common single-script case.
func (inst *Instance) Execute(bc *compiler.Bytecode, msg message.Message, target delivery.Target) (*result.ExecutionReport, error) {
	res := result.New(inst.maxRedirects, inst.maxActions)
	c := multiscript.New(interpreter.New())
	if err := c.Run([]multiscript.Script{{Name: "main", Bytecode: bc}}, msg, res); err != nil {
		return nil, err
	}
	return c.Finish(res, target)
}

// ExecuteChain runs scripts in order against msg, sharing one Result, then
// optionally runs discardScript (pass nil for none) before executing the
// accumulated Result against target — the multiscript
// controller, exposed at the facade level.
func (inst *Instance) ExecuteChain(scripts []multiscript.Script, discardScript *compiler.Bytecode, msg message.Message, target delivery.Target) (*result.ExecutionReport, error) {
	res := result.New(inst.maxRedirects, inst.maxActions)
	c := multiscript.New(interpreter.New())
	if err := c.Run(scripts, msg, res); err != nil {
		return nil, err
	}
	if err := c.RunDiscard(discardScript, msg, res); err != nil {
		return nil, err
	}
	return c.Finish(res, target)
}

// LoadSourceFile is a small convenience wrapper around os.ReadFile plus
// Compile, for callers that keep scripts as plain files rather than
// through a dedicated script-storage collaborator (this repository
// defines no script-storage interface or backend; see DESIGN.md).
func (inst *Instance) LoadSourceFile(path string) (*compiler.Bytecode, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &sieveerr.NotFoundError{Name: path}
	}
	bc, errs := inst.Compile(path, string(data))
	return bc, errs, nil
}
