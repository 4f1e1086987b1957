// Package interpreter implements the stack-based bytecode VM: a
// fetch-decode-execute loop over one compiler.Bytecode, advancing an
// instruction pointer and a value Stack, dispatching match-engine tests
// and mail actions per opcode.
//
// Running a script needs a message.Message to read headers/addresses/size
// from and a *result.Result to accumulate actions into; it does not talk
// to delivery.Target directly — Result.Execute (result/result.go) does
// that once the whole script (or multiscript chain) has finished running.
package interpreter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sievecore/sievecore/compiler"
	"github.com/sievecore/sievecore/match"
	"github.com/sievecore/sievecore/message"
	"github.com/sievecore/sievecore/result"
	"github.com/sievecore/sievecore/sieveerr"
)

// variableRefPattern matches one "${name}" variable reference (RFC 5229's
// variable-ref, restricted to the plain-identifier form — namespaced and
// numbered-match references are not recognized).
var variableRefPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// maxSteps bounds how many instructions one Run executes, standing in for
// a CPU-time cap (a compiled script can only ever jump forward, so a
// runaway loop cannot occur from valid bytecode — this is a backstop
// against a corrupt or hand-crafted binary).
const maxSteps = 1_000_000

type regexEvaluator interface {
	Regex(value, pattern string, cmp match.Comparator) (bool, error)
}

// VM runs one compiled script against one message, accumulating its
// effect into a shared Result (so multiscript.Controller can chain several
// scripts into one Result).
type VM struct {
	regexCache regexEvaluator
	variables  map[string]string
}

// New constructs a VM with a fresh regex cache and variable environment.
func New() *VM {
	return &VM{regexCache: match.NewRegexCache(), variables: make(map[string]string)}
}

// Run executes bc against msg, appending actions to res. It returns
// whether the script invoked "stop" (for multiscript's "stop ends this
// script, continuing is not an error" semantics).
func (vm *VM) Run(bc *compiler.Bytecode, msg message.Message, res *result.Result) (stopped bool, err error) {
	var stack Stack
	ip := 0
	testFlag := false
	steps := 0

	ins := bc.Instructions
	for ip < len(ins) {
		steps++
		if steps > maxSteps {
			return false, &sieveerr.ResourceError{Limit: "cpu", Message: "script exceeded the maximum instruction budget"}
		}

		op := compiler.Opcode(ins[ip])
		def, defErr := compiler.Get(op)
		if defErr != nil {
			return false, runtimeErrorf("unknown opcode %d at offset %d", op, ip)
		}
		operands := make([]int, len(def.OperandWidths))
		offset := ip + 1
		for i, w := range def.OperandWidths {
			switch w {
			case 1:
				operands[i] = int(ins[offset])
			case 2:
				operands[i] = int(compiler.ReadUint16(ins, offset))
			}
			offset += w
		}
		width := offset - ip

		switch op {
		case compiler.OP_CONST:
			stack.push(bc.ConstantsPool[operands[0]])

		case compiler.OP_JMP:
			ip = operands[0]
			continue

		case compiler.OP_JMP_IF_FALSE:
			if !testFlag {
				ip = operands[0]
				continue
			}

		case compiler.OP_JMP_IF_TRUE:
			if testFlag {
				ip = operands[0]
				continue
			}

		case compiler.OP_NOT:
			testFlag = !testFlag

		case compiler.OP_TEST_HEADER:
			keys, names, perr := popStringListPair(&stack)
			if perr != nil {
				return false, perr
			}
			values := vm.headerValues(msg, names)
			testFlag = vm.evalMatch(values, keys, byte(operands[0]), byte(operands[1]), byte(operands[2]))

		case compiler.OP_TEST_ADDRESS:
			keys, names, perr := popStringListPair(&stack)
			if perr != nil {
				return false, perr
			}
			values, aerr := vm.addressValues(msg, names, byte(operands[0]))
			if aerr != nil {
				return false, aerr
			}
			testFlag = vm.evalMatch(values, keys, byte(operands[1]), byte(operands[2]), byte(operands[3]))

		case compiler.OP_TEST_SIZE:
			n, serr := popInt64(&stack)
			if serr != nil {
				return false, serr
			}
			if operands[0] == 1 {
				testFlag = msg.Size() < n
			} else {
				testFlag = msg.Size() > n
			}

		case compiler.OP_TRUE:
			testFlag = true

		case compiler.OP_FALSE:
			testFlag = false

		case compiler.OP_TEST_EXISTS:
			names, perr := popStringList(&stack)
			if perr != nil {
				return false, perr
			}
			testFlag = true
			for _, name := range names {
				if len(msg.Header(name)) == 0 {
					testFlag = false
					break
				}
			}

		case compiler.OP_ACTION_KEEP:
			flags, ferr := popFlags(&stack, res)
			if ferr != nil {
				return false, ferr
			}
			if aerr := res.AddKeep(flags); aerr != nil {
				return false, aerr
			}

		case compiler.OP_ACTION_DISCARD:
			if aerr := res.AddDiscard(); aerr != nil {
				return false, aerr
			}

		case compiler.OP_ACTION_REDIRECT:
			addr, serr := popString(&stack)
			if serr != nil {
				return false, serr
			}
			if rerr := res.AddRedirect(vm.interpolate(addr)); rerr != nil {
				return false, rerr
			}

		case compiler.OP_STOP:
			return true, nil

		case compiler.OP_EXT_TEST_ENVELOPE:
			keys, names, perr := popStringListPair(&stack)
			if perr != nil {
				return false, perr
			}
			values, eerr := vm.envelopeValues(msg, names, byte(operands[1]))
			if eerr != nil {
				return false, eerr
			}
			testFlag = vm.evalMatch(values, keys, byte(operands[2]), byte(operands[3]), byte(operands[4]))

		case compiler.OP_EXT_ACTION_FILEINTO:
			folder, serr := popString(&stack)
			if serr != nil {
				return false, serr
			}
			flags, ferr := popFlags(&stack, res)
			if ferr != nil {
				return false, ferr
			}
			if aerr := res.AddFileinto(vm.interpolate(folder), flags); aerr != nil {
				return false, aerr
			}

		case compiler.OP_EXT_ACTION_REJECT, compiler.OP_EXT_ACTION_EREJECT:
			reason, serr := popString(&stack)
			if serr != nil {
				return false, serr
			}
			if aerr := res.AddReject(vm.interpolate(reason)); aerr != nil {
				return false, aerr
			}

		case compiler.OP_EXT_ACTION_VACATION:
			v, verr := popVacation(&stack)
			if verr != nil {
				return false, verr
			}
			if aerr := res.AddVacation(result.VacationArgs{
				Reason:    vm.interpolate(v.Reason),
				Subject:   vm.interpolate(v.Subject),
				From:      vm.interpolate(v.From),
				Handle:    v.Handle,
				Days:      int(v.Days),
				Addresses: v.Addresses,
				MIME:      v.MIME,
			}); aerr != nil {
				return false, aerr
			}

		case compiler.OP_EXT_FLAGS:
			flags, serr := popStringList(&stack)
			if serr != nil {
				return false, serr
			}
			res.ApplyFlags(flagsModeName(byte(operands[1])), flags)

		case compiler.OP_EXT_TEST_HASFLAG:
			want, serr := popStringList(&stack)
			if serr != nil {
				return false, serr
			}
			testFlag = hasAnyFlag(res.PendingFlags(), want)

		case compiler.OP_EXT_SET_VARIABLE:
			value, verr := popString(&stack)
			if verr != nil {
				return false, verr
			}
			name, nerr := popString(&stack)
			if nerr != nil {
				return false, nerr
			}
			vm.variables[name] = applyVarMods(vm.interpolate(value), byte(operands[1]))

		default:
			return false, runtimeErrorf("opcode %d has no execution handler", op)
		}

		ip += width
	}
	return false, nil
}

func popString(s *Stack) (string, error) {
	v, ok := s.pop()
	if !ok {
		return "", runtimeErrorf("stack underflow: expected a string")
	}
	str, ok := v.(string)
	if !ok {
		return "", runtimeErrorf("expected a string constant, got %T", v)
	}
	return str, nil
}

func popInt64(s *Stack) (int64, error) {
	v, ok := s.pop()
	if !ok {
		return 0, runtimeErrorf("stack underflow: expected a number")
	}
	n, ok := v.(int64)
	if !ok {
		return 0, runtimeErrorf("expected a number constant, got %T", v)
	}
	return n, nil
}

func popStringList(s *Stack) ([]string, error) {
	v, ok := s.pop()
	if !ok {
		return nil, runtimeErrorf("stack underflow: expected a string list")
	}
	list, ok := v.([]string)
	if !ok {
		return nil, runtimeErrorf("expected a string-list constant, got %T", v)
	}
	return list, nil
}

// popStringListPair pops the keys then the names string lists, matching
// the push order compiler.compileHeaderLikeTest uses (names pushed first,
// keys pushed second, so keys come off first).
func popStringListPair(s *Stack) (keys, names []string, err error) {
	keys, err = popStringList(s)
	if err != nil {
		return nil, nil, err
	}
	names, err = popStringList(s)
	if err != nil {
		return nil, nil, err
	}
	return keys, names, nil
}

func popVacation(s *Stack) (compiler.VacationLiteral, error) {
	v, ok := s.pop()
	if !ok {
		return compiler.VacationLiteral{}, runtimeErrorf("stack underflow: expected a vacation literal")
	}
	lit, ok := v.(compiler.VacationLiteral)
	if !ok {
		return compiler.VacationLiteral{}, runtimeErrorf("expected a vacation literal, got %T", v)
	}
	return lit, nil
}

// popFlags pops the flags operand keep/fileinto push: either an explicit
// []string, or compiler.UseInternalFlags{} meaning "use the imap4flags
// internal variable" (res.AddKeep/AddFileinto already merge whatever is
// passed here with that variable, so nil is the correct translation).
func popFlags(s *Stack, res *result.Result) ([]string, error) {
	v, ok := s.pop()
	if !ok {
		return nil, runtimeErrorf("stack underflow: expected a flags operand")
	}
	switch fv := v.(type) {
	case []string:
		return fv, nil
	case compiler.UseInternalFlags:
		return nil, nil
	default:
		return nil, runtimeErrorf("expected a flags operand, got %T", v)
	}
}

func flagsModeName(mode byte) string {
	switch mode {
	case compiler.FlagsAdd:
		return "add"
	case compiler.FlagsRemove:
		return "remove"
	default:
		return "set"
	}
}

func hasAnyFlag(current, want []string) bool {
	set := make(map[string]bool, len(current))
	for _, f := range current {
		set[f] = true
	}
	for _, f := range want {
		if set[f] {
			return true
		}
	}
	return false
}

func (vm *VM) headerValues(msg message.Message, names []string) []string {
	var out []string
	for _, name := range names {
		out = append(out, msg.Header(name)...)
	}
	return out
}

func (vm *VM) addressValues(msg message.Message, names []string, part byte) ([]string, error) {
	var out []string
	for _, name := range names {
		addrs, err := msg.Addresses(name)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			out = append(out, match.Select(a, compiler.AddressPartName(part)))
		}
	}
	return out, nil
}

func (vm *VM) envelopeValues(msg message.Message, parts []string, part byte) ([]string, error) {
	var out []string
	for _, p := range parts {
		var addr match.Address
		var err error
		switch strings.ToLower(p) {
		case "to":
			addr, err = msg.EnvelopeTo()
		default:
			addr, err = msg.EnvelopeFrom()
		}
		if err != nil {
			continue
		}
		out = append(out, match.Select(addr, compiler.AddressPartName(part)))
	}
	return out, nil
}

// evalMatch evaluates values against keys under the given comparator and
// match-type, true if any (value, key) pair matches — the OR-across-all-
// elements semantics RFC 5228 §2.7.1 requires.
func (vm *VM) evalMatch(values, keys []string, comparatorID, matchTypeID, relOpID byte) bool {
	cmp, ok := match.Lookup(compiler.ComparatorName(comparatorID))
	if !ok {
		cmp, _ = match.Lookup(match.DefaultComparator)
	}

	switch compiler.MatchTypeName(matchTypeID) {
	case "is":
		for _, v := range values {
			for _, k := range keys {
				if match.Is(v, k, cmp) {
					return true
				}
			}
		}
	case "contains":
		for _, v := range values {
			for _, k := range keys {
				if match.Contains(v, k, cmp) {
					return true
				}
			}
		}
	case "matches":
		for _, v := range values {
			for _, k := range keys {
				if match.Glob(v, k, cmp) {
					return true
				}
			}
		}
	case "regex":
		for _, v := range values {
			for _, k := range keys {
				ok, err := vm.regexCache.Regex(v, k, cmp)
				if err == nil && ok {
					return true
				}
			}
		}
	case "count":
		op := match.RelationalOp(compiler.RelOpName(relOpID))
		for _, k := range keys {
			target, err := strconv.ParseInt(k, 10, 64)
			if err != nil {
				continue
			}
			if match.CompareCount(len(values), op, target) {
				return true
			}
		}
	case "value":
		op := match.RelationalOp(compiler.RelOpName(relOpID))
		for _, k := range keys {
			if match.CompareValue(values, k, op, cmp) {
				return true
			}
		}
	}
	return false
}

// interpolate substitutes every "${name}" reference in s with vm's current
// variable bindings (RFC 5229 §3), leaving unknown names as an empty
// string. A script that never requires "variables" never populates
// vm.variables, so any literal "${...}" it happens to contain resolves to
// the empty string rather than being left as a trap for a later require.
func (vm *VM) interpolate(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return variableRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		return vm.variables[name]
	})
}

func applyVarMods(value string, mods byte) string {
	if mods&compiler.VarModLength != 0 {
		return strconv.Itoa(len(value))
	}
	if mods&compiler.VarModQuoteWildcard != 0 {
		value = strings.NewReplacer("\\", "\\\\", "*", "\\*", "?", "\\?").Replace(value)
	}
	if mods&compiler.VarModLower != 0 {
		value = strings.ToLower(value)
	}
	if mods&compiler.VarModUpper != 0 {
		value = strings.ToUpper(value)
	}
	if mods&compiler.VarModLowerFirst != 0 && value != "" {
		value = strings.ToLower(value[:1]) + value[1:]
	}
	if mods&compiler.VarModUpperFirst != 0 && value != "" {
		value = strings.ToUpper(value[:1]) + value[1:]
	}
	return value
}
