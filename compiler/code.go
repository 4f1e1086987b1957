package compiler

import (
	"encoding/binary"
	"fmt"
)

// Bytecode is what the compiler produces and binary/interpreter consume: a
// flat instruction stream, a constants pool, and the ordered extension
// names each >=ExtOpcodeBase instruction's leading operand indexes into.
type Bytecode struct {
	Instructions Instructions
	ConstantsPool []any
	Dependencies  []string
}

// Opcode identifies one bytecode instruction. Values below ExtOpcodeBase
// are core opcodes, always decodable without consulting a dependency
// table. Values at or above it belong to an optional extension; their
// first operand is always a one-byte index into Bytecode.Dependencies, so
// a decoder can reject an instruction naming an extension this instance
// doesn't have — the "unknown extension" forward-compatibility rule —
// without needing to understand what the opcode does.
type Opcode byte

type ExtOpcode = Opcode

const ExtOpcodeBase Opcode = 128

type Instructions []byte

// Core opcodes. The VM is a stack machine: OP_CONST pushes one constant,
// and every test and action opcode below pops its operands off that same
// stack rather than carrying them inline. Only control-flow targets and
// small enumerated ids (comparator/match-type/address-part/
// relational-operator) are encoded inline, since a decoder or disassembler
// needs them without running the program.
const (
	OP_CONST Opcode = iota
	OP_JMP
	OP_JMP_IF_FALSE
	OP_JMP_IF_TRUE
	OP_NOT

	// OP_TEST_HEADER pops keys then names (both []string) and evaluates
	// the header test, setting the VM's test-flag register. Operands:
	// comparatorID, matchTypeID, relOpID (u8 each).
	OP_TEST_HEADER
	// OP_TEST_ADDRESS pops keys then names. Operands: addressPartID,
	// comparatorID, matchTypeID, relOpID.
	OP_TEST_ADDRESS
	// OP_TEST_SIZE pops one int64. Operand: overUnder (0=over, 1=under).
	OP_TEST_SIZE

	// OP_ACTION_KEEP pops one []string (IMAP flags, possibly empty) or the
	// UseInternalFlags sentinel.
	OP_ACTION_KEEP
	OP_ACTION_DISCARD
	// OP_ACTION_REDIRECT pops one string (the forwarding address).
	OP_ACTION_REDIRECT
	OP_STOP

	// OP_TRUE and OP_FALSE load a constant into the test-flag register.
	OP_TRUE
	OP_FALSE
	// OP_TEST_EXISTS pops one []string of header names; the test is true
	// iff every named header is present.
	OP_TEST_EXISTS
)

// Extension-owned opcodes. Every one's first operand is a u8 dependency
// index (see ExtOpcodeBase's doc comment).
const (
	// OP_EXT_TEST_ENVELOPE pops keys then names. Operands: extIdx,
	// addressPartID, comparatorID, matchTypeID, relOpID.
	OP_EXT_TEST_ENVELOPE Opcode = ExtOpcodeBase + iota
	// OP_EXT_ACTION_FILEINTO pops folder then flags. Operand: extIdx.
	OP_EXT_ACTION_FILEINTO
	// OP_EXT_ACTION_REJECT pops one string (reason). Operand: extIdx.
	OP_EXT_ACTION_REJECT
	// OP_EXT_ACTION_EREJECT pops one string (reason). Operand: extIdx.
	OP_EXT_ACTION_EREJECT
	// OP_EXT_ACTION_VACATION pops one VacationLiteral constant. Operand:
	// extIdx.
	OP_EXT_ACTION_VACATION
	// OP_EXT_FLAGS pops one []string. Operands: extIdx, mode
	// (FlagsSet/FlagsAdd/FlagsRemove).
	OP_EXT_FLAGS
	// OP_EXT_TEST_HASFLAG pops one []string (flags to test for).
	// Operand: extIdx.
	OP_EXT_TEST_HASFLAG
	// OP_EXT_SET_VARIABLE pops value then name (both string). Operands:
	// extIdx, modsBitmask (variable-modifier tags, see VarMod* consts).
	OP_EXT_SET_VARIABLE
)

// Flag-modification modes for OP_EXT_FLAGS's mode operand.
const (
	FlagsSet byte = iota
	FlagsAdd
	FlagsRemove
)

// Bit flags packed into OP_EXT_SET_VARIABLE's modsBitmask operand, one per
// "set" command modifier tag (RFC 5229 §4).
const (
	VarModLower byte = 1 << iota
	VarModUpper
	VarModLowerFirst
	VarModUpperFirst
	VarModQuoteWildcard
	VarModLength
)

// OpCodeDefinition describes one opcode's human-readable name and the
// byte width of each of its inline operands.
type OpCodeDefinition struct {
	Name          string
	OperandWidths []int
}

var definitions = map[Opcode]*OpCodeDefinition{
	OP_CONST:           {"OP_CONST", []int{2}},
	OP_JMP:             {"OP_JMP", []int{2}},
	OP_JMP_IF_FALSE:    {"OP_JMP_IF_FALSE", []int{2}},
	OP_JMP_IF_TRUE:     {"OP_JMP_IF_TRUE", []int{2}},
	OP_NOT:             {"OP_NOT", nil},
	OP_TEST_HEADER:     {"OP_TEST_HEADER", []int{1, 1, 1}},
	OP_TEST_ADDRESS:    {"OP_TEST_ADDRESS", []int{1, 1, 1, 1}},
	OP_TEST_SIZE:       {"OP_TEST_SIZE", []int{1}},
	OP_ACTION_KEEP:     {"OP_ACTION_KEEP", nil},
	OP_ACTION_DISCARD:  {"OP_ACTION_DISCARD", nil},
	OP_ACTION_REDIRECT: {"OP_ACTION_REDIRECT", nil},
	OP_STOP:            {"OP_STOP", nil},
	OP_TRUE:            {"OP_TRUE", nil},
	OP_FALSE:           {"OP_FALSE", nil},
	OP_TEST_EXISTS:     {"OP_TEST_EXISTS", nil},

	OP_EXT_TEST_ENVELOPE:   {"OP_EXT_TEST_ENVELOPE", []int{1, 1, 1, 1, 1}},
	OP_EXT_ACTION_FILEINTO: {"OP_EXT_ACTION_FILEINTO", []int{1}},
	OP_EXT_ACTION_REJECT:   {"OP_EXT_ACTION_REJECT", []int{1}},
	OP_EXT_ACTION_EREJECT:  {"OP_EXT_ACTION_EREJECT", []int{1}},
	OP_EXT_ACTION_VACATION: {"OP_EXT_ACTION_VACATION", []int{1}},
	OP_EXT_FLAGS:           {"OP_EXT_FLAGS", []int{1, 1}},
	OP_EXT_TEST_HASFLAG:    {"OP_EXT_TEST_HASFLAG", []int{1}},
	OP_EXT_SET_VARIABLE:    {"OP_EXT_SET_VARIABLE", []int{1, 1}},
}

// Get looks up op's definition.
func Get(op Opcode) (*OpCodeDefinition, error) {
	def, ok := definitions[op]
	if !ok {
		return nil, fmt.Errorf("opcode: '%d' undefined", op)
	}
	return def, nil
}

// MakeInstruction encodes op and its operands (each truncated to its
// defined width, big-endian) into one instruction.
func MakeInstruction(op Opcode, operands ...int) []byte {
	def, err := Get(op)
	if err != nil {
		return []byte{}
	}

	byteOffset := 1
	instructionLength := byteOffset
	for _, w := range def.OperandWidths {
		instructionLength += w
	}
	instruction := make([]byte, instructionLength)
	instruction[0] = byte(op)

	for i, o := range operands {
		if i >= len(def.OperandWidths) {
			break
		}
		width := def.OperandWidths[i]
		switch width {
		case 1:
			instruction[byteOffset] = byte(o)
		case 2:
			binary.BigEndian.PutUint16(instruction[byteOffset:], uint16(o))
		}
		byteOffset += width
	}
	return instruction
}

// ReadUint16 decodes a big-endian uint16 operand at offset within ins.
func ReadUint16(ins Instructions, offset int) uint16 {
	return binary.BigEndian.Uint16(ins[offset:])
}

// Width returns the total encoded length (opcode byte plus every operand)
// of op's instruction.
func Width(op Opcode) (int, error) {
	def, err := Get(op)
	if err != nil {
		return 0, err
	}
	w := 1
	for _, width := range def.OperandWidths {
		w += width
	}
	return w, nil
}

// Comparator/match-type/address-part/relational-operator ids packed into
// test instructions. The name<->id mapping is private to a compile unit —
// binaries must stay portable across instances whose registries were
// populated in a different order — so these are plain, hand-assigned small
// integers rather than extension.Registry ids.
const (
	ComparatorOctet byte = iota
	ComparatorASCIICasemap
	ComparatorASCIINumeric
)

const (
	MatchTypeIs byte = iota
	MatchTypeContains
	MatchTypeMatches
	MatchTypeRegex
	MatchTypeCount
	MatchTypeValue
)

const (
	AddressPartAll byte = iota
	AddressPartLocalpart
	AddressPartDomain
)

const (
	RelOpNone byte = iota
	RelOpGT
	RelOpGE
	RelOpLT
	RelOpLE
	RelOpEQ
	RelOpNE
)

// ComparatorName, MatchTypeName, AddressPartName, and RelOpName decode the
// small integer ids above back into the string names the match package
// operates on.

func ComparatorName(id byte) string {
	switch id {
	case ComparatorOctet:
		return "i;octet"
	case ComparatorASCIINumeric:
		return "i;ascii-numeric"
	default:
		return "i;ascii-casemap"
	}
}

func MatchTypeName(id byte) string {
	switch id {
	case MatchTypeContains:
		return "contains"
	case MatchTypeMatches:
		return "matches"
	case MatchTypeRegex:
		return "regex"
	case MatchTypeCount:
		return "count"
	case MatchTypeValue:
		return "value"
	default:
		return "is"
	}
}

func AddressPartName(id byte) string {
	switch id {
	case AddressPartLocalpart:
		return "localpart"
	case AddressPartDomain:
		return "domain"
	default:
		return "all"
	}
}

func RelOpName(id byte) string {
	switch id {
	case RelOpGT:
		return "gt"
	case RelOpGE:
		return "ge"
	case RelOpLT:
		return "lt"
	case RelOpLE:
		return "le"
	case RelOpEQ:
		return "eq"
	case RelOpNE:
		return "ne"
	default:
		return ""
	}
}

// UseInternalFlags is the constants-pool sentinel pushed in place of an
// explicit flags list when a "keep"/"fileinto" command carries no ":flags"
// tag: RFC 5232 says such a command uses the imap4flags internal variable
// instead of an empty list, so the two cases must stay distinguishable
// after the argument has been compiled away.
type UseInternalFlags struct{}

// VacationLiteral is the constants-pool representation of a "vacation"
// command's argument set, built once at compile time so the interpreter
// need only pop a single constant rather than reassembling tag arguments
// at run time.
type VacationLiteral struct {
	Reason    string
	Days      int64
	Subject   string
	From      string
	Addresses []string
	MIME      bool
	Handle    string
}
