package binary

import (
	"fmt"
	"strings"

	"github.com/sievecore/sievecore/compiler"
)

// Dump renders bc as human-readable lines with absolute byte offsets.
// It never fails on a well-formed Bytecode (the
// same invariant compiler.Compile guarantees); a malformed one degrades to
// an inline "<bad opcode>" marker rather than returning an error, since a
// disassembler's job is to show what is there, not to validate it.
func Dump(bc *compiler.Bytecode) string {
	var out strings.Builder
	ins := bc.Instructions
	ip := 0
	for ip < len(ins) {
		op := compiler.Opcode(ins[ip])
		def, err := compiler.Get(op)
		if err != nil {
			fmt.Fprintf(&out, "%04d <bad opcode %d>\n", ip, op)
			ip++
			continue
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
		fmt.Fprintf(&out, "%04d %s%s\n", ip, def.Name, formatOperands(bc, op, operands))
		ip = offset
	}
	return out.String()
}

func formatOperands(bc *compiler.Bytecode, op compiler.Opcode, operands []int) string {
	if len(operands) == 0 {
		return ""
	}
	parts := make([]string, 0, len(operands))
	for _, v := range operands {
		parts = append(parts, fmt.Sprintf("%d", v))
	}
	annotation := annotate(bc, op, operands)
	if annotation == "" {
		return " " + strings.Join(parts, " ")
	}
	return " " + strings.Join(parts, " ") + "  ; " + annotation
}

// annotate adds the decoded name for operands that carry an enumerated id
// (comparator/match-type/address-part/relational-op) or an extension
// dependency index, so a dump reads "i;ascii-casemap" instead of "1".
func annotate(bc *compiler.Bytecode, op compiler.Opcode, operands []int) string {
	switch op {
	case compiler.OP_CONST:
		if operands[0] >= 0 && operands[0] < len(bc.ConstantsPool) {
			return fmt.Sprintf("%v", bc.ConstantsPool[operands[0]])
		}
	case compiler.OP_TEST_HEADER:
		return fmt.Sprintf("%s %s", compiler.ComparatorName(byte(operands[0])), compiler.MatchTypeName(byte(operands[1])))
	case compiler.OP_TEST_ADDRESS:
		return fmt.Sprintf("%s %s %s", compiler.AddressPartName(byte(operands[0])), compiler.ComparatorName(byte(operands[1])), compiler.MatchTypeName(byte(operands[2])))
	case compiler.OP_EXT_TEST_ENVELOPE:
		if operands[0] >= 0 && operands[0] < len(bc.Dependencies) {
			return fmt.Sprintf("%s %s %s %s", bc.Dependencies[operands[0]], compiler.AddressPartName(byte(operands[1])), compiler.ComparatorName(byte(operands[2])), compiler.MatchTypeName(byte(operands[3])))
		}
	case compiler.OP_TEST_SIZE:
		if operands[0] == 1 {
			return "under"
		}
		return "over"
	}
	if op >= compiler.ExtOpcodeBase && len(operands) > 0 && operands[0] >= 0 && operands[0] < len(bc.Dependencies) {
		return bc.Dependencies[operands[0]]
	}
	return ""
}
