package binary

import (
	"bytes"
	wire "encoding/binary"
	"fmt"

	"github.com/sievecore/sievecore/compiler"
)

// Constant-pool entry tags. Each compiler.Bytecode.ConstantsPool element is
// one of a small closed set of Go types (see compiler/code.go's
// documentation of what OP_CONST may push), so the pool is encoded as a
// tag byte plus a type-specific payload rather than a general-purpose
// value encoding.
const (
	constString         = 0
	constInt64          = 1
	constStringList     = 2
	constVacation       = 3
	constUseInternalFlg = 4
)

func encodeConstants(pool []any) ([]byte, error) {
	var buf bytes.Buffer
	putVarint(&buf, uint64(len(pool)))
	for _, v := range pool {
		if err := encodeConstant(&buf, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeConstant(buf *bytes.Buffer, v any) error {
	switch value := v.(type) {
	case string:
		buf.WriteByte(constString)
		putString(buf, value)
	case int64:
		buf.WriteByte(constInt64)
		var tmp [8]byte
		wire.BigEndian.PutUint64(tmp[:], uint64(value))
		buf.Write(tmp[:])
	case []string:
		buf.WriteByte(constStringList)
		putVarint(buf, uint64(len(value)))
		for _, s := range value {
			putString(buf, s)
		}
	case compiler.VacationLiteral:
		buf.WriteByte(constVacation)
		putString(buf, value.Reason)
		var tmp [8]byte
		wire.BigEndian.PutUint64(tmp[:], uint64(value.Days))
		buf.Write(tmp[:])
		putString(buf, value.Subject)
		putString(buf, value.From)
		putVarint(buf, uint64(len(value.Addresses)))
		for _, a := range value.Addresses {
			putString(buf, a)
		}
		if value.MIME {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		putString(buf, value.Handle)
	case compiler.UseInternalFlags:
		buf.WriteByte(constUseInternalFlg)
	default:
		return fmt.Errorf("binary: constant pool entry of unsupported type %T", v)
	}
	return nil
}

func decodeConstants(data []byte) ([]any, error) {
	r := bytes.NewReader(data)
	count, err := getVarint(r)
	if err != nil {
		return nil, corrupt("truncated constant pool count")
	}
	out := make([]any, 0, count)
	for i := uint64(0); i < count; i++ {
		v, err := decodeConstant(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeConstant(r *bytes.Reader) (any, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, corrupt("truncated constant tag")
	}
	switch tag {
	case constString:
		s, err := getString(r)
		if err != nil {
			return nil, corrupt("truncated string constant")
		}
		return s, nil
	case constInt64:
		var tmp [8]byte
		if _, err := r.Read(tmp[:]); err != nil {
			return nil, corrupt("truncated int64 constant")
		}
		return int64(wire.BigEndian.Uint64(tmp[:])), nil
	case constStringList:
		n, err := getVarint(r)
		if err != nil {
			return nil, corrupt("truncated string-list length")
		}
		list := make([]string, 0, n)
		for i := uint64(0); i < n; i++ {
			s, err := getString(r)
			if err != nil {
				return nil, corrupt("truncated string-list element")
			}
			list = append(list, s)
		}
		return list, nil
	case constVacation:
		reason, err := getString(r)
		if err != nil {
			return nil, corrupt("truncated vacation reason")
		}
		var tmp [8]byte
		if _, err := r.Read(tmp[:]); err != nil {
			return nil, corrupt("truncated vacation days")
		}
		days := int64(wire.BigEndian.Uint64(tmp[:]))
		subject, err := getString(r)
		if err != nil {
			return nil, corrupt("truncated vacation subject")
		}
		from, err := getString(r)
		if err != nil {
			return nil, corrupt("truncated vacation from")
		}
		n, err := getVarint(r)
		if err != nil {
			return nil, corrupt("truncated vacation address count")
		}
		addrs := make([]string, 0, n)
		for i := uint64(0); i < n; i++ {
			a, err := getString(r)
			if err != nil {
				return nil, corrupt("truncated vacation address")
			}
			addrs = append(addrs, a)
		}
		mimeByte, err := r.ReadByte()
		if err != nil {
			return nil, corrupt("truncated vacation mime flag")
		}
		handle, err := getString(r)
		if err != nil {
			return nil, corrupt("truncated vacation handle")
		}
		return compiler.VacationLiteral{
			Reason:    reason,
			Days:      days,
			Subject:   subject,
			From:      from,
			Addresses: addrs,
			MIME:      mimeByte != 0,
			Handle:    handle,
		}, nil
	case constUseInternalFlg:
		return compiler.UseInternalFlags{}, nil
	default:
		return nil, corrupt(fmt.Sprintf("unknown constant tag %d", tag))
	}
}
