// Package binary implements the persisted bytecode format: a varint-framed
// container around one compiler.Bytecode, with a header (magic, format
// version, generation time, source fingerprint, checksum), an
// extension-dependency table, and a block table. Fixed-width fields keep
// the compiler's big-endian convention; everything variable-length is a
// varint.
package binary

import (
	"bytes"
	wire "encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/sievecore/sievecore/compiler"
	"github.com/sievecore/sievecore/sieveerr"
)

// Magic identifies a sievecore bytecode file.
var Magic = [4]byte{'S', 'V', 'B', 'C'}

// FormatVersion is this package's own wire-format version. It changes only
// when the container layout itself changes, independent of how many
// extensions a given binary references.
const FormatVersion = 1

// blockInstructions and blockConstants are the only two block ids this
// package currently writes; the block table is still a table (not just two
// fixed fields) so a future block (e.g. a source-map) can be added without
// bumping FormatVersion.
const (
	blockInstructions = 0
	blockConstants    = 1
)

// Meta carries the header fields a caller supplies at save time and gets
// back at load time. SourceFingerprint is opaque to this package — callers
// typically pass a hash of the source script text, or an mtime stamp.
type Meta struct {
	GeneratedAtUnix   int64
	SourceFingerprint string
}

// Encode serialises bc and meta into this package's container format.
func Encode(bc *compiler.Bytecode, meta Meta) ([]byte, error) {
	var body bytes.Buffer

	putVarint(&body, uint64(meta.GeneratedAtUnix))
	putString(&body, meta.SourceFingerprint)

	putVarint(&body, uint64(len(bc.Dependencies)))
	for _, name := range bc.Dependencies {
		putString(&body, name)
	}

	constantsBlock, err := encodeConstants(bc.ConstantsPool)
	if err != nil {
		return nil, err
	}
	blocks := []block{
		{id: blockInstructions, data: bc.Instructions},
		{id: blockConstants, data: constantsBlock},
	}
	putVarint(&body, uint64(len(blocks)))
	for _, b := range blocks {
		putVarint(&body, uint64(b.id))
		putVarint(&body, uint64(len(b.data)))
		body.Write(b.data)
	}

	checksum := crc32.ChecksumIEEE(body.Bytes())

	var out bytes.Buffer
	out.Write(Magic[:])
	putVarint(&out, FormatVersion)
	var checksumBuf [4]byte
	wire.BigEndian.PutUint32(checksumBuf[:], checksum)
	out.Write(checksumBuf[:])
	out.Write(body.Bytes())

	return out.Bytes(), nil
}

type block struct {
	id   int
	data []byte
}

// Decode parses data produced by Encode back into a compiler.Bytecode and
// its Meta. It does not check the dependency table against any particular
// process's enabled extensions — call CheckDependencies for that.
func Decode(data []byte) (*compiler.Bytecode, Meta, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != Magic {
		return nil, Meta{}, &sieveerr.BinCorruptError{Message: "bad magic"}
	}

	version, err := getVarint(r)
	if err != nil {
		return nil, Meta{}, &sieveerr.BinCorruptError{Message: "truncated format version"}
	}
	if version != FormatVersion {
		return nil, Meta{}, &sieveerr.BinCorruptError{Message: fmt.Sprintf("unsupported format version %d", version)}
	}

	var checksumBuf [4]byte
	if _, err := io.ReadFull(r, checksumBuf[:]); err != nil {
		return nil, Meta{}, &sieveerr.BinCorruptError{Message: "truncated checksum"}
	}
	wantChecksum := wire.BigEndian.Uint32(checksumBuf[:])

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, Meta{}, &sieveerr.BinCorruptError{Message: "truncated body"}
	}
	if crc32.ChecksumIEEE(rest) != wantChecksum {
		return nil, Meta{}, &sieveerr.BinCorruptError{Message: "checksum mismatch"}
	}

	body := bytes.NewReader(rest)

	generatedAt, err := getVarint(body)
	if err != nil {
		return nil, Meta{}, &sieveerr.BinCorruptError{Message: "truncated generation time"}
	}
	fingerprint, err := getString(body)
	if err != nil {
		return nil, Meta{}, &sieveerr.BinCorruptError{Message: "truncated source fingerprint"}
	}

	depCount, err := getVarint(body)
	if err != nil {
		return nil, Meta{}, &sieveerr.BinCorruptError{Message: "truncated dependency count"}
	}
	deps := make([]string, 0, depCount)
	for i := uint64(0); i < depCount; i++ {
		name, err := getString(body)
		if err != nil {
			return nil, Meta{}, &sieveerr.BinCorruptError{Message: "truncated dependency name"}
		}
		deps = append(deps, name)
	}

	blockCount, err := getVarint(body)
	if err != nil {
		return nil, Meta{}, &sieveerr.BinCorruptError{Message: "truncated block count"}
	}
	var instructions []byte
	var constantsRaw []byte
	for i := uint64(0); i < blockCount; i++ {
		id, err := getVarint(body)
		if err != nil {
			return nil, Meta{}, &sieveerr.BinCorruptError{Message: "truncated block id"}
		}
		length, err := getVarint(body)
		if err != nil {
			return nil, Meta{}, &sieveerr.BinCorruptError{Message: "truncated block length"}
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(body, data); err != nil {
			return nil, Meta{}, &sieveerr.BinCorruptError{Message: "truncated block data"}
		}
		switch id {
		case blockInstructions:
			instructions = data
		case blockConstants:
			constantsRaw = data
		}
	}

	constants, err := decodeConstants(constantsRaw)
	if err != nil {
		return nil, Meta{}, err
	}

	bc := &compiler.Bytecode{
		Instructions: instructions,
		ConstantsPool: constants,
		Dependencies:  deps,
	}
	return bc, Meta{GeneratedAtUnix: int64(generatedAt), SourceFingerprint: fingerprint}, nil
}

// CheckDependencies implements the forward-compatibility rule: a
// binary decodes successfully iff its extension-dependency set is a subset
// of enabled (the current process's enabled, non-hidden extension names).
// It reports the first unresolvable name via BinCorruptError.
func CheckDependencies(bc *compiler.Bytecode, enabled map[string]bool) error {
	for _, name := range bc.Dependencies {
		if !enabled[name] {
			return &sieveerr.BinCorruptError{Message: fmt.Sprintf("unknown extension %q", name)}
		}
	}
	return nil
}

// Save atomically writes the encoded form of bc to path (write to a temp
// file in the same directory, then rename), with the given file mode.
func Save(path string, bc *compiler.Bytecode, meta Meta, mode os.FileMode) error {
	data, err := Encode(bc, meta)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sievecore-bin-*")
	if err != nil {
		return fmt.Errorf("binary: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("binary: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("binary: closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("binary: setting mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("binary: renaming into place: %w", err)
	}
	return nil
}

// DefaultSaveMode is the default save-mode.
const DefaultSaveMode = 0600

// Load reads and decodes a binary previously written by Save.
func Load(path string) (*compiler.Bytecode, Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Meta{}, &sieveerr.NotFoundError{Name: path}
	}
	return Decode(data)
}

func putVarint(buf *bytes.Buffer, v uint64) {
	var tmp [wire.MaxVarintLen64]byte
	n := wire.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func getVarint(r *bytes.Reader) (uint64, error) {
	return wire.ReadUvarint(r)
}

func corrupt(message string) error {
	return &sieveerr.BinCorruptError{Message: message}
}

func putString(buf *bytes.Buffer, s string) {
	putVarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func getString(r *bytes.Reader) (string, error) {
	length, err := getVarint(r)
	if err != nil {
		return "", err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}
