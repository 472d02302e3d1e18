// Package bytecode loads a moco program from its two supported on-disk
// formats — the raw continuation-encoded wire format and Intel HEX — into
// the flat byte buffer vm.Interpreter.Run expects.
package bytecode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"
	"github.com/sigurn/crc16"
)

// Format names a program's on-disk encoding.
type Format int

const (
	Raw Format = iota
	IntelHex
)

// ChecksumError reports a CRC-16/CCITT mismatch over a program's bytes. It
// is a transport-integrity concern, distinct from the four vm.ErrorKinds.
type ChecksumError struct {
	Want, Got uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("bytecode: checksum mismatch: want %#04x, got %#04x", e.Want, e.Got)
}

var crc16Table = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Load reads r under the given format and returns the flat program bytes
// ready for vm.Interpreter.Run. If verifyChecksum is set, the last two
// bytes of the decoded stream are treated as a big-endian CRC-16/CCITT
// over the rest and checked before being stripped off.
func Load(r io.Reader, format Format, verifyChecksum bool) ([]byte, error) {
	var program []byte
	var err error

	switch format {
	case Raw:
		program, err = io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("bytecode: reading raw program: %w", err)
		}
	case IntelHex:
		program, err = decodeIntelHex(r)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("bytecode: unknown format %d", format)
	}

	if !verifyChecksum {
		return program, nil
	}
	return stripAndVerifyChecksum(program)
}

// decodeIntelHex parses r as an Intel HEX file and flattens its records
// into one contiguous byte buffer, address gaps filled with zero.
func decodeIntelHex(r io.Reader) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("bytecode: parsing intel hex: %w", err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	base := segments[0].Address
	for _, seg := range segments {
		if gap := int(seg.Address-base) - buf.Len(); gap > 0 {
			buf.Write(make([]byte, gap))
		}
		buf.Write(seg.Data)
	}
	return buf.Bytes(), nil
}

func stripAndVerifyChecksum(program []byte) ([]byte, error) {
	if len(program) < 2 {
		return nil, fmt.Errorf("bytecode: program too short to carry a checksum trailer")
	}
	body := program[:len(program)-2]
	want := uint16(program[len(program)-2])<<8 | uint16(program[len(program)-1])
	got := crc16.Checksum(body, crc16Table)
	if want != got {
		return nil, &ChecksumError{Want: want, Got: got}
	}
	return body, nil
}

// AppendChecksum appends a big-endian CRC-16/CCITT trailer over program,
// the counterpart encoding step to stripAndVerifyChecksum.
func AppendChecksum(program []byte) []byte {
	sum := crc16.Checksum(program, crc16Table)
	return append(program, byte(sum>>8), byte(sum))
}
