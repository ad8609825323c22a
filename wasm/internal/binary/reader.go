// Package binary implements the bounds-checked, zero-copy byte cursor that
// every higher-level WebAssembly decoder in this module is built on.
package binary

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	werrors "github.com/wasmforge/wasmparser/errors"
)

// Reader owns a borrowed byte slice and a position cursor. It never copies
// the input; ReadBytes and ReadName return sub-slices (or, for ReadName,
// a string built from one) of the original buffer.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential, bounds-checked decoding.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Pos returns the current byte offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the total length of the input.
func (r *Reader) Len() int { return len(r.data) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// AtEnd reports whether the cursor has reached the end of the input.
func (r *Reader) AtEnd() bool { return r.pos >= len(r.data) }

// Data returns the full input slice, unaffected by the cursor.
func (r *Reader) Data() []byte { return r.data }

// SeekTo repositions the cursor. Callers must only pass offsets they have
// derived from this reader's own Pos/length bookkeeping (section skipping).
func (r *Reader) SeekTo(pos int) { r.pos = pos }

// ReadByte reads a single byte and advances the cursor.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, werrors.UnexpectedEOF(r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without advancing the cursor.
func (r *Reader) PeekByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, werrors.UnexpectedEOF(r.pos)
	}
	return r.data[r.pos], nil
}

// ReadBytes returns the next n bytes as a sub-slice of the input, advancing
// the cursor. The returned slice aliases the input; callers must not
// mutate it.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, werrors.UnexpectedEOF(r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU32LE reads a fixed-width little-endian uint32 (used only for the
// module header's version field).
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadVarU32 reads an unsigned LEB128 value, at most 5 bytes, failing
// InvalidLeb128 on an encoding that would overflow 32 bits or that sets the
// continuation bit on the last permitted byte.
func (r *Reader) ReadVarU32() (uint32, error) {
	start := r.pos
	var result uint32
	for i := 0; i < 5; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if i == 4 {
			if b&0x80 != 0 || b&0xF0 != 0 {
				return 0, werrors.InvalidLEB128(start, "overlong u32 LEB128 encoding")
			}
			result |= uint32(b&0x0F) << 28
			return result, nil
		}
		result |= uint32(b&0x7F) << uint(7*i)
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return 0, werrors.InvalidLEB128(start, "u32 LEB128 too long")
}

// ReadVarU64 reads an unsigned LEB128 value, at most 10 bytes.
func (r *Reader) ReadVarU64() (uint64, error) {
	start := r.pos
	var result uint64
	for i := 0; i < 10; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if i == 9 {
			if b&0x80 != 0 || b&0x7E != 0 {
				return 0, werrors.InvalidLEB128(start, "overlong u64 LEB128 encoding")
			}
			result |= uint64(b&0x01) << 63
			return result, nil
		}
		result |= uint64(b&0x7F) << uint(7*i)
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return 0, werrors.InvalidLEB128(start, "u64 LEB128 too long")
}

// ReadVarS32 reads a signed, sign-extended LEB128 value, at most 5 bytes.
func (r *Reader) ReadVarS32() (int32, error) {
	start := r.pos
	var result int32
	var shift uint
	for i := 0; i < 5; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if i == 4 {
			masked := b & 0x78
			if b&0x80 != 0 || (masked != 0x00 && masked != 0x78) {
				return 0, werrors.InvalidLEB128(start, "overlong s32 LEB128 encoding")
			}
			result |= int32(b&0x0F) << 28
			return result, nil
		}
		result |= int32(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if b&0x40 != 0 {
				result |= ^int32(0) << shift
			}
			return result, nil
		}
	}
	return 0, werrors.InvalidLEB128(start, "s32 LEB128 too long")
}

// ReadVarS64 reads a signed, sign-extended LEB128 value, at most 10 bytes.
func (r *Reader) ReadVarS64() (int64, error) {
	start := r.pos
	var result int64
	var shift uint
	for i := 0; i < 10; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if i == 9 {
			masked := b & 0x7F
			if b&0x80 != 0 || (masked != 0x00 && masked != 0x7F) {
				return 0, werrors.InvalidLEB128(start, "overlong s64 LEB128 encoding")
			}
			result |= int64(b&0x01) << 63
			return result, nil
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if b&0x40 != 0 {
				result |= ^int64(0) << shift
			}
			return result, nil
		}
	}
	return 0, werrors.InvalidLEB128(start, "s64 LEB128 too long")
}

// ReadVarS33 reads a signed LEB128 value in the 33-bit range used by block
// types and GC heap types (type indices can exceed 32 bits of magnitude
// only in pathological inputs, so s64 decoding with range validation is
// sufficient).
func (r *Reader) ReadVarS33() (int64, error) {
	start := r.pos
	v, err := r.ReadVarS64()
	if err != nil {
		return 0, err
	}
	const min33 = -(int64(1) << 32)
	const max33 = (int64(1) << 32) - 1
	if v < min33 || v > max33 {
		return 0, werrors.InvalidLEB128(start, "value out of s33 range")
	}
	return v, nil
}

// ReadF32 reads a little-endian IEEE-754 single-precision float.
func (r *Reader) ReadF32() (float32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// ReadF64 reads a little-endian IEEE-754 double-precision float.
func (r *Reader) ReadF64() (float64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadName reads a var_u32-length-prefixed UTF-8 string, failing
// InvalidUTF8 if the bytes are not valid UTF-8 and StringTooLong if the
// length exceeds maxLen (pass 0 to skip the length check).
func (r *Reader) ReadName(maxLen int) (string, error) {
	start := r.pos
	length, err := r.ReadVarU32()
	if err != nil {
		return "", err
	}
	if maxLen > 0 && int(length) > maxLen {
		return "", werrors.StringTooLong(start, int(length), maxLen)
	}
	b, err := r.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", werrors.InvalidUTF8(start)
	}
	return string(b), nil
}

// ReadMemArg reads a memory-immediate: a var_u32 alignment exponent and a
// var_u32 offset. The multi-memory proposal additionally encodes a memory
// index when the alignment's bit 6 (0x40) is set; this reader clears that
// bit from align and returns the memory index (0 when the bit is absent),
// leaving the caller to decide whether a non-zero index is legal.
func (r *Reader) ReadMemArg() (align uint32, offset uint32, memIdx uint32, err error) {
	align, err = r.ReadVarU32()
	if err != nil {
		return 0, 0, 0, err
	}
	const multiMemFlag = 0x40
	if align&multiMemFlag != 0 {
		align &^= multiMemFlag
		memIdx, err = r.ReadVarU32()
		if err != nil {
			return 0, 0, 0, err
		}
	}
	offset, err = r.ReadVarU32()
	if err != nil {
		return 0, 0, 0, err
	}
	return align, offset, memIdx, nil
}
