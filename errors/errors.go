package errors

import (
	"fmt"
)

// Kind categorizes a parse or validation fault.
type Kind string

const (
	KindUnexpectedEOF     Kind = "unexpected_eof"
	KindInvalidHeader     Kind = "invalid_header"
	KindInvalidLeb128     Kind = "invalid_leb128"
	KindInvalidUTF8       Kind = "invalid_utf8"
	KindInvalidType       Kind = "invalid_type"
	KindUnknownOpcode     Kind = "unknown_opcode"
	KindDuplicateSection  Kind = "duplicate_section"
	KindSectionOutOfOrder Kind = "section_out_of_order"
	KindBadSectionLength  Kind = "bad_section_length"
	KindBadCodeSection    Kind = "bad_code_section"
	KindIndexOutOfBounds  Kind = "index_out_of_bounds"
	KindTypeMismatch      Kind = "type_mismatch"
	KindStackUnderflow    Kind = "stack_underflow"
	KindInvalidLimits     Kind = "invalid_limits"
	KindInvalidAlignment  Kind = "invalid_alignment"
	KindLimitExceeded     Kind = "limit_exceeded"
	KindIllegalConstExpr  Kind = "illegal_constant_expr"
	KindUnsupported       Kind = "unsupported_feature"
	KindStringTooLong     Kind = "string_too_long"
)

// Error is the structured error type returned by the reader, parser, and
// validator. Offset always points at the byte position where the fault was
// detected.
type Error struct {
	Cause   error
	Kind    Kind
	Detail  string
	Context string // section or operator name, when known
	Offset  int
}

func (e *Error) Error() string {
	if e.Context != "" {
		if e.Detail != "" {
			return fmt.Sprintf("%s at offset %d (%s): %s", e.Kind, e.Offset, e.Context, e.Detail)
		}
		return fmt.Sprintf("%s at offset %d (%s)", e.Kind, e.Offset, e.Context)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s at offset %d: %s", e.Kind, e.Offset, e.Detail)
	}
	return fmt.Sprintf("%s at offset %d", e.Kind, e.Offset)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Builder provides fluent construction of an *Error.
type Builder struct {
	err Error
}

// New starts building an error of the given kind.
func New(kind Kind) *Builder {
	return &Builder{err: Error{Kind: kind}}
}

// At sets the byte offset where the fault was detected.
func (b *Builder) At(offset int) *Builder {
	b.err.Offset = offset
	return b
}

// In sets the section or operator name for context.
func (b *Builder) In(context string) *Builder {
	b.err.Context = context
	return b
}

// Detail sets the human-readable message.
func (b *Builder) Detail(format string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(format, args...)
	} else {
		b.err.Detail = format
	}
	return b
}

// Cause sets the underlying error.
func (b *Builder) Cause(cause error) *Builder {
	b.err.Cause = cause
	return b
}

// Build returns the constructed *Error.
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the faults raised throughout the reader,
// parser, and validator.

// UnexpectedEOF reports a read that would run past the end of the input.
func UnexpectedEOF(offset int) *Error {
	return New(KindUnexpectedEOF).At(offset).Detail("unexpected end of input").Build()
}

// InvalidHeader reports a bad magic number or version.
func InvalidHeader(offset int, detail string) *Error {
	return New(KindInvalidHeader).At(offset).Detail("%s", detail).Build()
}

// InvalidLEB128 reports an overlong or overflowing LEB128 encoding.
func InvalidLEB128(offset int, detail string) *Error {
	return New(KindInvalidLeb128).At(offset).Detail("%s", detail).Build()
}

// InvalidUTF8 reports a name or string field that is not valid UTF-8.
func InvalidUTF8(offset int) *Error {
	return New(KindInvalidUTF8).At(offset).Detail("invalid UTF-8 sequence").Build()
}

// InvalidType reports an unrecognized value-type or block-type byte.
func InvalidType(offset int, code int64) *Error {
	return New(KindInvalidType).At(offset).Detail("unrecognized type code %d", code).Build()
}

// UnknownOpcode reports a byte that does not name a known instruction.
func UnknownOpcode(offset int, opcode byte) *Error {
	return New(KindUnknownOpcode).At(offset).Detail("unknown opcode 0x%02x", opcode).Build()
}

// DuplicateSection reports a non-custom section ID seen more than once.
func DuplicateSection(offset int, section string) *Error {
	return New(KindDuplicateSection).At(offset).In(section).Detail("duplicate section").Build()
}

// SectionOutOfOrder reports a non-custom section appearing before an earlier one in canonical order.
func SectionOutOfOrder(offset int, section string) *Error {
	return New(KindSectionOutOfOrder).At(offset).In(section).Detail("section out of order").Build()
}

// BadSectionLength reports a declared section length inconsistent with the bytes actually read.
func BadSectionLength(offset int, section string, declared, actual int) *Error {
	return New(KindBadSectionLength).At(offset).In(section).
		Detail("declared length %d but read %d bytes", declared, actual).Build()
}

// BadCodeSection reports a function body whose operator stream did not end exactly at its declared length.
func BadCodeSection(offset int, detail string) *Error {
	return New(KindBadCodeSection).At(offset).In("code").Detail("%s", detail).Build()
}

// IndexOutOfBounds reports an index space reference beyond the space's current size.
func IndexOutOfBounds(offset int, space string, index, size int) *Error {
	return New(KindIndexOutOfBounds).At(offset).In(space).
		Detail("index %d out of bounds (size %d)", index, size).Build()
}

// TypeMismatch reports an operand or result type that does not match what was expected.
func TypeMismatch(offset int, op string, detail string) *Error {
	return New(KindTypeMismatch).At(offset).In(op).Detail("%s", detail).Build()
}

// StackUnderflow reports an operator popping below the current frame's entry height.
func StackUnderflow(offset int, op string) *Error {
	return New(KindStackUnderflow).At(offset).In(op).Detail("value stack underflow").Build()
}

// InvalidLimits reports a resizable-limits pair with max < initial.
func InvalidLimits(offset int, min, max uint64) *Error {
	return New(KindInvalidLimits).At(offset).Detail("max %d is less than min %d", max, min).Build()
}

// InvalidAlignment reports a memory-immediate alignment exponent exceeding the instruction's natural alignment.
func InvalidAlignment(offset int, op string, align, maxAlign uint32) *Error {
	return New(KindInvalidAlignment).At(offset).In(op).
		Detail("alignment 2^%d exceeds natural alignment 2^%d", align, maxAlign).Build()
}

// LimitExceeded reports a declared count or size breaching a hard cap.
func LimitExceeded(offset int, what string, got, max int) *Error {
	return New(KindLimitExceeded).At(offset).Detail("%s %d exceeds limit %d", what, got, max).Build()
}

// IllegalConstantExpr reports an operator not permitted in constant-expression mode.
func IllegalConstantExpr(offset int, op string) *Error {
	return New(KindIllegalConstExpr).At(offset).In(op).Detail("not allowed in a constant expression").Build()
}

// UnsupportedFeature reports an opcode or encoding gated by a disabled feature flag.
func UnsupportedFeature(offset int, feature string) *Error {
	return New(KindUnsupported).At(offset).Detail("requires feature %q", feature).Build()
}

// StringTooLong reports a name/string field exceeding the configured limit.
func StringTooLong(offset int, length, max int) *Error {
	return New(KindStringTooLong).At(offset).Detail("length %d exceeds limit %d", length, max).Build()
}
