// Package errors provides the structured error type used across the parser
// and validator.
//
// Every error is a (Kind, Offset, message) record: Kind classifies the fault,
// Offset is the byte position in the input where it was detected. Use the
// Builder for structured construction:
//
//	err := errors.New(errors.KindInvalidLeb128).
//		At(17).
//		Detail("overlong u32 encoding").
//		Build()
//
// or one of the convenience constructors for the common cases:
//
//	err := errors.UnexpectedEOF(pos)
//	err := errors.StackUnderflow(pos, "i32.add")
//
// All errors implement the standard error interface and support errors.Is.
package errors
