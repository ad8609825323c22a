package errors

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Kind:    KindTypeMismatch,
				Offset:  17,
				Context: "i32.add",
				Detail:  "expected i32, got f64",
			},
			contains: []string{"type_mismatch", "offset 17", "i32.add", "expected i32, got f64"},
		},
		{
			name: "minimal error",
			err: &Error{
				Kind:   KindIndexOutOfBounds,
				Offset: 4,
			},
			contains: []string{"index_out_of_bounds", "offset 4"},
		},
		{
			name: "error with cause",
			err: &Error{
				Kind:   KindInvalidLeb128,
				Offset: 9,
				Detail: "overlong encoding",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"invalid_leb128", "offset 9", "overlong encoding"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !containsSubstring(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Kind:  KindBadCodeSection,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{Kind: KindTypeMismatch, Offset: 3}

	if !err.Is(&Error{Kind: KindTypeMismatch}) {
		t.Error("Is should match same kind regardless of offset")
	}
	if err.Is(&Error{Kind: KindStackUnderflow}) {
		t.Error("Is should not match a different kind")
	}

	target := &Error{Kind: KindTypeMismatch}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(KindTypeMismatch).
		At(42).
		In("global.set").
		Cause(cause).
		Detail("expected %s, got %s", "i32", "i64").
		Build()

	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if err.Offset != 42 {
		t.Errorf("Offset = %v, want 42", err.Offset)
	}
	if err.Context != "global.set" {
		t.Errorf("Context = %v, want global.set", err.Context)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected i32, got i64" {
		t.Errorf("Detail = %v, want 'expected i32, got i64'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("UnexpectedEOF", func(t *testing.T) {
		err := UnexpectedEOF(12)
		if err.Kind != KindUnexpectedEOF || err.Offset != 12 {
			t.Errorf("got Kind=%v Offset=%v", err.Kind, err.Offset)
		}
	})

	t.Run("InvalidHeader", func(t *testing.T) {
		err := InvalidHeader(0, "bad magic")
		if err.Kind != KindInvalidHeader {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidHeader)
		}
	})

	t.Run("InvalidLEB128", func(t *testing.T) {
		err := InvalidLEB128(5, "overlong u32 encoding")
		if err.Kind != KindInvalidLeb128 {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidLeb128)
		}
	})

	t.Run("UnknownOpcode", func(t *testing.T) {
		err := UnknownOpcode(30, 0x06)
		if err.Kind != KindUnknownOpcode {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnknownOpcode)
		}
		if !containsSubstring(err.Detail, "0x06") {
			t.Errorf("Detail = %v, should contain opcode", err.Detail)
		}
	})

	t.Run("BadSectionLength", func(t *testing.T) {
		err := BadSectionLength(8, "type", 10, 4)
		if err.Kind != KindBadSectionLength {
			t.Errorf("Kind = %v, want %v", err.Kind, KindBadSectionLength)
		}
		if !containsSubstring(err.Detail, "10") || !containsSubstring(err.Detail, "4") {
			t.Errorf("Detail = %v, should mention both lengths", err.Detail)
		}
	})

	t.Run("IndexOutOfBounds", func(t *testing.T) {
		err := IndexOutOfBounds(11, "function", 5, 3)
		if err.Kind != KindIndexOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindIndexOutOfBounds)
		}
	})

	t.Run("StackUnderflow", func(t *testing.T) {
		err := StackUnderflow(44, "i32.add")
		if err.Kind != KindStackUnderflow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindStackUnderflow)
		}
	})

	t.Run("InvalidLimits", func(t *testing.T) {
		err := InvalidLimits(6, 10, 5)
		if err.Kind != KindInvalidLimits {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidLimits)
		}
	})

	t.Run("LimitExceeded", func(t *testing.T) {
		err := LimitExceeded(2, "types", 2000, 1000)
		if err.Kind != KindLimitExceeded {
			t.Errorf("Kind = %v, want %v", err.Kind, KindLimitExceeded)
		}
	})

	t.Run("IllegalConstantExpr", func(t *testing.T) {
		err := IllegalConstantExpr(19, "local.get")
		if err.Kind != KindIllegalConstExpr {
			t.Errorf("Kind = %v, want %v", err.Kind, KindIllegalConstExpr)
		}
	})

	t.Run("UnsupportedFeature", func(t *testing.T) {
		err := UnsupportedFeature(19, "simd")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})
}

func containsSubstring(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	if len(s) < len(substr) {
		return false
	}
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
