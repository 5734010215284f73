package errs

import (
	"errors"
	"testing"

	"github.com/GetAdriAI/idxr/internal/domain"
)

func TestClassify_MapsEachKnownErrorType(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.ErrorClass
	}{
		{"duplicate", &DuplicateIDError{IDs: []string{"a"}}, domain.ClassDuplicateID},
		{"rate limited", &RateLimitedError{Message: "slow down"}, domain.ClassTransient},
		{"transient", &TransientError{Err: errors.New("timeout")}, domain.ClassTransient},
		{"auth", &AuthFailedError{Message: "no key"}, domain.ClassAuthConfig},
		{"invalid request", &InvalidRequestError{Message: "bad shape"}, domain.ClassAuthConfig},
		{"validation", &ValidationError{Field: "title", Message: "required"}, domain.ClassValidation},
		{"data format", &DataFormatError{Message: "bad csv"}, domain.ClassDataFormat},
		{"over limit", &OverLimitError{DocumentID: "p1", OriginalTokens: 9999}, domain.ClassOverLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassify_NilErrorReturnsEmptyClass(t *testing.T) {
	if got := Classify(nil); got != "" {
		t.Errorf("expected an empty class for nil, got %q", got)
	}
}

func TestClassify_UnrecognizedErrorDefaultsToTransient(t *testing.T) {
	if got := Classify(errors.New("something unexpected")); got != domain.ClassTransient {
		t.Errorf("expected an unrecognized error to default to transient, got %q", got)
	}
}

func TestIsTransient_TrueOnlyForTransientClass(t *testing.T) {
	if !IsTransient(&TransientError{Err: errors.New("x")}) {
		t.Error("expected a TransientError to be transient")
	}
	if IsTransient(&ValidationError{Field: "x", Message: "y"}) {
		t.Error("expected a ValidationError not to be transient")
	}
	if !IsTransient(errors.New("unrecognized")) {
		t.Error("expected an unrecognized error to default to transient")
	}
}

func TestTransientError_UnwrapExposesUnderlyingError(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := &TransientError{Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to see through TransientError to its cause")
	}
}
