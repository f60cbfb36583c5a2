package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"empty input", errors.ErrCodeEmptyInput, "no observations"},
		{"invalid param", errors.CodeInvalidParam, "country must not be empty"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
			assert.NotEmpty(t, ae.Stack)
		})
	}
}

func TestNewf(t *testing.T) {
	ae := errors.Newf(errors.ErrCodeInvalidObservation, "negative value %v for %s", -1.5, "F1")
	assert.Equal(t, "negative value -1.5 for F1", ae.Message)
}

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "should not matter"))
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	t.Parallel()

	root := stderrors.New("dial tcp: connection refused")
	level1 := errors.Wrap(root, errors.CodeDatabase, "postgres unreachable")
	level2 := errors.Wrap(level1, errors.CodeInternal, "failed to load persons")

	assert.Equal(t, level1, stderrors.Unwrap(level2))
	assert.Equal(t, root, stderrors.Unwrap(level1))
	assert.True(t, stderrors.Is(level2, root))
}

func TestWrap_PreservesOriginalCodeWhenCodeUnknown(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeLLMBadResponse, "no message field")
	outer := errors.Wrap(inner, errors.CodeUnknown, "summarizing applicants_ratio")

	assert.Equal(t, errors.ErrCodeLLMBadResponse, outer.Code)
}

func TestWrap_OverridesCodeWhenExplicit(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.CodeNotFound, "not found")
	outer := errors.Wrap(inner, errors.CodeInternal, "unexpected state")

	assert.Equal(t, errors.CodeInternal, outer.Code)
}

func TestError_Format(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeEmptyInput, "no observations")
	assert.Equal(t, "[ATTR_001] no observations", ae.Error())

	withDetail := ae.WithDetail("chart=applicants_ratio")
	assert.Equal(t, "[ATTR_001] no observations: chart=applicants_ratio", withDetail.Error())

	wrapped := errors.Wrap(stderrors.New("boom"), errors.CodeCache, "redis get")
	assert.Equal(t, "[COMMON_013] redis get: boom", wrapped.Error())
}

func TestWithDetail_DoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	original := errors.New(errors.CodeNotFound, "run missing")
	detailed := original.WithDetail("id=42")

	assert.Empty(t, original.Detail)
	assert.Equal(t, "id=42", detailed.Detail)
	assert.Equal(t, original.Code, detailed.Code)
}

func TestWithDetail_NilReceiver(t *testing.T) {
	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
	assert.Nil(t, ae.WithCause(stderrors.New("x")))
}

func TestWithCause(t *testing.T) {
	cause := stderrors.New("timeout")
	ae := errors.Unavailable("ollama down").WithCause(cause)
	assert.Equal(t, cause, stderrors.Unwrap(ae))
	assert.Equal(t, errors.CodeUnavailable, ae.Code)
}

func TestIsCode(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeEmptyInput, "empty")
	wrapped := fmt.Errorf("chart failed: %w", ae)

	assert.True(t, errors.IsCode(ae, errors.ErrCodeEmptyInput))
	assert.True(t, errors.IsCode(wrapped, errors.ErrCodeEmptyInput))
	assert.False(t, errors.IsCode(wrapped, errors.CodeInternal))
	assert.False(t, errors.IsCode(nil, errors.ErrCodeEmptyInput))
}

func TestIsCode_InnerCodeVisibleThroughOuter(t *testing.T) {
	inner := errors.New(errors.ErrCodeEmptyInput, "empty")
	outer := errors.Wrap(inner, errors.CodeInternal, "build")
	assert.True(t, errors.IsCode(outer, errors.ErrCodeEmptyInput))
	assert.True(t, errors.IsCode(outer, errors.CodeInternal))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, errors.IsNotFound(errors.NotFound("run")))
	assert.False(t, errors.IsNotFound(errors.Internal("boom")))
	assert.False(t, errors.IsNotFound(stderrors.New("plain")))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.CodeConflict, errors.GetCode(errors.Conflict("dup")))
	assert.Equal(t, errors.CodeInvalidParam,
		errors.GetCode(fmt.Errorf("ctx: %w", errors.InvalidParam("bad"))))
}

func TestAs(t *testing.T) {
	var target *errors.AppError
	err := fmt.Errorf("outer: %w", errors.Internal("inner"))
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "inner", target.Message)
}
