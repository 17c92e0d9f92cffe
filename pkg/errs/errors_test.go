package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrProvisioningFailed, "create.provision.compute", fmt.Errorf("pull failed")).
		WithResource("feature-123")

	msg := err.Error()
	assert.Contains(t, msg, "ERR-ENV-002")
	assert.Contains(t, msg, "create.provision.compute")
	assert.Contains(t, msg, "feature-123")
	assert.Contains(t, msg, "pull failed")
	assert.NotContains(t, msg, "cleanup incomplete")

	err.WithCleanupIncomplete()
	assert.Contains(t, err.Error(), "cleanup incomplete")
}

func TestUnwrapAndIsCode(t *testing.T) {
	cause := fmt.Errorf("socket refused")
	wrapped := fmt.Errorf("outer: %w", Wrap(cause, ErrRuntimeUnreachable, "ping"))

	assert.True(t, errors.Is(wrapped, cause))
	assert.True(t, IsCode(wrapped, ErrRuntimeUnreachable))
	assert.False(t, IsCode(wrapped, ErrNotFound))
	assert.False(t, IsCode(nil, ErrNotFound))
	assert.False(t, IsCode(fmt.Errorf("plain"), ErrNotFound))
}

func TestAsEnclave(t *testing.T) {
	inner := Newf(ErrNotFound, "get.environment", "environment %q not found", "x")
	wrapped := fmt.Errorf("outer: %w", inner)

	got := AsEnclave(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrNotFound, got.Code)

	assert.Nil(t, AsEnclave(fmt.Errorf("plain")))
	assert.Nil(t, AsEnclave(nil))
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrInternal, "noop"))
}

func TestUserMessageIncludesChecksAndAdvice(t *testing.T) {
	err := Newf(ErrValidationFailed, "promote.validate", "validation suite failed").
		WithChecks([]CheckDetail{
			{Name: "unit", Passed: false, Detail: "2 tests failed"},
			{Name: "integration", Passed: true},
		}).
		WithAdvice("Fix the failing checks and promote again")

	msg := err.UserMessage()
	assert.Contains(t, msg, "✗ unit — 2 tests failed")
	assert.Contains(t, msg, "✓ integration")
	assert.Contains(t, msg, "→ Fix the failing checks")
}
