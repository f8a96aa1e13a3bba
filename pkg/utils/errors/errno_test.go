package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeCode(t *testing.T) {
	assert.Equal(t, 1001001, MakeCode(10, 1, 1))
	assert.Equal(t, 9010002, MakeCode(90, 10, 2))
	assert.Equal(t, 7001, MakeCode(0, 7, 1))
}

func TestErrnoIs_MatchesByCode(t *testing.T) {
	wrapped := ErrNotFound.WithCause(stderrors.New("boom"))
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrDimensionMismatch)

	// Wrapping once more with fmt keeps the match.
	twice := fmt.Errorf("delete document: %w", wrapped)
	assert.ErrorIs(t, twice, ErrNotFound)
}

func TestWithMessage_KeepsCodeAndStatus(t *testing.T) {
	e := ErrDimensionMismatch.WithMessage("expected dim %d, got %d", 4, 3)
	assert.Equal(t, ErrDimensionMismatch.Code, e.Code)
	assert.Equal(t, http.StatusBadRequest, e.HTTP)
	assert.Contains(t, e.Message, "expected dim 4")
	assert.ErrorIs(t, e, ErrDimensionMismatch)
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	e := FromError(fmt.Errorf("wrap: %w", ErrTimeout))
	assert.Equal(t, ErrTimeout.Code, e.Code)

	// Uncoded errors collapse to ErrInternal and keep the cause.
	raw := stderrors.New("disk on fire")
	e = FromError(raw)
	assert.Equal(t, ErrInternal.Code, e.Code)
	assert.ErrorIs(t, e, ErrInternal)
	assert.Contains(t, e.Error(), "disk on fire")
}
