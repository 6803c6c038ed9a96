package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap("exec", nil))

	cause := errors.New("no such table: foo")
	err := Wrap("exec", cause)
	assert.EqualError(t, err, "exec: no such table: foo")
	assert.ErrorIs(t, err, ErrEngine)
	assert.ErrorIs(t, err, cause)

	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.Equal(t, "no such table: foo", e.Message)
}

func TestWrapKeepsEngineError(t *testing.T) {
	orig := NewError("query", "disk I/O error")
	wrapped := fmt.Errorf("read rows: %w", orig)

	assert.Same(t, orig, Wrap("exec", wrapped))
}

func TestErrorWithoutOp(t *testing.T) {
	err := NewError("", "database is locked")
	assert.EqualError(t, err, "database is locked")
	assert.ErrorIs(t, err, ErrEngine)
	assert.NotErrorIs(t, err, ErrClosed)
}

func TestWithQueryID(t *testing.T) {
	orig := NewError("query", "disk I/O error")
	tagged := orig.WithQueryID("q-1")

	assert.Equal(t, "q-1", tagged.QueryID)
	assert.Empty(t, orig.QueryID)
	assert.EqualError(t, tagged, orig.Error())
	assert.ErrorIs(t, tagged, orig)
	assert.ErrorIs(t, tagged, ErrEngine)
}
