package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	errA := NewError(http.StatusBadRequest, "unknown strategy")
	same := NewError(http.StatusBadRequest, "unknown strategy")
	other := NewError(http.StatusRequestEntityTooLarge, "unknown strategy")

	assert.ErrorIs(t, errA, same)
	assert.NotErrorIs(t, errA, other)
	assert.ErrorIs(t, fmt.Errorf("dispatch: %w", errA), same)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusOf(NewError(http.StatusRequestEntityTooLarge, "too big")))
	assert.Equal(t, http.StatusBadRequest, StatusOf(fmt.Errorf("wrap: %w", NewError(http.StatusBadRequest, "bad"))))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))
}
