package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	err := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestClonedSentinelMatchesWithIs(t *testing.T) {
	err := fmt.Errorf("insert: %w", Clone(ErrDuplicateSeat, "seat SCC-2025-1285 already registered"))
	assert.True(t, errors.Is(err, ErrDuplicateSeat))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestWithDetails(t *testing.T) {
	err := WithDetails(ErrValidation, map[string]string{"mobile": "invalid phone number"})
	assert.Equal(t, "invalid phone number", err.Details["mobile"])
	assert.Nil(t, ErrValidation.Details)
}
