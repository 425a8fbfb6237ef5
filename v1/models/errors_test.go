package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_CarriesPayloadSnapshot(t *testing.T) {
	err := NewValidationError("email", map[string]string{"role": "RE_ADMIN"})

	assert.Contains(t, err.Error(), `"email"`)
	assert.Contains(t, err.Error(), `"role":"RE_ADMIN"`)
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", NewValidationError("email", nil), http.StatusBadRequest},
		{"rejection", Reject("entity has outstanding invitations"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("unknown invitation code"), http.StatusUnauthorized},
		{"entity not found", ErrEntityNotFound, http.StatusBadRequest},
		{"wrapped rejection", fmt.Errorf("step failed: %w", Reject("nope")), http.StatusBadRequest},
		{"wrapped unauthorized", fmt.Errorf("step failed: %w", Unauthorized("nope")), http.StatusUnauthorized},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusForError(tc.err))
		})
	}
}
