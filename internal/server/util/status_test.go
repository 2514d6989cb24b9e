package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/cartonhq/carton/pkg/common"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "validation", err: common.NewValidationError("bad kind", nil), want: http.StatusBadRequest},
		{name: "wrapped validation", err: fmt.Errorf("assert: %w", common.NewValidationError("bad kind", nil)), want: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("entity x: %w", common.ErrNotFound), want: http.StatusNotFound},
		{name: "lock held", err: fmt.Errorf("namespace y: %w", common.ErrLockHeld), want: http.StatusConflict},
		{name: "consistency", err: fmt.Errorf("ablation: %w", common.ErrConsistency), want: http.StatusInternalServerError},
		{name: "collaborator", err: fmt.Errorf("neo4j: %w", common.ErrCollaborator), want: http.StatusBadGateway},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := StatusForError(tt.err)
			if got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
			if msg == "" {
				t.Error("message is empty")
			}
		})
	}
}

func TestStatusForErrorValidationCarriesReason(t *testing.T) {
	_, msg := StatusForError(common.NewValidationError("pending pairs reference the cascade", []string{"a", "b"}))
	if msg == "Internal server error" {
		t.Fatalf("validation reason swallowed: %q", msg)
	}
}
