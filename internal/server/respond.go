package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"certmint/internal/certerr"
)

var validate = validator.New()

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty request body")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// decodeOptional tolerates an absent body, for endpoints where every
// field has a default.
func decodeOptional(r *http.Request, v any) error {
	err := decode(r, v)
	if err != nil && err.Error() == "empty request body" {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

// writeClassified renders a classified certification failure in the
// stage/code error shape. Conflicts keep the simpler message-only shape.
func writeClassified(w http.ResponseWriter, err error) {
	var ce *certerr.Error
	if !errors.As(err, &ce) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"stage":   string(certerr.StageMint),
			"code":    string(certerr.CodeInternal),
			"error":   err.Error(),
			"message": "certification failed",
		})
		return
	}

	if ce.Code == certerr.CodeConflict {
		writeMessage(w, http.StatusConflict, ce.Message)
		return
	}

	cause := ce.Message
	if ce.Err != nil {
		cause = ce.Err.Error()
	}
	writeJSON(w, statusForCode(ce.Code), map[string]any{
		"success": false,
		"stage":   string(ce.Stage),
		"code":    string(ce.Code),
		"error":   cause,
		"message": ce.Message,
	})
}

func statusForCode(code certerr.Code) int {
	switch code {
	case certerr.CodeNotFound:
		return http.StatusNotFound
	case certerr.CodeForbidden:
		return http.StatusForbidden
	case certerr.CodeConflict:
		return http.StatusConflict
	case certerr.CodeTransaction:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
