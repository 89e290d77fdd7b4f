package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/runnable/runnable-api/internal/model"
	"github.com/runnable/runnable-api/internal/platform"
)

var validate = validator.New()

func init() {
	validate.RegisterValidation("runnable_status", func(fl validator.FieldLevel) bool {
		return model.ValidStatus(fl.Field().String())
	})
}

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// RequireID decodes an identifier taken from the URL. Both the encoded and
// the raw hex forms are accepted.
func RequireID(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required ID")
	}
	id, err := platform.ResolveID(s)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RequireQuery returns a non-empty query parameter.
func RequireQuery(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", fmt.Errorf("missing required query parameter %q", name)
	}
	return v, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("query parameter %q: %w", name, err)
	}
	return b, nil
}
