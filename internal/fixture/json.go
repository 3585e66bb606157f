package fixture

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"wastelink/internal/backend"
	"wastelink/internal/model"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// httpError is a walker failure with a definite HTTP status.
type httpError struct {
	Status int
	Title  string
	Detail string
}

func (e *httpError) Error() string { return e.Title + ": " + e.Detail }

func badRequest(detail string) error { return &httpError{Status: http.StatusBadRequest, Title: "Bad Request", Detail: detail} }

func forbidden(detail string) error { return &httpError{Status: http.StatusForbidden, Title: "Forbidden", Detail: detail} }

func notFound(detail string) error { return &httpError{Status: http.StatusNotFound, Title: "Not Found", Detail: detail} }

// problemFor maps a walker error onto a problem body.
func problemFor(err error, instance string) Problem {
	var he *httpError
	var te *model.InvalidTransitionError
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &he):
		return Problem{Type: "about:blank", Title: he.Title, Status: he.Status, Detail: he.Detail, Instance: instance}
	case errors.As(err, &te):
		return Problem{Type: "about:blank", Title: "Invalid Transition", Status: http.StatusConflict, Detail: te.Error(), Instance: instance}
	case errors.Is(err, backend.ErrNotFound):
		return Problem{Type: "about:blank", Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error(), Instance: instance}
	case errors.As(err, &ve):
		return Problem{Type: "about:blank", Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error(), Instance: instance}
	}
	return Problem{Type: "about:blank", Title: "Internal Server Error", Status: http.StatusInternalServerError, Detail: err.Error(), Instance: instance}
}

func writeError(w http.ResponseWriter, err error, instance string) {
	p := problemFor(err, instance)
	writeProblem(w, p.Status, p.Title, p.Detail, instance)
}

// toMap renders v as a JSON object.
func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromMap decodes a JSON object into out.
func fromMap(m map[string]any, out any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return badRequest(err.Error())
	}
	return nil
}
