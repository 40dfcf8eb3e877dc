package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/server/users"
	"github.com/dmitrijs2005/peerlearn/internal/validation"
)

// validationItem is one entry of a 422 body.
type validationItem struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, items []validationItem) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string][]validationItem{"detail": items})
}

func writeFieldErrors(w http.ResponseWriter, err error) {
	fields := validation.Fields(err)
	items := make([]validationItem, 0, len(fields))
	for _, f := range fields {
		items = append(items, validationItem{
			Loc:  []string{"body", f.Field},
			Msg:  f.Message,
			Type: "value_error." + f.Tag,
		})
	}
	writeValidation(w, items)
}

type statusDetail struct {
	status int
	detail string
}

var serviceErrors = map[error]statusDetail{
	users.ErrEmailTaken:         {http.StatusBadRequest, "Email already registered"},
	users.ErrStudentIDTaken:     {http.StatusBadRequest, "Student ID already registered"},
	users.ErrInvalidCode:        {http.StatusBadRequest, "Invalid or expired verification code"},
	users.ErrBadCredentials:     {http.StatusUnauthorized, "Incorrect email or password"},
	users.ErrNotVerified:        {http.StatusBadRequest, "Please verify your email before logging in"},
	users.ErrAlreadyVerified:    {http.StatusBadRequest, "Email already verified"},
	users.ErrInvalidCredentials: {http.StatusUnauthorized, "Could not validate credentials"},
	common.ErrNotFound:          {http.StatusNotFound, "User not found"},
}

// writeServiceError maps a service error onto its status and detail.
// Anything unknown is a 500 and gets logged by the caller.
func writeServiceError(w http.ResponseWriter, err error) bool {
	for target, sd := range serviceErrors {
		if errors.Is(err, target) {
			writeDetail(w, sd.status, sd.detail)
			return true
		}
	}
	writeDetail(w, http.StatusInternalServerError, "Internal server error")
	return false
}
