package handler

import (
	"encoding/json"
	"net/http"

	"or-scheduler/pkg/response"
	"or-scheduler/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// pathID parses the {name} route variable. It writes the 400 itself.
func pathID(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid "+label+" ID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// bind decodes and validates the JSON body into req. It writes the 400 itself.
func bind(w http.ResponseWriter, r *http.Request, v *validator.CustomValidator, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return false
	}

	if err := v.Validate(req); err != nil {
		response.ValidationError(w, v.FormatValidationErrors(err))
		return false
	}
	return true
}
