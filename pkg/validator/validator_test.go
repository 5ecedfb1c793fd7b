package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type materialLine struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type caseRequest struct {
	Title     string         `json:"title" validate:"required,max=10"`
	Reason    string         `json:"reason" validate:"omitempty,min=5"`
	Minutes   int            `json:"minutes" validate:"omitempty,max=1440"`
	Priority  string         `json:"priority" validate:"required,oneof=elective urgent emergency"`
	Materials []materialLine `json:"materials" validate:"omitempty,min=2,dive"`
	Internal  string         `json:"-"`
}

func TestFormatValidationErrors_UsesJSONPaths(t *testing.T) {
	v := NewValidator()

	err := v.Validate(&caseRequest{
		Reason:    "late",
		Minutes:   2000,
		Priority:  "routine",
		Materials: []materialLine{{Name: "Suture", Quantity: 0}},
	})
	require.Error(t, err)

	errs := v.FormatValidationErrors(err)
	assert.Equal(t, "title is required", errs["title"])
	assert.Equal(t, "reason must be at least 5 characters", errs["reason"])
	assert.Equal(t, "minutes must be at most 1440", errs["minutes"])
	assert.Equal(t, "priority must be one of: elective urgent emergency", errs["priority"])
	assert.Equal(t, "materials must be at least 2 entries", errs["materials"])
}

func TestFormatValidationErrors_NestedListItems(t *testing.T) {
	v := NewValidator()

	err := v.Validate(&caseRequest{
		Title:     "Appendix",
		Priority:  "urgent",
		Materials: []materialLine{{Name: "Gauze", Quantity: 4}, {Quantity: 1}},
	})
	require.Error(t, err)

	errs := v.FormatValidationErrors(err)
	assert.Equal(t, map[string]string{"materials[1].name": "name is required"}, errs)
}

func TestFormatValidationErrors_NonValidationError(t *testing.T) {
	v := NewValidator()
	assert.Empty(t, v.FormatValidationErrors(errors.New("boom")))
}

func TestValidate_Passes(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate(&caseRequest{Title: "Hernia", Priority: "elective"}))
}
