package apperror

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindValidation.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusConflict, KindConflict.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, KindForbidden.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Kind(0).HTTPStatus())
}

func TestScheduleConflict(t *testing.T) {
	err := ScheduleConflict(ConflictRoom, "CASE-0001", "room is booked until %s", "11:20")

	assert.Equal(t, KindConflict, err.Kind)
	assert.Equal(t, ConflictRoom, err.ConflictType)
	assert.Equal(t, "CASE-0001", err.ConflictCaseCode)
	assert.Equal(t, "room is booked until 11:20 (ot)", err.Error())
}

func TestAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("create booking: %w", NotFound("room %s not found", "OT-1"))

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "room OT-1 not found", appErr.Message)
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(wrapped, KindConflict))

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestConflictTypeValid(t *testing.T) {
	assert.True(t, ConflictType("nurse").Valid())
	assert.False(t, ConflictType("room").Valid())
}
