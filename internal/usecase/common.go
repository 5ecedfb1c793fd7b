package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"or-scheduler/internal/converter"
	"or-scheduler/internal/delivery/dto"
	"or-scheduler/internal/delivery/http/middleware"
	"or-scheduler/internal/domain/entity"
	"or-scheduler/internal/service"
	"or-scheduler/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrActorNotFound     = apperror.Forbidden("user not found in context")
	ErrBookingNotFound   = apperror.NotFound("booking not found")
	ErrPatientNotFound   = apperror.NotFound("patient not found")
	ErrNotAssignedStaff  = apperror.Forbidden("you are not assigned to this case")
	ErrInvalidOverride   = apperror.Validation("unknown force override")
	ErrBookingNotMovable = apperror.Conflict("only cases that have not started can be rescheduled")
)

// actorFromContext returns the authenticated caller.
func actorFromContext(ctx context.Context) (*uuid.UUID, error) {
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrActorNotFound
	}
	return &userID, nil
}

func isAdmin(ctx context.Context) bool {
	role, ok := middleware.GetRoleFromContext(ctx)
	return ok && role == entity.RoleAdmin
}

// parseOverrides converts requested force overrides into conflict types.
func parseOverrides(raw []string) ([]apperror.ConflictType, error) {
	overrides := make([]apperror.ConflictType, 0, len(raw))
	for _, r := range raw {
		t := apperror.ConflictType(r)
		if !t.Valid() {
			return nil, ErrInvalidOverride
		}
		overrides = append(overrides, t)
	}
	return overrides, nil
}

// generateCode generates a unique code: PREFIX-YYYYMMDD-XXXXXX
func generateCode(prefix string, at time.Time) string {
	dateStr := at.Format("20060102")
	randomBytes := make([]byte, 3)
	rand.Read(randomBytes)
	return fmt.Sprintf("%s-%s-%06X", prefix, dateStr, randomBytes)
}

// displacer runs the rescheduling that follows a committed write. Failures
// are reported in the response; the committed write stands.
type displacer struct {
	db           *gorm.DB
	log          *logrus.Logger
	notifier     service.Notifier
	auditService service.AuditService
}

func (d displacer) run(ctx context.Context, actorID *uuid.UUID, kind service.PlanKind, source *entity.Booking, apply func() (*service.ApplyResult, error)) dto.DisplacementResponse {
	result, err := apply()
	if err != nil {
		d.log.Warnf("Displacement %s for %s incomplete: %+v", kind, source.CaseCode, err)
	}

	if result != nil && len(result.Applied) > 0 {
		details := map[string]interface{}{
			"plan":      kind,
			"applied":   result.Applied,
			"unapplied": result.Unapplied,
		}
		if auditErr := d.auditService.LogEvent(ctx, d.db.WithContext(ctx), actorID, entity.AuditActionBookingDisplace, "booking", source.ID.String(), details); auditErr != nil {
			d.log.Warnf("Failed to audit displacement of %s: %+v", source.CaseCode, auditErr)
		}
		service.NotifyAll(ctx, d.notifier, d.log, service.DisplacementEvents(kind, source.CaseCode, result, time.Now()))
	}

	return converter.DisplacementToResponse(kind, result, err)
}

// audit records a post-commit event; failures are logged only.
func (d displacer) audit(ctx context.Context, actorID *uuid.UUID, action string, b *entity.Booking, details map[string]interface{}) {
	if err := d.auditService.LogEvent(ctx, d.db.WithContext(ctx), actorID, action, "booking", b.ID.String(), details); err != nil {
		d.log.Warnf("Failed to audit %s on %s: %+v", action, b.CaseCode, err)
	}
}
