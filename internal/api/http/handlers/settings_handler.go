package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/automation"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/tenant"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// SettingsHandler validates rule and calendar documents at save time, before
// the settings collaborator persists them. Catching a malformed document or a
// cross-tenant reference here keeps it out of the evaluation path entirely.
type SettingsHandler struct {
	guard *tenant.Guard
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(guard *tenant.Guard) *SettingsHandler {
	return &SettingsHandler{guard: guard}
}

// ValidateRule POST /settings/rules/validate.
func (h *SettingsHandler) ValidateRule(c *fiber.Ctx) error {
	scope, err := scopeFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.RuleValidationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	var problems []string
	if _, ok := domain.ParseTriggerKind(req.TriggerType); !ok {
		problems = append(problems, "unknown trigger_type "+req.TriggerType)
	}
	if _, err := automation.ParseCondition(req.Conditions); err != nil {
		problems = append(problems, "conditions: "+err.Error())
	}
	actions, err := automation.ParseActions(req.Actions)
	if err != nil {
		problems = append(problems, "actions: "+err.Error())
	} else {
		for _, ref := range automation.CollectReferences(actions) {
			if err := h.guard.Require(c.UserContext(), scope, ref); err != nil {
				problems = append(problems, err.Error())
			}
		}
	}

	return c.JSON(fiber.Map{"data": dto.ValidationResponse{
		Valid:    len(problems) == 0,
		Problems: problems,
	}})
}

// ValidateCalendar POST /settings/calendars/validate.
func (h *SettingsHandler) ValidateCalendar(c *fiber.Ctx) error {
	scope, err := scopeFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.CalendarValidationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	var problems []string
	cal := &domain.BusinessHoursCalendar{
		TenantID: scope.TenantID,
		Timezone: req.Timezone,
		Windows:  map[time.Weekday]domain.DayWindow{},
		Holidays: map[string]struct{}{},
	}
	for name, w := range req.Windows {
		weekday, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			problems = append(problems, "unknown weekday "+name)
			continue
		}
		cal.Windows[weekday] = domain.DayWindow{OpenMinute: w.OpenMinute, CloseMinute: w.CloseMinute}
	}
	for _, day := range req.Holidays {
		if _, err := time.Parse(domain.DateLayout, day); err != nil {
			problems = append(problems, "holiday "+day+" is not a valid date")
			continue
		}
		cal.Holidays[day] = struct{}{}
	}
	if err := cal.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	return c.JSON(fiber.Map{"data": dto.ValidationResponse{
		Valid:    len(problems) == 0,
		Problems: problems,
	}})
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
