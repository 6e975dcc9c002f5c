package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// AdminHandler exposes configuration flags for operator attention.
type AdminHandler struct {
	flags repository.FlagRepository
}

// NewAdminHandler constructs handler.
func NewAdminHandler(flags repository.FlagRepository) *AdminHandler {
	return &AdminHandler{flags: flags}
}

// ListFlags GET /admin/configuration-flags.
func (h *AdminHandler) ListFlags(c *fiber.Ctx) error {
	scope, err := scopeFromRequest(c)
	if err != nil {
		return err
	}
	flags, err := h.flags.ListOpen(c.UserContext(), scope, c.QueryInt("limit", 100))
	if err != nil {
		return err
	}
	items := make([]dto.FlagSummary, 0, len(flags))
	for i := range flags {
		items = append(items, dto.FlagSummaryFrom(&flags[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ResolveFlag POST /admin/configuration-flags/:id/resolve.
func (h *AdminHandler) ResolveFlag(c *fiber.Ctx) error {
	scope, err := scopeFromRequest(c)
	if err != nil {
		return err
	}
	flagID := c.Params("id")
	if flagID == "" {
		return apperrors.NewValidationError("flag id required", nil)
	}
	if err := h.flags.Resolve(c.UserContext(), scope, flagID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": flagID, "resolved": true}})
}
