package handler

import (
	"log/slog"
	"net/http"

	"huddle/internal/delivery/api/response"
	"huddle/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// AdminHandlerParams holds dependencies for AdminHandler, injected by Fx.
type AdminHandlerParams struct {
	fx.In

	SweepUC usecase.SweepUsecase
	Logger  *slog.Logger
}

// AdminHandler exposes operational triggers.
type AdminHandler struct {
	sweepUC usecase.SweepUsecase
	logger  *slog.Logger
}

// NewAdminHandler is the constructor for AdminHandler
func NewAdminHandler(params AdminHandlerParams) *AdminHandler {
	return &AdminHandler{
		sweepUC: params.SweepUC,
		logger:  params.Logger,
	}
}

// RunSweep runs one timeout sweep immediately
func (h *AdminHandler) RunSweep(c echo.Context) error {
	report, err := h.sweepUC.Sweep(c.Request().Context())
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, report)
}

// HealthCheck reports that the service is up
func HealthCheck(c echo.Context) error {
	return response.Success(c, http.StatusOK, map[string]string{"status": "ok"})
}
