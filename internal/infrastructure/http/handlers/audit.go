package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

const defaultAuditLimit = 50

type auditQuery struct {
	Limit int64 `query:"limit" validate:"omitempty,min=1,max=500"`
}

type auditResponse struct {
	Events []domain.AuditEvent `json:"events"`
}

// AuditHandler serves the privileged-action audit trail to operators.
type AuditHandler struct {
	reader ports.AuditReader
}

func NewAuditHandler(reader ports.AuditReader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

// Recent handles GET /audit?limit=N, newest first.
func (h *AuditHandler) Recent(c echo.Context) error {
	var q auditQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}
	if err := c.Validate(&q); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if q.Limit == 0 {
		q.Limit = defaultAuditLimit
	}

	events, err := h.reader.Recent(c.Request().Context(), q.Limit)
	if err != nil {
		return err
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	return c.JSON(http.StatusOK, auditResponse{Events: events})
}
