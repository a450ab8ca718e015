package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/guestdesk/internal/audit"
)

// RecordHandler serves the send log and audit log listings
type RecordHandler struct {
	store audit.Store
}

func NewRecordHandler(store audit.Store) *RecordHandler {
	return &RecordHandler{store: store}
}

func (h *RecordHandler) ListSendLogs(c echo.Context) error {
	from, err := queryTime(c, "from", false)
	if err != nil {
		return err
	}
	to, err := queryTime(c, "to", true)
	if err != nil {
		return err
	}
	items, page, err := h.store.ListSendLogs(c.Request().Context(), audit.SendLogFilter{
		ThreadID:     c.QueryParam("threadId"),
		SentByUserID: c.QueryParam("sentBy"),
		Channel:      c.QueryParam("channel"),
		From:         from,
		To:           to,
		Search:       c.QueryParam("search"),
		Pagination:   pagination(c),
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sendLogs": items, "pagination": page})
}

func (h *RecordHandler) ListAudit(c echo.Context) error {
	from, err := queryTime(c, "from", false)
	if err != nil {
		return err
	}
	to, err := queryTime(c, "to", true)
	if err != nil {
		return err
	}
	items, page, err := h.store.ListAudit(c.Request().Context(), audit.AuditFilter{
		ActorUserID: c.QueryParam("actor"),
		Action:      c.QueryParam("action"),
		EntityType:  c.QueryParam("entityType"),
		From:        from,
		To:          to,
		Search:      c.QueryParam("search"),
		Pagination:  pagination(c),
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"auditLogs": items, "pagination": page})
}
