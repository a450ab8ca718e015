package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/guestdesk/internal/audit"
	"github.com/guestdesk/internal/threads"
	"github.com/guestdesk/pkg/models"
)

type ThreadHandler struct {
	store  threads.Store
	intake *threads.Intake
}

func NewThreadHandler(store threads.Store, intake *threads.Intake) *ThreadHandler {
	return &ThreadHandler{store: store, intake: intake}
}

func (h *ThreadHandler) List(c echo.Context) error {
	p := pagination(c)
	status := models.ThreadStatus(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	items, total, err := h.store.ListThreads(c.Request().Context(), threads.Filter{
		ClientID:   c.QueryParam("clientId"),
		PropertyID: c.QueryParam("propertyId"),
		Status:     status,
		Limit:      p.Limit,
		Offset:     p.Offset(),
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"threads":    items,
		"pagination": audit.NewPageInfo(p, total),
	})
}

func (h *ThreadHandler) Create(c echo.Context) error {
	var body struct {
		ClientID   string `json:"clientId"`
		PropertyID string `json:"propertyId"`
		GuestName  string `json:"guestName"`
		GuestEmail string `json:"guestEmail"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if body.ClientID == "" || body.PropertyID == "" || strings.TrimSpace(body.GuestName) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "clientId, propertyId and guestName are required")
	}

	ctx := c.Request().Context()
	property, err := h.store.GetProperty(ctx, body.PropertyID)
	if err != nil {
		return httpError(c, err)
	}
	if property.ClientID != body.ClientID {
		return echo.NewHTTPError(http.StatusBadRequest, "property does not belong to client")
	}

	t := &models.Thread{
		ClientID:   body.ClientID,
		PropertyID: body.PropertyID,
		GuestName:  strings.TrimSpace(body.GuestName),
		GuestEmail: body.GuestEmail,
	}
	if err := h.store.CreateThread(ctx, t); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *ThreadHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	t, err := h.store.GetThread(ctx, c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	messages, err := h.store.ListMessages(ctx, t.ID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"thread": t, "messages": messages})
}

// SetStatus is the manual operator transition (open, resolved, closed, pending)
func (h *ThreadHandler) SetStatus(c echo.Context) error {
	var body struct {
		Status models.ThreadStatus `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if !threads.OperatorSettable(body.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be one of pending, open, resolved, closed")
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	if err := h.store.SetStatus(ctx, id, body.Status); err != nil {
		return httpError(c, err)
	}
	t, err := h.store.GetThread(ctx, id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *ThreadHandler) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := h.store.GetThread(ctx, id); err != nil {
		return httpError(c, err)
	}
	messages, err := h.store.ListMessages(ctx, id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, messages)
}

// CreateMessage stores the message and returns without waiting for classification
func (h *ThreadHandler) CreateMessage(c echo.Context) error {
	var body struct {
		SenderType models.SenderType `json:"senderType"`
		Text       string            `json:"text"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if body.SenderType == "" {
		body.SenderType = models.SenderGuest
	}
	msg, err := h.intake.Receive(c.Request().Context(), c.Param("id"), body.SenderType, body.Text)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *ThreadHandler) GetAnalysis(c echo.Context) error {
	a, err := h.store.GetAnalysis(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *ThreadHandler) CreateProperty(c echo.Context) error {
	var body struct {
		ClientID string `json:"clientId"`
		Name     string `json:"name"`
		Address  string `json:"address"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if body.ClientID == "" || strings.TrimSpace(body.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "clientId and name are required")
	}
	p := &models.Property{ClientID: body.ClientID, Name: strings.TrimSpace(body.Name), Address: body.Address}
	if err := h.store.CreateProperty(c.Request().Context(), p); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *ThreadHandler) GetProperty(c echo.Context) error {
	p, err := h.store.GetProperty(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
