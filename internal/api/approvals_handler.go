package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/guestdesk/internal/approvals"
	"github.com/guestdesk/pkg/models"
)

type ApprovalHandler struct {
	service *approvals.Service
}

func NewApprovalHandler(service *approvals.Service) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

func (h *ApprovalHandler) List(c echo.Context) error {
	status := models.ApprovalStatus(c.QueryParam("status"))
	switch status {
	case "", models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	items, err := h.service.List(c.Request().Context(), approvals.ListFilter{
		Status:   status,
		ClientID: c.QueryParam("clientId"),
		Limit:    queryInt(c, "limit"),
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ApprovalHandler) Get(c echo.Context) error {
	a, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Create escalates a message for review by hand
func (h *ApprovalHandler) Create(c echo.Context) error {
	var body struct {
		MessageID string `json:"messageId"`
		Notes     string `json:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if body.MessageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "messageId is required")
	}
	a, err := h.service.Create(c.Request().Context(), body.MessageID, body.Notes)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *ApprovalHandler) Decide(c echo.Context) error {
	var body struct {
		Action     string `json:"action"`
		Notes      string `json:"notes"`
		FinalReply string `json:"finalReply"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	action, err := approvals.ParseAction(body.Action)
	if err != nil {
		return httpError(c, err)
	}
	a, err := h.service.Decide(c.Request().Context(), approvals.DecideRequest{
		ApprovalID: c.Param("id"),
		Action:     action,
		ReviewerID: reviewerID(c),
		Notes:      body.Notes,
		FinalReply: body.FinalReply,
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Bulk decides every pending approval of the listed messages. Partial
// success is normal; only the transitioned count is reported.
func (h *ApprovalHandler) Bulk(c echo.Context) error {
	var body struct {
		MessageIDs []string `json:"messageIds"`
		Action     string   `json:"action"`
		Reason     string   `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	action, err := approvals.ParseAction(body.Action)
	if err != nil {
		return httpError(c, err)
	}
	result, err := h.service.BulkDecide(c.Request().Context(), approvals.BulkRequest{
		MessageIDs: body.MessageIDs,
		Action:     action,
		ReviewerID: reviewerID(c),
		Reason:     body.Reason,
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// SendDirect records an operator reply that bypasses the approval queue
func (h *ApprovalHandler) SendDirect(c echo.Context) error {
	var body struct {
		Reply string `json:"reply"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	l, err := h.service.SendDirect(c.Request().Context(), c.Param("id"), body.Reply, reviewerID(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, l)
}
