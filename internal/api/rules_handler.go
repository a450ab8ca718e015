package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/guestdesk/internal/rules"
	"github.com/guestdesk/pkg/models"
)

type RuleHandler struct {
	service *rules.Service
}

func NewRuleHandler(service *rules.Service) *RuleHandler {
	return &RuleHandler{service: service}
}

func (h *RuleHandler) List(c echo.Context) error {
	clientID := c.QueryParam("clientId")
	if clientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "clientId is required")
	}
	items, err := h.service.List(c.Request().Context(), rules.Filter{
		ClientID:    clientID,
		PropertyID:  c.QueryParam("propertyId"),
		EnabledOnly: c.QueryParam("enabled") == "true",
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *RuleHandler) Get(c echo.Context) error {
	r, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *RuleHandler) Create(c echo.Context) error {
	var body struct {
		ClientID   string                 `json:"clientId"`
		PropertyID string                 `json:"propertyId"`
		Intent     string                 `json:"intent"`
		RiskMax    string                 `json:"riskMax"`
		Conditions map[string]interface{} `json:"conditions"`
		Action     string                 `json:"action"`
		Enabled    *bool                  `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	r := &models.AutoRule{
		ClientID:   body.ClientID,
		PropertyID: body.PropertyID,
		Intent:     body.Intent,
		RiskMax:    models.RiskLevel(body.RiskMax),
		Conditions: body.Conditions,
		Action:     models.RuleAction(body.Action),
		Enabled:    body.Enabled == nil || *body.Enabled,
	}
	if err := h.service.Create(c.Request().Context(), r); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *RuleHandler) Update(c echo.Context) error {
	var patch rules.Patch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	r, err := h.service.Update(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *RuleHandler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}
