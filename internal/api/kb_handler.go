package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/guestdesk/internal/kb"
	"github.com/guestdesk/pkg/models"
)

type KBHandler struct {
	service *kb.Service
}

func NewKBHandler(service *kb.Service) *KBHandler {
	return &KBHandler{service: service}
}

func (h *KBHandler) List(c echo.Context) error {
	clientID := c.QueryParam("clientId")
	if clientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "clientId is required")
	}
	items, err := h.service.List(c.Request().Context(), kb.Filter{
		ClientID:   clientID,
		PropertyID: c.QueryParam("propertyId"),
		Tag:        c.QueryParam("tag"),
		Query:      c.QueryParam("q"),
		Limit:      queryInt(c, "limit"),
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *KBHandler) Search(c echo.Context) error {
	clientID := c.QueryParam("clientId")
	if clientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "clientId is required")
	}
	items, err := h.service.Search(c.Request().Context(), clientID, c.QueryParam("q"), queryInt(c, "limit"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *KBHandler) Get(c echo.Context) error {
	e, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *KBHandler) Create(c echo.Context) error {
	var body struct {
		ClientID   string   `json:"clientId"`
		PropertyID string   `json:"propertyId"`
		Title      string   `json:"title"`
		Content    string   `json:"content"`
		Tags       []string `json:"tags"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	e := &models.KbEntry{
		ClientID:   body.ClientID,
		PropertyID: body.PropertyID,
		Title:      body.Title,
		Content:    body.Content,
		Tags:       body.Tags,
	}
	if err := h.service.Create(c.Request().Context(), e); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}
