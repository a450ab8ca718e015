package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/guestdesk/internal/api/auth"
	"github.com/guestdesk/internal/approvals"
	"github.com/guestdesk/internal/audit"
	"github.com/guestdesk/internal/kb"
	"github.com/guestdesk/internal/rules"
	"github.com/guestdesk/internal/threads"
)

// httpError maps a service error onto the status the caller should see
func httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, threads.ErrNotFound),
		errors.Is(err, approvals.ErrNotFound),
		errors.Is(err, rules.ErrNotFound),
		errors.Is(err, kb.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, approvals.ErrConflict), errors.Is(err, approvals.ErrThreadClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case approvals.IsValidation(err),
		errors.Is(err, rules.ErrInvalidRule),
		errors.Is(err, threads.ErrInvalidMessage),
		errors.Is(err, kb.ErrInvalidEntry):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	log.Error().Err(err).Str("method", c.Request().Method).Str("path", c.Path()).Msg("Request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

func reviewerID(c echo.Context) string {
	if r := auth.GetReviewer(c); r != nil {
		return r.UserID
	}
	return ""
}

func queryInt(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}

func pagination(c echo.Context) audit.Pagination {
	return audit.Pagination{Page: queryInt(c, "page"), Limit: queryInt(c, "limit")}.Normalize()
}

// queryTime accepts RFC 3339 or a plain date. A date used as an upper bound
// covers the whole day.
func queryTime(c echo.Context, name string, endOfDay bool) (time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+" date")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
