package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	ts := NewTokenService("test-secret")

	token, expiresAt, err := ts.Issue(Reviewer{UserID: "u1", Email: "ops@example.com", Role: RoleManager})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(12*time.Hour), expiresAt, time.Minute)

	r, err := ts.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, &Reviewer{UserID: "u1", Email: "ops@example.com", Role: RoleManager}, r)
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	ts := NewTokenService("test-secret")
	other := NewTokenService("other-secret")
	foreign, _, err := other.Issue(Reviewer{UserID: "u1", Role: RoleStaff})
	require.NoError(t, err)

	expired := NewTokenService("test-secret")
	expired.AccessTokenDuration = -time.Minute
	stale, _, err := expired.Issue(Reviewer{UserID: "u1", Role: RoleStaff})
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: issuer}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{"wrong secret": foreign, "expired": stale, "unsigned": unsigned, "garbage": "abc"} {
		t.Run(name, func(t *testing.T) {
			_, err := ts.ValidateAccessToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestIssue_RequiresIdentity(t *testing.T) {
	ts := NewTokenService("test-secret")
	_, _, err := ts.Issue(Reviewer{Role: RoleStaff})
	assert.Error(t, err)
	_, _, err = ts.Issue(Reviewer{UserID: "u1", Role: "owner"})
	assert.Error(t, err)
}

func TestPermissions(t *testing.T) {
	staff := &Reviewer{UserID: "s", Role: RoleStaff}
	manager := &Reviewer{UserID: "m", Role: RoleManager}

	assert.True(t, staff.HasPermission(PermissionDecideApprovals))
	assert.False(t, staff.HasPermission(PermissionManageRules))
	assert.True(t, manager.HasPermission(PermissionManageRules))
	assert.True(t, (&Reviewer{Role: RoleAdmin}).HasPermission(PermissionViewAudit))
	assert.False(t, (*Reviewer)(nil).HasPermission(PermissionViewInbox))
}

func TestRequireAuth(t *testing.T) {
	ts := NewTokenService("test-secret")
	token, _, err := ts.Issue(Reviewer{UserID: "u1", Role: RoleStaff})
	require.NoError(t, err)

	e := echo.New()
	handler := RequireAuth(ts)(RequirePermission(PermissionDecideApprovals)(func(c echo.Context) error {
		return c.String(http.StatusOK, GetReviewer(c).UserID)
	}))

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{name: "missing", header: "", code: http.StatusUnauthorized},
		{name: "malformed", header: "Token " + token, code: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer nope", code: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + token, code: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			err := handler(e.NewContext(req, rec))
			if tt.code == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, "u1", rec.Body.String())
				return
			}
			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, tt.code, he.Code)
		})
	}
}

func TestRequirePermission_Forbidden(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set(string(ReviewerContextKey), &Reviewer{UserID: "s", Role: RoleStaff})

	err := RequirePermission(PermissionManageRules)(func(c echo.Context) error { return nil })(c)

	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusForbidden, he.Code)
}
