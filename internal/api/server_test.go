package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guestdesk/internal/api/auth"
	"github.com/guestdesk/internal/approvals"
	"github.com/guestdesk/internal/audit"
	"github.com/guestdesk/internal/kb"
	"github.com/guestdesk/internal/rules"
	"github.com/guestdesk/internal/threads"
	"github.com/guestdesk/pkg/models"
)

type recordingEnqueuer struct {
	messageIDs []string
}

func (r *recordingEnqueuer) EnqueueClassification(_ context.Context, messageID, _ string) error {
	r.messageIDs = append(r.messageIDs, messageID)
	return nil
}

type harness struct {
	server   *Server
	threads  *threads.InMemoryStore
	records  *audit.InMemoryStore
	enqueuer *recordingEnqueuer
	tokens   *auth.TokenService
	staff    string
	manager  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	threadStore := threads.NewInMemoryStore()
	records := audit.NewInMemoryStore()
	enqueuer := &recordingEnqueuer{}
	tokens := auth.NewTokenService("test-secret")

	approvalService := approvals.NewService(approvals.NewInMemoryStore(threadStore, records), threadStore, nil)
	server := NewServer(0, Deps{
		Threads:   threadStore,
		Intake:    threads.NewIntake(threadStore, enqueuer),
		Rules:     rules.NewService(rules.NewInMemoryStore()),
		Approvals: approvalService,
		Records:   records,
		KB:        kb.NewService(kb.NewInMemoryStore()),
		Tokens:    tokens,
	})

	issue := func(id string, role auth.Role) string {
		token, _, err := tokens.Issue(auth.Reviewer{UserID: id, Role: role})
		require.NoError(t, err)
		return token
	}
	return &harness{
		server:   server,
		threads:  threadStore,
		records:  records,
		enqueuer: enqueuer,
		tokens:   tokens,
		staff:    issue("staff-1", auth.RoleStaff),
		manager:  issue("manager-1", auth.RoleManager),
	}
}

func (h *harness) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// seedMessage creates a property, a thread and one guest message through the API
func (h *harness) seedMessage(t *testing.T) (*models.Thread, *models.Message) {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/v1/properties", h.manager, map[string]string{"clientId": "c1", "name": "Harbor Loft"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	property := decode[models.Property](t, rec)

	rec = h.do(t, http.MethodPost, "/api/v1/threads", h.staff, map[string]string{
		"clientId": "c1", "propertyId": property.ID, "guestName": "Ana",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	thread := decode[models.Thread](t, rec)

	rec = h.do(t, http.MethodPost, "/api/v1/threads/"+thread.ID+"/messages", h.staff, map[string]string{
		"senderType": "guest", "text": "Can we check in early?",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[models.Message](t, rec)
	return &thread, &msg
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequiresToken(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/threads", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateMessage_EnqueuesGuestMessages(t *testing.T) {
	h := newHarness(t)
	thread, msg := h.seedMessage(t)

	rec := h.do(t, http.MethodPost, "/api/v1/threads/"+thread.ID+"/messages", h.staff, map[string]string{
		"senderType": "staff", "text": "Sure, from noon.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, []string{msg.ID}, h.enqueuer.messageIDs)

	rec = h.do(t, http.MethodGet, "/api/v1/threads/"+thread.ID+"/messages", h.staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Message](t, rec), 2)
}

func TestCreateMessage_Validation(t *testing.T) {
	h := newHarness(t)
	thread, _ := h.seedMessage(t)

	rec := h.do(t, http.MethodPost, "/api/v1/threads/"+thread.ID+"/messages", h.staff, map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/threads/missing/messages", h.staff, map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApprovalLifecycle(t *testing.T) {
	h := newHarness(t)
	thread, msg := h.seedMessage(t)
	require.NoError(t, h.threads.SaveAnalysis(context.Background(), &models.Analysis{
		MessageID: msg.ID, ThreadID: thread.ID, Intent: "checkin", Risk: models.RiskLow,
		SuggestedReply: "Early check-in from 1pm is fine.",
	}))

	rec := h.do(t, http.MethodPost, "/api/v1/approvals", h.staff, map[string]string{"messageId": msg.ID, "notes": "escalated"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	approval := decode[models.ApprovalRequest](t, rec)
	assert.Equal(t, models.ApprovalPending, approval.Status)

	rec = h.do(t, http.MethodPost, "/api/v1/approvals", h.staff, map[string]string{"messageId": msg.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/approvals", h.staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.ApprovalRequest](t, rec), 1)

	rec = h.do(t, http.MethodPost, "/api/v1/approvals/"+approval.ID+"/decide", h.staff, map[string]string{"action": "approve"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decided := decode[models.ApprovalRequest](t, rec)
	assert.Equal(t, models.ApprovalApproved, decided.Status)
	assert.Equal(t, "staff-1", decided.ReviewerID)

	rec = h.do(t, http.MethodPost, "/api/v1/approvals/"+approval.ID+"/decide", h.staff, map[string]string{"action": "reject"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	got, err := h.threads.GetThread(context.Background(), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadSent, got.Status)

	rec = h.do(t, http.MethodGet, "/api/v1/send-logs?threadId="+thread.ID, h.manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		SendLogs   []models.SendLog `json:"sendLogs"`
		Pagination audit.PageInfo   `json:"pagination"`
	}](t, rec)
	require.Len(t, page.SendLogs, 1)
	assert.Equal(t, "Early check-in from 1pm is fine.", page.SendLogs[0].FinalReply)
	assert.Equal(t, 1, page.Pagination.Total)

	rec = h.do(t, http.MethodGet, "/api/v1/send-logs", h.staff, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDecide_Errors(t *testing.T) {
	h := newHarness(t)
	_, msg := h.seedMessage(t)

	rec := h.do(t, http.MethodPost, "/api/v1/approvals", h.staff, map[string]string{"messageId": msg.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	approval := decode[models.ApprovalRequest](t, rec)

	tests := []struct {
		name string
		path string
		body map[string]string
		code int
	}{
		{name: "no reply resolvable", path: approval.ID, body: map[string]string{"action": "approve"}, code: http.StatusBadRequest},
		{name: "unknown action", path: approval.ID, body: map[string]string{"action": "archive"}, code: http.StatusBadRequest},
		{name: "missing approval", path: "nope", body: map[string]string{"action": "reject"}, code: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/v1/approvals/"+tt.path+"/decide", h.staff, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec = h.do(t, http.MethodGet, "/api/v1/approvals/"+approval.ID, h.staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ApprovalPending, decode[models.ApprovalRequest](t, rec).Status)
}

func TestBulkDecide_NoMatchesIsOK(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/approvals/bulk", h.staff, map[string]interface{}{
		"messageIds": []string{"m-unknown"}, "action": "reject", "reason": "spam",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, approvals.BulkResult{}, decode[approvals.BulkResult](t, rec))
}

func TestSendDirect_ClosedThreadConflicts(t *testing.T) {
	h := newHarness(t)
	_, msg := h.seedMessage(t)

	rec := h.do(t, http.MethodPost, "/api/v1/messages/"+msg.ID+"/send", h.staff, map[string]string{"reply": "See you soon"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/v1/messages/"+msg.ID+"/send", h.staff, map[string]string{"reply": "Again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSetStatus(t *testing.T) {
	h := newHarness(t)
	thread, _ := h.seedMessage(t)

	rec := h.do(t, http.MethodPatch, "/api/v1/threads/"+thread.ID+"/status", h.staff, map[string]string{"status": "resolved"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ThreadResolved, decode[models.Thread](t, rec).Status)

	rec = h.do(t, http.MethodPatch, "/api/v1/threads/"+thread.ID+"/status", h.staff, map[string]string{"status": "sent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRules(t *testing.T) {
	h := newHarness(t)
	body := map[string]interface{}{"clientId": "c1", "intent": "cancellation", "riskMax": "critical", "action": "queue"}

	rec := h.do(t, http.MethodPost, "/api/v1/rules", h.staff, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/rules", h.manager, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decode[models.AutoRule](t, rec)
	assert.True(t, rule.Enabled)
	assert.Equal(t, models.RiskCritical, rule.RiskMax)

	rec = h.do(t, http.MethodPatch, "/api/v1/rules/"+rule.ID, h.manager, map[string]interface{}{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.AutoRule](t, rec).Enabled)

	rec = h.do(t, http.MethodPost, "/api/v1/rules", h.manager, map[string]interface{}{"clientId": "c1", "action": "escalate"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/rules?clientId=c1", h.staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.AutoRule](t, rec), 1)

	rec = h.do(t, http.MethodGet, "/api/v1/rules", h.staff, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/v1/rules/"+rule.ID, h.manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/rules/"+rule.ID, h.staff, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKnowledgeBase(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/kb", h.manager, map[string]interface{}{
		"clientId": "c1", "title": "Parking", "content": "Garage on level -1", "tags": []string{"parking"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/v1/kb", h.manager, map[string]interface{}{"clientId": "c1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/kb/search?clientId=c1&q=GARAGE", h.staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]models.KbEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "Parking", entries[0].Title)
}

func TestAuditLogs_DateFilterValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/audit-logs?from=yesterday", h.manager, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/audit-logs?from=2026-01-01&to=2026-01-31", h.manager, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
