package models

import (
	"strings"
	"time"
)

// Tenancy models

// Client is a property-management company (top-level tenant)
type Client struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Property belongs to exactly one client
type Property struct {
	ID        string    `json:"id" db:"id"`
	ClientID  string    `json:"client_id" db:"client_id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address,omitempty" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Conversation models

type ThreadStatus string

const (
	ThreadPending  ThreadStatus = "pending"
	ThreadOpen     ThreadStatus = "open"
	ThreadResolved ThreadStatus = "resolved"
	ThreadClosed   ThreadStatus = "closed"
	ThreadSent     ThreadStatus = "sent"
	ThreadDeclined ThreadStatus = "declined"
)

// Valid reports whether s is one of the known thread statuses
func (s ThreadStatus) Valid() bool {
	switch s {
	case ThreadPending, ThreadOpen, ThreadResolved, ThreadClosed, ThreadSent, ThreadDeclined:
		return true
	}
	return false
}

// Thread is a guest conversation scoped to a client's property
type Thread struct {
	ID             string       `json:"id" db:"id"`
	ClientID       string       `json:"client_id" db:"client_id"`
	PropertyID     string       `json:"property_id" db:"property_id"`
	GuestName      string       `json:"guest_name" db:"guest_name"`
	GuestEmail     string       `json:"guest_email,omitempty" db:"guest_email"`
	Status         ThreadStatus `json:"status" db:"status"`
	LastReceivedAt time.Time    `json:"last_received_at" db:"last_received_at"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

type SenderType string

const (
	SenderGuest SenderType = "guest"
	SenderStaff SenderType = "staff"
)

// Message is immutable once created
type Message struct {
	ID         string     `json:"id" db:"id"`
	ThreadID   string     `json:"thread_id" db:"thread_id"`
	SenderType SenderType `json:"sender_type" db:"sender_type"`
	Text       string     `json:"text" db:"text"`
	ReceivedAt time.Time  `json:"received_at" db:"received_at"`
}

// RiskLevel is an ordered tier: low < medium < high < critical
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// ParseRiskLevel normalizes s and reports whether it names a known tier
func ParseRiskLevel(s string) (RiskLevel, bool) {
	r := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	_, ok := riskRank[r]
	return r, ok
}

// Rank returns the position of r on the risk scale, or -1 when r is unknown
func (r RiskLevel) Rank() int {
	if rank, ok := riskRank[RiskLevel(strings.ToLower(string(r)))]; ok {
		return rank
	}
	return -1
}

// Analysis is the classification attached one-to-one to a guest message
type Analysis struct {
	MessageID      string    `json:"message_id" db:"message_id"`
	ThreadID       string    `json:"thread_id" db:"thread_id"`
	Intent         string    `json:"intent" db:"intent"`
	Risk           RiskLevel `json:"risk" db:"risk"`
	Urgency        string    `json:"urgency" db:"urgency"`
	SuggestedReply string    `json:"suggested_reply" db:"suggested_reply"`
	ThreadSummary  string    `json:"thread_summary" db:"thread_summary"`
	Confidence     float64   `json:"confidence" db:"confidence"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Approval workflow models

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// ApprovalRequest gates the reply to one guest message
type ApprovalRequest struct {
	ID         string         `json:"id" db:"id"`
	MessageID  string         `json:"message_id" db:"message_id"`
	ThreadID   string         `json:"thread_id" db:"thread_id"`
	RuleID     string         `json:"rule_id,omitempty" db:"rule_id"`
	Status     ApprovalStatus `json:"status" db:"status"`
	ReviewerID string         `json:"reviewer_id,omitempty" db:"reviewer_id"`
	Notes      string         `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// Auto-rule models

type RuleAction string

const (
	ActionQueue    RuleAction = "queue"
	ActionTemplate RuleAction = "template"
	ActionAutoSend RuleAction = "auto_send"
)

// Valid reports whether a is a known rule action
func (a RuleAction) Valid() bool {
	switch a {
	case ActionQueue, ActionTemplate, ActionAutoSend:
		return true
	}
	return false
}

// AutoRule is scoped to a client and, when PropertyID is set, to a single property.
// Empty Intent, PropertyID or RiskMax mean "unset".
type AutoRule struct {
	ID         string                 `json:"id" db:"id"`
	ClientID   string                 `json:"client_id" db:"client_id"`
	PropertyID string                 `json:"property_id,omitempty" db:"property_id"`
	Intent     string                 `json:"intent,omitempty" db:"intent"`
	RiskMax    RiskLevel              `json:"risk_max,omitempty" db:"risk_max"`
	Conditions map[string]interface{} `json:"conditions" db:"conditions"`
	Action     RuleAction             `json:"action" db:"action"`
	Enabled    bool                   `json:"enabled" db:"enabled"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// ClientWide reports whether the rule applies to every property of its client
func (r *AutoRule) ClientWide() bool {
	return r.PropertyID == ""
}

// Records

// SendLog documents one dispatched reply; immutable after creation
type SendLog struct {
	ID           string     `json:"id" db:"id"`
	MessageID    string     `json:"message_id" db:"message_id"`
	ThreadID     string     `json:"thread_id" db:"thread_id"`
	FinalReply   string     `json:"final_reply" db:"final_reply"`
	Channel      string     `json:"channel" db:"channel"`
	SentByUserID string     `json:"sent_by_user_id" db:"sent_by_user_id"`
	ApprovalID   string     `json:"approval_id,omitempty" db:"approval_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty" db:"dispatched_at"`
}

// AuditLog records one operator or system action
type AuditLog struct {
	ID          string                 `json:"id" db:"id"`
	ActorUserID string                 `json:"actor_user_id" db:"actor_user_id"`
	Action      string                 `json:"action" db:"action"`
	EntityType  string                 `json:"entity_type" db:"entity_type"`
	EntityID    string                 `json:"entity_id" db:"entity_id"`
	Meta        map[string]interface{} `json:"meta,omitempty" db:"meta"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

// KbEntry is a knowledge-base article; an empty PropertyID means client-wide
type KbEntry struct {
	ID         string    `json:"id" db:"id"`
	ClientID   string    `json:"client_id" db:"client_id"`
	PropertyID string    `json:"property_id,omitempty" db:"property_id"`
	Title      string    `json:"title" db:"title"`
	Content    string    `json:"content" db:"content"`
	Tags       []string  `json:"tags" db:"tags"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
