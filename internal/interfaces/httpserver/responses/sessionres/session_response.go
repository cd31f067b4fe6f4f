package sessionres

import (
	"time"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/quota"
	"jan-server/services/chat-api/internal/domain/session"
	"jan-server/services/chat-api/internal/domain/turn"
)

type SessionResponse struct {
	ID        string        `json:"id"`
	Object    string        `json:"object"`
	Anonymous bool          `json:"anonymous"`
	CreatedAt int64         `json:"created_at"`
	State     turn.Snapshot `json:"state"`
}

type ConversationResponse struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Title     string `json:"title"`
	Model     string `json:"model,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type ConversationListResponse struct {
	Object string                 `json:"object"`
	Data   []ConversationResponse `json:"data"`
	Total  int                    `json:"total"`
}

type QuotaResponse struct {
	Object         string `json:"object"`
	Used           int    `json:"used"`
	Limit          int    `json:"limit"`
	Remaining      int    `json:"remaining"`
	BurstRemaining int    `json:"burst_remaining"`
	WindowResetAt  *int64 `json:"window_reset_at,omitempty"`
}

type DeletedResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

func NewSessionResponse(s *session.Session) *SessionResponse {
	return &SessionResponse{
		ID:        s.ID,
		Object:    "chat.session",
		Anonymous: s.Identity.Anonymous(),
		CreatedAt: s.CreatedAt.Unix(),
		State:     s.Orchestrator.Snapshot(),
	}
}

func NewConversationListResponse(items []conversation.Conversation) *ConversationListResponse {
	data := make([]ConversationResponse, 0, len(items))
	for _, c := range items {
		data = append(data, ConversationResponse{
			ID:        c.ID,
			Object:    "conversation",
			Title:     c.Title,
			Model:     c.Model,
			CreatedAt: c.CreatedAt.Unix(),
			UpdatedAt: c.UpdatedAt.Unix(),
		})
	}
	return &ConversationListResponse{Object: "list", Data: data, Total: len(data)}
}

// NewQuotaResponse reports a non-positive limit as unlimited.
func NewQuotaResponse(stats quota.Stats) *QuotaResponse {
	resp := &QuotaResponse{
		Object:         "chat.quota",
		Used:           stats.Used,
		Limit:          stats.Limit,
		BurstRemaining: stats.BurstRemaining,
		Remaining:      -1,
	}
	if stats.Limit > 0 {
		resp.Remaining = max(stats.Limit-stats.Used, 0)
	}
	if !stats.WindowResetAt.IsZero() {
		reset := stats.WindowResetAt.Truncate(time.Second).Unix()
		resp.WindowResetAt = &reset
	}
	return resp
}
