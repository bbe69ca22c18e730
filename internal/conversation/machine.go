// Package conversation owns the merchant chat lifecycle: the durable
// transcript, its hot cache, and the per-conversation turn state machine
// that serializes message submission.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tapassist/internal/assistant"
	"tapassist/internal/extract"
	"tapassist/internal/model"
)

// Status is the submission state of one conversation.
type Status string

const (
	// StatusIdle accepts new messages.
	StatusIdle Status = "idle"
	// StatusAwaitingResponse means a service call is in flight; further
	// submissions are rejected until it settles.
	StatusAwaitingResponse Status = "awaiting_response"
	// StatusFailed means the transcript could not be persisted after a
	// service response. The conversation stays failed until reloaded.
	StatusFailed Status = "failed"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a response is already pending")
	ErrPinGateOpen  = errors.New("commit confirmation in progress")
	ErrFailed       = errors.New("conversation is in a failed state")
)

// Result is the outcome of one accepted submission. ServiceFailed marks the
// apology path: the assistant turn exists and is persisted, but it is the
// canned apology rather than a real reply.
type Result struct {
	AssistantTurn model.Turn         `json:"assistantTurn"`
	Parsed        extract.ParsedTurn `json:"parsed"`
	ServiceFailed bool               `json:"serviceFailed,omitempty"`
}

const titleLimit = 50

// Machine serializes submissions for a single conversation. All transitions
// happen under its lock; the service call itself runs unlocked so a slow
// model cannot block status checks.
type Machine struct {
	mu     sync.Mutex
	svc    assistant.Service
	repo   Repository
	status Status

	merchantID     string
	conversationID string
	pinGateOpen    bool
	now            func() time.Time
}

func newMachine(svc assistant.Service, repo Repository, merchantID, conversationID string) *Machine {
	return &Machine{
		svc:            svc,
		repo:           repo,
		status:         StatusIdle,
		merchantID:     merchantID,
		conversationID: conversationID,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Status reports the current submission state.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// OpenPinGate blocks submissions while a commit confirmation dialog is up.
func (m *Machine) OpenPinGate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinGateOpen = true
}

// ClosePinGate re-enables submissions after the commit dialog settles.
func (m *Machine) ClosePinGate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinGateOpen = false
}

// Submit runs one user message through the full turn cycle: persist the user
// turn, call the service, persist the assistant turn, and return the parsed
// reply. On a service failure the canned apology is appended instead and the
// conversation returns to idle. Only a transcript persistence failure after
// the service responded moves the machine to failed.
func (m *Machine) Submit(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	m.mu.Lock()
	switch {
	case m.status == StatusFailed:
		m.mu.Unlock()
		return nil, ErrFailed
	case m.status == StatusAwaitingResponse:
		m.mu.Unlock()
		return nil, ErrBusy
	case m.pinGateOpen:
		m.mu.Unlock()
		return nil, ErrPinGateOpen
	}

	conv, err := m.repo.Get(ctx, m.merchantID, m.conversationID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	// The user turn is appended optimistically, before the service call, so
	// the merchant sees their message immediately even if the reply is slow.
	conv.Turns = append(conv.Turns, model.Turn{
		Role:      model.RoleUser,
		Content:   text,
		CreatedAt: m.now(),
	})
	if conv.Title == "" || conv.Title == "New chat" {
		conv.Title = deriveTitle(text)
	}
	if err := m.repo.Save(ctx, conv); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to persist user turn: %w", err)
	}
	m.status = StatusAwaitingResponse
	threadID := conv.ThreadID
	m.mu.Unlock()

	resp, sendErr := m.svc.Send(ctx, text, threadID)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Reload under the lock: the conversation may have been renamed while
	// the service call was in flight, and the response still attaches.
	conv, err = m.repo.Get(ctx, m.merchantID, m.conversationID)
	if err != nil {
		m.status = StatusFailed
		return nil, fmt.Errorf("failed to reload conversation: %w", err)
	}

	result := &Result{}
	if sendErr != nil {
		log.Error().Err(sendErr).Str("conversation_id", m.conversationID).Msg("assistant service call failed")
		result.ServiceFailed = true
		result.AssistantTurn = model.Turn{
			Role:      model.RoleAssistant,
			Content:   model.ApologyMessage,
			CreatedAt: m.now(),
		}
	} else {
		if conv.ThreadID == "" {
			conv.ThreadID = resp.ThreadID
		}
		result.AssistantTurn = model.Turn{
			Role:      model.RoleAssistant,
			Content:   resp.Content,
			CreatedAt: m.now(),
		}
		result.Parsed = extract.ParseTurn(resp.Content)
	}

	conv.Turns = append(conv.Turns, result.AssistantTurn)
	if err := m.repo.Save(ctx, conv); err != nil {
		m.status = StatusFailed
		return nil, fmt.Errorf("failed to persist assistant turn: %w", err)
	}

	m.status = StatusIdle
	if result.ServiceFailed {
		result.Parsed = extract.ParseTurn(result.AssistantTurn.Content)
	}
	return result, nil
}

// deriveTitle names a fresh conversation after its first user message.
func deriveTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if runes := []rune(title); len(runes) > titleLimit {
		title = strings.TrimSpace(string(runes[:titleLimit])) + "..."
	}
	return title
}

// Hub hands out one machine per conversation so concurrent requests for the
// same conversation share submission state.
type Hub struct {
	mu       sync.Mutex
	svc      assistant.Service
	repo     Repository
	machines map[string]*Machine
}

func NewHub(svc assistant.Service, repo Repository) *Hub {
	return &Hub{
		svc:      svc,
		repo:     repo,
		machines: make(map[string]*Machine),
	}
}

// Machine returns the machine for a conversation, creating it on first use.
func (h *Hub) Machine(merchantID, conversationID string) *Machine {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := merchantID + "/" + conversationID
	m, ok := h.machines[key]
	if !ok {
		m = newMachine(h.svc, h.repo, merchantID, conversationID)
		h.machines[key] = m
	}
	return m
}

// Forget drops a conversation's machine, e.g. after deletion.
func (h *Hub) Forget(merchantID, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.machines, merchantID+"/"+conversationID)
}

// Len reports how many machines the hub currently retains.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.machines)
}
