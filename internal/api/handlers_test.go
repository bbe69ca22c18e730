package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapassist/internal/assistant"
	"tapassist/internal/commit"
	"tapassist/internal/conversation"
	"tapassist/internal/model"
)

type memRepo struct {
	mu    sync.Mutex
	convs map[string]*model.Conversation
}

func newMemRepo() *memRepo {
	return &memRepo{convs: map[string]*model.Conversation{}}
}

func (r *memRepo) Get(_ context.Context, merchantID, id string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok || conv.MerchantID != merchantID {
		return nil, conversation.ErrNotFound
	}
	copied := *conv
	copied.Turns = append([]model.Turn(nil), conv.Turns...)
	return &copied, nil
}

func (r *memRepo) List(_ context.Context, merchantID string) ([]*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Conversation
	for _, conv := range r.convs {
		if conv.MerchantID == merchantID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (r *memRepo) Save(_ context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *conv
	copied.Turns = append([]model.Turn(nil), conv.Turns...)
	r.convs[conv.ID] = &copied
	return nil
}

func (r *memRepo) Rename(_ context.Context, merchantID, id, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok || conv.MerchantID != merchantID {
		return conversation.ErrNotFound
	}
	conv.Title = title
	return nil
}

func (r *memRepo) Delete(_ context.Context, merchantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok || conv.MerchantID != merchantID {
		return conversation.ErrNotFound
	}
	delete(r.convs, id)
	return nil
}

type stubService struct {
	reply string
}

func (s *stubService) Send(_ context.Context, _, threadID string) (*assistant.Response, error) {
	if threadID == "" {
		threadID = "t1"
	}
	return &assistant.Response{Content: s.reply, ThreadID: threadID}, nil
}

type memRewardStore struct {
	mu    sync.Mutex
	saved []*model.PersistedReward
}

func (s *memRewardStore) SaveAll(_ context.Context, rewards []*model.PersistedReward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rewards...)
	return nil
}

type anyPinVerifier struct{}

func (anyPinVerifier) Verify(context.Context, string, string) error { return nil }

func newTestServer(repo conversation.Repository, svc assistant.Service, store commit.RewardStore) (*Server, *conversation.Hub) {
	hub := conversation.NewHub(svc, repo)
	engine := commit.NewEngine(store, anyPinVerifier{})
	return NewServer(hub, repo, engine, 5*time.Second, 5*time.Second), hub
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(newMemRepo(), &stubService{reply: "ok"}, &memRewardStore{})

	resp, body := doJSON(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")
}

func TestConversationLifecycle(t *testing.T) {
	repo := newMemRepo()
	s, _ := newTestServer(repo, &stubService{reply: "ok"}, &memRewardStore{})

	// create
	resp, body := doJSON(t, s, http.MethodPost, "/api/merchants/m1/conversations",
		map[string]string{"merchantName": "Cafe Luna"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var conv model.Conversation
	require.NoError(t, sonic.Unmarshal(body, &conv))
	assert.Equal(t, "m1", conv.MerchantID)
	assert.Equal(t, "New chat", conv.Title)
	require.Len(t, conv.Turns, 1)
	assert.Contains(t, conv.Turns[0].Content, "Cafe Luna")

	// list
	resp, body = doJSON(t, s, http.MethodGet, "/api/merchants/m1/conversations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []model.Conversation
	require.NoError(t, sonic.Unmarshal(body, &listed))
	require.Len(t, listed, 1)

	// rename
	resp, _ = doJSON(t, s, http.MethodPatch, "/api/merchants/m1/conversations/"+conv.ID,
		map[string]string{"title": "Coffee campaign"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, s, http.MethodGet, "/api/merchants/m1/conversations/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, sonic.Unmarshal(body, &conv))
	assert.Equal(t, "Coffee campaign", conv.Title)

	// other merchants cannot see it
	resp, _ = doJSON(t, s, http.MethodGet, "/api/merchants/m2/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// delete
	resp, _ = doJSON(t, s, http.MethodDelete, "/api/merchants/m1/conversations/"+conv.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = doJSON(t, s, http.MethodGet, "/api/merchants/m1/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitMessageReturnsParsedReply(t *testing.T) {
	repo := newMemRepo()
	conv := model.NewConversation("c1", "m1", "", time.Now().UTC())
	require.NoError(t, repo.Save(context.Background(), conv))

	svc := &stubService{reply: "Idea:\n```json\n{\"rewardName\": \"Free Coffee\", \"pointsCost\": 50}\n```\nThoughts?"}
	s, _ := newTestServer(repo, svc, &memRewardStore{})

	resp, body := doJSON(t, s, http.MethodPost, "/api/merchants/m1/conversations/c1/messages",
		map[string]string{"message": "coffee reward please"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result conversation.Result
	require.NoError(t, sonic.Unmarshal(body, &result))
	assert.Equal(t, "Idea:", result.Parsed.BeforeText)
	require.Len(t, result.Parsed.Fragments, 1)
	assert.Equal(t, "Free Coffee", result.Parsed.Fragments[0].Reward.RewardName)
}

func TestSubmitMessageValidation(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.Save(context.Background(), model.NewConversation("c1", "m1", "", time.Now().UTC())))
	s, _ := newTestServer(repo, &stubService{reply: "ok"}, &memRewardStore{})

	resp, _ := doJSON(t, s, http.MethodPost, "/api/merchants/m1/conversations/c1/messages",
		map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, s, http.MethodPost, "/api/merchants/m1/conversations/missing/messages",
		map[string]string{"message": "hello"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubNotGrownByUnknownConversations(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.Save(context.Background(), model.NewConversation("c1", "m1", "", time.Now().UTC())))
	s, hub := newTestServer(repo, &stubService{reply: "ok"}, &memRewardStore{})

	// Messages to conversations that never existed leave no machine behind.
	for _, id := range []string{"ghost-1", "ghost-2", "ghost-3"} {
		resp, _ := doJSON(t, s, http.MethodPost, "/api/merchants/m1/conversations/"+id+"/messages",
			map[string]string{"message": "hello"})
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	assert.Zero(t, hub.Len())

	// Commits naming an unknown conversation are rejected before a machine
	// is minted.
	resp, _ := doJSON(t, s, http.MethodPost, "/api/merchants/m1/commits", map[string]any{
		"pin":            "1234",
		"status":         "draft",
		"conversationId": "ghost-4",
		"reward":         map[string]any{"rewardName": "Free Coffee"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, hub.Len())

	// A real conversation still gets exactly one machine.
	resp, _ = doJSON(t, s, http.MethodPost, "/api/merchants/m1/conversations/c1/messages",
		map[string]string{"message": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, hub.Len())
}

func TestCommitReward(t *testing.T) {
	store := &memRewardStore{}
	s, _ := newTestServer(newMemRepo(), &stubService{reply: "ok"}, store)

	resp, body := doJSON(t, s, http.MethodPost, "/api/merchants/m1/commits", map[string]any{
		"pin":    "1234",
		"status": "live",
		"reward": map[string]any{"rewardName": "Free Coffee", "pointsCost": 50},
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var summary model.CommitSummary
	require.NoError(t, sonic.Unmarshal(body, &summary))
	assert.Equal(t, 1, summary.RewardsCommitted)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "m1", store.saved[0].MerchantID)
}

func TestCommitValidation(t *testing.T) {
	s, _ := newTestServer(newMemRepo(), &stubService{reply: "ok"}, &memRewardStore{})

	// missing pin
	resp, _ := doJSON(t, s, http.MethodPost, "/api/merchants/m1/commits", map[string]any{
		"status": "live",
		"reward": map[string]any{"rewardName": "X"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// bad status
	resp, _ = doJSON(t, s, http.MethodPost, "/api/merchants/m1/commits", map[string]any{
		"pin":    "1234",
		"status": "archived",
		"reward": map[string]any{"rewardName": "X"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// neither reward nor program
	resp, _ = doJSON(t, s, http.MethodPost, "/api/merchants/m1/commits", map[string]any{
		"pin":    "1234",
		"status": "live",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// both reward and program
	resp, _ = doJSON(t, s, http.MethodPost, "/api/merchants/m1/commits", map[string]any{
		"pin":     "1234",
		"status":  "live",
		"reward":  map[string]any{"rewardName": "X"},
		"program": map[string]any{"programName": "P", "rewards": []any{}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// malformed pin
	resp, _ = doJSON(t, s, http.MethodPost, "/api/merchants/m1/commits", map[string]any{
		"pin":    "12ab",
		"status": "live",
		"reward": map[string]any{"rewardName": "X"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommitBlocksConversationWhileSettling(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.Save(context.Background(), model.NewConversation("c1", "m1", "", time.Now().UTC())))
	s, _ := newTestServer(repo, &stubService{reply: "ok"}, &memRewardStore{})

	resp, _ := doJSON(t, s, http.MethodPost, "/api/merchants/m1/commits", map[string]any{
		"pin":            "1234",
		"status":         "draft",
		"conversationId": "c1",
		"reward":         map[string]any{"rewardName": "Free Coffee"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The gate is released once the commit settles.
	resp, _ = doJSON(t, s, http.MethodPost, "/api/merchants/m1/conversations/c1/messages",
		map[string]string{"message": "hello again"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
