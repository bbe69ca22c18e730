package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

type memoryThreadStore struct {
	threads map[string][]*schema.Message
	aliases map[string]string
	loadErr error
	saveErr error
}

func newMemoryThreadStore() *memoryThreadStore {
	return &memoryThreadStore{
		threads: map[string][]*schema.Message{},
		aliases: map[string]string{},
	}
}

func (m *memoryThreadStore) Load(_ context.Context, threadID string) ([]*schema.Message, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.threads[threadID], nil
}

func (m *memoryThreadStore) Append(_ context.Context, threadID string, messages ...*schema.Message) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.threads[threadID] = append(m.threads[threadID], messages...)
	return nil
}

func (m *memoryThreadStore) Resolve(_ context.Context, threadID string) (string, error) {
	if m.loadErr != nil {
		return "", m.loadErr
	}
	if current, ok := m.aliases[threadID]; ok {
		return current, nil
	}
	return threadID, nil
}

func (m *memoryThreadStore) SetAlias(_ context.Context, original, current string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.aliases[original] = current
	return nil
}

func (m *memoryThreadStore) HealthCheck(context.Context) error { return nil }

func newTestClient(cm model.BaseChatModel, store ThreadStore, limit int) *Client {
	c := NewClient(Config{Provider: "openai", ThreadLimit: limit}, cm, store)
	n := 0
	c.newThreadID = func() string {
		n++
		return "thread-" + string(rune('a'+n-1))
	}
	return c
}

func TestSendStartsNewThread(t *testing.T) {
	cm := &fakeChatModel{reply: "Hello merchant!"}
	store := newMemoryThreadStore()
	client := newTestClient(cm, store, 10)

	resp, err := client.Send(context.Background(), "hi", "")

	require.NoError(t, err)
	assert.Equal(t, "Hello merchant!", resp.Content)
	assert.Equal(t, "thread-a", resp.ThreadID)
	assert.Len(t, store.threads["thread-a"], 2)
}

func TestSendReusesThreadHistory(t *testing.T) {
	cm := &fakeChatModel{reply: "second reply"}
	store := newMemoryThreadStore()
	store.threads["t1"] = []*schema.Message{
		schema.UserMessage("earlier question"),
		schema.AssistantMessage("earlier answer", nil),
	}
	client := newTestClient(cm, store, 10)

	resp, err := client.Send(context.Background(), "follow up", "t1")

	require.NoError(t, err)
	assert.Equal(t, "t1", resp.ThreadID)
	// system + 2 history + current user message
	require.Len(t, cm.seen, 4)
	assert.Equal(t, schema.System, cm.seen[0].Role)
	assert.Equal(t, "earlier question", cm.seen[1].Content)
	assert.Equal(t, "follow up", cm.seen[3].Content)
	assert.Len(t, store.threads["t1"], 4)
}

func TestSendRollsOverFullThread(t *testing.T) {
	cm := &fakeChatModel{reply: "fresh start"}
	store := newMemoryThreadStore()
	full := make([]*schema.Message, 0, 10)
	for i := 0; i < 5; i++ {
		full = append(full, schema.UserMessage("q"), schema.AssistantMessage("a", nil))
	}
	store.threads["t1"] = full
	client := newTestClient(cm, store, 10)

	resp, err := client.Send(context.Background(), "next", "t1")

	require.NoError(t, err)
	assert.NotEqual(t, "t1", resp.ThreadID)
	// Rolled-over thread starts empty: system + current message only.
	require.Len(t, cm.seen, 2)
	assert.Len(t, store.threads[resp.ThreadID], 2)
	assert.Len(t, store.threads["t1"], 10)
	assert.Equal(t, resp.ThreadID, store.aliases["t1"])
}

func TestSendKeepsContextAcrossRollover(t *testing.T) {
	cm := &fakeChatModel{reply: "noted"}
	store := newMemoryThreadStore()
	store.threads["t1"] = []*schema.Message{
		schema.UserMessage("q1"), schema.AssistantMessage("a1", nil),
		schema.UserMessage("q2"), schema.AssistantMessage("a2", nil),
	}
	client := newTestClient(cm, store, 4)

	// First send past the cap rolls to a fresh thread.
	resp, err := client.Send(context.Background(), "after the cap", "t1")
	require.NoError(t, err)
	rolled := resp.ThreadID
	require.NotEqual(t, "t1", rolled)

	// Callers keep passing the original id; the second send must land on the
	// rolled thread and see the first post-cap exchange as history.
	resp, err = client.Send(context.Background(), "still with me?", "t1")
	require.NoError(t, err)
	assert.Equal(t, rolled, resp.ThreadID)
	require.Len(t, cm.seen, 4)
	assert.Equal(t, "after the cap", cm.seen[1].Content)
	assert.Equal(t, "noted", cm.seen[2].Content)
	assert.Equal(t, "still with me?", cm.seen[3].Content)
	assert.Len(t, store.threads[rolled], 4)

	// A third send fills the rolled thread to its cap and rolls again,
	// repointing the original alias.
	resp, err = client.Send(context.Background(), "one more", "t1")
	require.NoError(t, err)
	assert.NotEqual(t, rolled, resp.ThreadID)
	assert.Equal(t, resp.ThreadID, store.aliases["t1"])
	require.Len(t, cm.seen, 2)
	assert.Equal(t, "one more", cm.seen[1].Content)
}

func TestSendModelFailureIsServiceError(t *testing.T) {
	cm := &fakeChatModel{err: errors.New("upstream timeout")}
	client := newTestClient(cm, newMemoryThreadStore(), 10)

	_, err := client.Send(context.Background(), "hi", "")

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "openai", svcErr.Provider)
}

func TestSendToleratesHistoryFailures(t *testing.T) {
	cm := &fakeChatModel{reply: "still works"}
	store := newMemoryThreadStore()
	store.loadErr = errors.New("redis down")
	store.saveErr = errors.New("redis down")
	client := newTestClient(cm, store, 10)

	resp, err := client.Send(context.Background(), "hi", "t1")

	require.NoError(t, err)
	assert.Equal(t, "still works", resp.Content)
	assert.Equal(t, "t1", resp.ThreadID)
}
