// Package assistant is the client for the chat service behind the console:
// it carries thread history, renders the prompt, and calls the configured
// chat model provider.
package assistant

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Response is one assistant reply. ThreadID echoes the thread the reply was
// produced on, which may differ from the request's thread after a rollover.
type Response struct {
	Content  string `json:"content"`
	ThreadID string `json:"threadId"`
}

// Service is the surface the conversation layer depends on.
type Service interface {
	Send(ctx context.Context, message, threadID string) (*Response, error)
}

// ServiceError marks a failure while talking to the assistant service, as
// opposed to a local persistence failure. Callers use it to decide whether an
// apology turn should be synthesized.
type ServiceError struct {
	Provider string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("assistant service (%s): %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Client implements Service on top of an eino chat model.
type Client struct {
	provider    string
	model       model.BaseChatModel
	template    prompt.ChatTemplate
	threads     ThreadStore
	threadLimit int
	newThreadID func() string
}

// NewClient wires a chat model and thread store into a Service. A thread
// limit below 2 disables rollover.
func NewClient(cfg Config, chatModel model.BaseChatModel, threads ThreadStore) *Client {
	return &Client{
		provider:    cfg.Provider,
		model:       chatModel,
		template:    buildTemplate(),
		threads:     threads,
		threadLimit: cfg.ThreadLimit,
		newThreadID: uuid.NewString,
	}
}

// Send produces the assistant's reply to a merchant message. An empty
// threadID starts a fresh thread; a thread at capacity is rolled over to a
// new one so the prompt never grows without bound. Callers keep passing the
// id they were first given: rollovers are tracked through a thread alias, so
// the active thread's history keeps flowing into later calls.
func (c *Client) Send(ctx context.Context, message, threadID string) (*Response, error) {
	var history []*schema.Message
	original := threadID

	if threadID == "" {
		threadID = c.newThreadID()
	} else {
		current, err := c.threads.Resolve(ctx, threadID)
		if err != nil {
			log.Warn().Err(err).Str("thread_id", threadID).Msg("thread alias unavailable, using original thread")
		} else {
			threadID = current
		}
		loaded, err := c.threads.Load(ctx, threadID)
		if err != nil {
			log.Warn().Err(err).Str("thread_id", threadID).Msg("thread history unavailable, continuing without it")
		} else {
			history = loaded
		}
	}

	if c.threadLimit >= 2 && len(history) >= c.threadLimit {
		rolled := c.newThreadID()
		log.Info().Str("from", threadID).Str("to", rolled).Int("messages", len(history)).Msg("thread at capacity, rolling over")
		if err := c.threads.SetAlias(ctx, original, rolled); err != nil {
			log.Warn().Err(err).Str("thread_id", original).Msg("failed to record thread alias")
		}
		threadID = rolled
		history = nil
	}

	messages, err := c.template.Format(ctx, map[string]any{
		"history":      history,
		"user_message": message,
	})
	if err != nil {
		return nil, fmt.Errorf("error formatting prompt: %w", err)
	}

	reply, err := c.model.Generate(ctx, messages)
	if err != nil {
		return nil, &ServiceError{Provider: c.provider, Err: err}
	}

	// History is best effort. A cache write failure must not surface as a
	// failed send.
	appendErr := c.threads.Append(ctx, threadID,
		schema.UserMessage(message),
		schema.AssistantMessage(reply.Content, nil),
	)
	if appendErr != nil {
		log.Warn().Err(appendErr).Str("thread_id", threadID).Msg("failed to cache thread history")
	}

	return &Response{Content: reply.Content, ThreadID: threadID}, nil
}
