// Package api exposes the console's HTTP surface: conversation management,
// message submission, and reward commits.
package api

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"tapassist/internal/commit"
	"tapassist/internal/conversation"
)

// Server bundles the handlers and their dependencies.
type Server struct {
	app      *fiber.App
	hub      *conversation.Hub
	repo     conversation.Repository
	engine   *commit.Engine
	validate *validator.Validate
}

// NewServer builds the fiber app with all routes registered.
func NewServer(hub *conversation.Hub, repo conversation.Repository, engine *commit.Engine, readTimeout, writeTimeout time.Duration) *Server {
	s := &Server{
		hub:      hub,
		repo:     repo,
		engine:   engine,
		validate: validator.New(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "tapassist",
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		ErrorHandler: errorHandler,
	})
	s.app.Use(recover.New())

	s.app.Get("/health", s.handleHealth)

	merchants := s.app.Group("/api/merchants/:merchantId")
	merchants.Get("/conversations", s.handleListConversations)
	merchants.Post("/conversations", s.handleCreateConversation)
	merchants.Get("/conversations/:id", s.handleGetConversation)
	merchants.Patch("/conversations/:id", s.handleRenameConversation)
	merchants.Delete("/conversations/:id", s.handleDeleteConversation)
	merchants.Post("/conversations/:id/messages", s.handleSubmitMessage)
	merchants.Post("/commits", s.handleCommit)

	return s
}

// Listen blocks serving HTTP until shutdown.
func (s *Server) Listen(addr string) error {
	log.Info().Str("addr", addr).Msg("http server listening")
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
