package api

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"tapassist/internal/commit"
	"tapassist/internal/conversation"
	"tapassist/internal/model"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	convs, err := s.repo.List(c.Context(), c.Params("merchantId"))
	if err != nil {
		return err
	}
	if convs == nil {
		convs = []*model.Conversation{}
	}
	return c.JSON(convs)
}

type createConversationRequest struct {
	MerchantName string `json:"merchantName"`
}

func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	var req createConversationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	conv := model.NewConversation(uuid.NewString(), c.Params("merchantId"), req.MerchantName, time.Now().UTC())
	if err := s.repo.Save(c.Context(), conv); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	conv, err := s.repo.Get(c.Context(), c.Params("merchantId"), c.Params("id"))
	if err != nil {
		return mapConversationError(err)
	}
	return c.JSON(conv)
}

type renameConversationRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

func (s *Server) handleRenameConversation(c *fiber.Ctx) error {
	var req renameConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := s.repo.Rename(c.Context(), c.Params("merchantId"), c.Params("id"), req.Title); err != nil {
		return mapConversationError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	merchantID, id := c.Params("merchantId"), c.Params("id")
	if err := s.repo.Delete(c.Context(), merchantID, id); err != nil {
		return mapConversationError(err)
	}
	s.hub.Forget(merchantID, id)
	return c.SendStatus(fiber.StatusNoContent)
}

type submitMessageRequest struct {
	Message string `json:"message" validate:"required"`
}

func (s *Server) handleSubmitMessage(c *fiber.Ctx) error {
	var req submitMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	merchantID, id := c.Params("merchantId"), c.Params("id")
	machine := s.hub.Machine(merchantID, id)
	result, err := machine.Submit(c.Context(), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrEmptyMessage):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, conversation.ErrBusy), errors.Is(err, conversation.ErrPinGateOpen):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case errors.Is(err, conversation.ErrFailed):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case errors.Is(err, conversation.ErrNotFound):
			// Don't retain machines minted for conversations that never
			// existed.
			s.hub.Forget(merchantID, id)
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		default:
			return err
		}
	}
	return c.JSON(result)
}

// commitRequest carries exactly one of reward or program.
type commitRequest struct {
	PIN            string         `json:"pin" validate:"required"`
	Status         string         `json:"status" validate:"required,oneof=draft live"`
	ConversationID string         `json:"conversationId"`
	Reward         *model.Reward  `json:"reward"`
	Program        *model.Program `json:"program"`
}

func (s *Server) handleCommit(c *fiber.Ctx) error {
	var req commitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fiber.NewError(fiber.StatusBadRequest, verrs.Error())
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if (req.Reward == nil) == (req.Program == nil) {
		return fiber.NewError(fiber.StatusBadRequest, "exactly one of reward or program is required")
	}

	merchantID := c.Params("merchantId")

	// While the commit is settling, the owning conversation rejects new
	// messages so the confirmed suggestion cannot be superseded mid-commit.
	// The conversation must exist first: minting machines for arbitrary ids
	// would let commit requests grow the hub without bound.
	if req.ConversationID != "" {
		if _, err := s.repo.Get(c.Context(), merchantID, req.ConversationID); err != nil {
			return mapConversationError(err)
		}
		machine := s.hub.Machine(merchantID, req.ConversationID)
		machine.OpenPinGate()
		defer machine.ClosePinGate()
	}

	var sel commit.Selection
	if req.Reward != nil {
		sel = commit.RewardSelection{Reward: *req.Reward}
	} else {
		sel = commit.ProgramSelection{Program: *req.Program}
	}

	summary, err := s.engine.Commit(c.Context(), merchantID, sel, req.PIN, model.RewardStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, commit.ErrInvalidPin), errors.Is(err, commit.ErrEmptyProgram):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, commit.ErrNotAuthorized):
			return fiber.NewError(fiber.StatusForbidden, err.Error())
		default:
			var perr *commit.PersistenceError
			if errors.As(err, &perr) {
				return fiber.NewError(fiber.StatusBadGateway, err.Error())
			}
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	return c.Status(fiber.StatusCreated).JSON(summary)
}

func mapConversationError(err error) error {
	if errors.Is(err, conversation.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return err
}
