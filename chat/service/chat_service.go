// Package service runs one chat turn: session bookkeeping, the LLM call and
// logging of the exchange.
package service

import (
	"context"
	"strings"
	"time"

	"research-chat/backend/ai"
	"research-chat/backend/pkg/errors"
	"research-chat/backend/pkg/logger"
	"research-chat/backend/pkg/middleware"
	"research-chat/backend/session"

	"github.com/google/uuid"
)

// Completer produces the assistant reply for a message and its history
type Completer interface {
	Chat(ctx context.Context, history []session.Exchange, message string) (ai.Reply, error)
}

// TurnLogger persists a completed turn
type TurnLogger interface {
	LogConversationTurn(ctx context.Context, sessionID, conversationID, userMessage, assistantMessage string) (bool, error)
}

type ChatService struct {
	sessions     session.Store
	llm          Completer
	turns        TurnLogger
	historyLimit int
	now          func() time.Time
	newID        func() string
	log          *logger.Logger
}

func NewChatService(sessions session.Store, llm Completer, turns TurnLogger, historyLimit int, log *logger.Logger) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &ChatService{
		sessions:     sessions,
		llm:          llm,
		turns:        turns,
		historyLimit: historyLimit,
		now:          time.Now,
		newID:        uuid.NewString,
		log:          log.WithComponent("chat_service"),
	}
}

// Reply answers req. Missing session or conversation ids are generated and
// echoed back in the acknowledgement.
func (s *ChatService) Reply(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Response{}, errors.NewBadRequestError("NO_MESSAGE", "No message provided")
	}
	sessionID := req.Session.SessionID
	if sessionID == "" {
		sessionID = s.newID()
	}
	conversationID := req.Conversation.ConversationID
	if conversationID == "" {
		conversationID = s.newID()
	}

	if _, err := s.sessions.InitSession(ctx, sessionID, string(req.Session.SessionStartTime)); err != nil {
		return Response{}, errors.NewInternalServerError("SESSION_ERROR", "Failed to initialize session: "+err.Error())
	}
	if _, err := s.sessions.InitConversation(ctx, conversationID, sessionID, string(req.Conversation.ConversationStartTime)); err != nil {
		return Response{}, errors.NewInternalServerError("SESSION_ERROR", "Failed to initialize conversation: "+err.Error())
	}

	history, err := s.sessions.RecentExchanges(ctx, conversationID, s.historyLimit)
	if err != nil {
		return Response{}, errors.NewInternalServerError("SESSION_ERROR", "Failed to load history: "+err.Error())
	}

	reply, err := s.llm.Chat(ctx, history, req.Message)
	if err != nil {
		s.log.LogError(err, "llm call failed",
			"request_id", middleware.GetRequestID(ctx),
			"session_id", sessionID, "conversation_id", conversationID)
		return Response{}, errors.NewBadGatewayError("LLM_ERROR", "Failed to get AI response: "+err.Error())
	}

	if err := s.sessions.AddExchange(ctx, conversationID, sessionID, req.Message, reply.Text); err != nil {
		return Response{}, errors.NewInternalServerError("SESSION_ERROR", "Failed to record exchange: "+err.Error())
	}

	logged, err := s.turns.LogConversationTurn(ctx, sessionID, conversationID, req.Message, reply.Text)
	switch {
	case err != nil:
		s.log.Warn("conversation turn not logged", "conversation_id", conversationID, "error", err.Error())
	case !logged:
		s.log.Warn("conversation turn partially logged", "conversation_id", conversationID)
	}

	sess, err := s.sessions.Session(ctx, sessionID)
	if err != nil {
		return Response{}, errors.NewInternalServerError("SESSION_ERROR", "Failed to read session: "+err.Error())
	}
	conv, err := s.sessions.Conversation(ctx, conversationID)
	if err != nil {
		return Response{}, errors.NewInternalServerError("SESSION_ERROR", "Failed to read conversation: "+err.Error())
	}

	now := s.now()
	return Response{
		Response:  reply.Text,
		Timestamp: float64(now.UnixMicro()) / 1e6,
		Status:    "success",
		Provider:  reply.Provider,
		Session: SessionAck{
			SessionID:         sessionID,
			Acknowledged:      true,
			MessageCount:      sess.MessageCount,
			ConversationCount: sess.ConversationCount,
		},
		Conversation: ConversationAck{
			ConversationID: conversationID,
			Acknowledged:   true,
			MessageCount:   conv.MessageCount,
		},
	}, nil
}
