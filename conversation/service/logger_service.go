package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"research-chat/backend/conversation/models"
	"research-chat/backend/conversation/sink"
	"research-chat/backend/pkg/errors"
	"research-chat/backend/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoPrimarySink is wrapped in the StorageError returned by reads when no sink can serve them
var ErrNoPrimarySink = stderrors.New("no primary sink configured")

// ErrProtectedPath is wrapped in the StorageError returned when an export targets a store file
var ErrProtectedPath = stderrors.New("export path is a protected file")

// SessionReader is implemented by sinks that can list a session's messages
type SessionReader interface {
	ReadSession(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
}

// Options tune a ConversationLogger
type Options struct {
	Roles   models.RolePolicy
	Now     func() time.Time
	Metrics *Metrics
	Tracer  trace.Tracer

	// Protected lists files exports must never replace, such as the local database
	Protected []string
}

// ConversationLogger fans each chat turn out to the configured sinks and
// serves reads from the primary one.
type ConversationLogger struct {
	sinks     []sink.Binding
	primary   sink.Sink
	roles     models.RolePolicy
	clock     *Clock
	metrics   *Metrics
	tracer    trace.Tracer
	protected []string
	log       *logger.Logger
}

// NewConversationLogger builds a logger over bindings. The primary sink is the
// first one able to report stats, falling back to the first binding.
func NewConversationLogger(bindings []sink.Binding, log *logger.Logger, opts Options) *ConversationLogger {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("research-chat/conversation")
	}

	l := &ConversationLogger{
		sinks:     bindings,
		roles:     opts.Roles,
		clock:     NewClock(opts.Now),
		metrics:   opts.Metrics,
		tracer:    tracer,
		protected: opts.Protected,
		log:       log.WithComponent("conversation_logger"),
	}
	for _, b := range bindings {
		if _, ok := b.Sink.(sink.StatsReader); ok {
			l.primary = b.Sink
			break
		}
	}
	if l.primary == nil && len(bindings) > 0 {
		l.primary = bindings[0].Sink
	}
	return l
}

// Sinks returns the configured bindings in dispatch order
func (l *ConversationLogger) Sinks() []sink.Binding {
	return l.sinks
}

// LogMessage validates one message and writes it to every sink.
// It returns false with a ValidationError when the input is rejected and
// false with a nil error when a required sink failed.
func (l *ConversationLogger) LogMessage(ctx context.Context, sessionID, conversationID, content, role string) (bool, error) {
	msg, err := l.newMessage(sessionID, conversationID, content, role)
	if err != nil {
		l.metrics.recordOutcome(ctx, "rejected")
		l.log.Warn("chat message rejected",
			"session_id", sessionID,
			"conversation_id", conversationID,
			"error", err.Error(),
		)
		return false, err
	}
	return l.dispatch(ctx, msg), nil
}

// LogConversationTurn logs the user message and then the assistant reply.
// The reply is attempted even when the user message failed.
func (l *ConversationLogger) LogConversationTurn(ctx context.Context, sessionID, conversationID, userMessage, assistantMessage string) (bool, error) {
	userOK, userErr := l.LogMessage(ctx, sessionID, conversationID, userMessage, string(models.RoleUser))
	assistantOK, assistantErr := l.LogMessage(ctx, sessionID, conversationID, assistantMessage, string(models.RoleAssistant))
	return userOK && assistantOK, stderrors.Join(userErr, assistantErr)
}

func (l *ConversationLogger) newMessage(sessionID, conversationID, content, role string) (models.ChatMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return models.ChatMessage{}, errors.NewValidationError("session_id", "must not be empty")
	}
	if strings.TrimSpace(conversationID) == "" {
		return models.ChatMessage{}, errors.NewValidationError("conversation_id", "must not be empty")
	}
	if strings.TrimSpace(content) == "" {
		return models.ChatMessage{}, errors.NewValidationError("content", "must not be empty")
	}
	r, err := models.ParseRole(role, l.roles)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return models.ChatMessage{
		SessionID:      sessionID,
		ConversationID: conversationID,
		Content:        content,
		Role:           r,
		CreatedAt:      l.clock.Next(),
	}, nil
}

func (l *ConversationLogger) dispatch(ctx context.Context, msg models.ChatMessage) bool {
	// writes run to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	ctx, span := l.tracer.Start(ctx, "conversation.log_message", trace.WithAttributes(
		attribute.String("conversation_id", msg.ConversationID),
		attribute.String("role", string(msg.Role)),
	))
	defer span.End()

	ok := true
	for _, b := range l.sinks {
		start := time.Now()
		err := b.Sink.Write(ctx, msg)
		l.metrics.recordWrite(ctx, b.Sink.Name(), err, time.Since(start))
		if err == nil {
			continue
		}

		span.RecordError(err)
		attrs := []any{
			"sink", b.Sink.Name(),
			"required", b.Required,
			"session_id", msg.SessionID,
			"conversation_id", msg.ConversationID,
			"role", string(msg.Role),
		}
		if b.Required {
			ok = false
			l.log.LogError(err, "required sink write failed", attrs...)
		} else {
			l.log.Warn("optional sink write failed", append(attrs, "error", err.Error())...)
		}
	}

	if ok {
		l.metrics.recordOutcome(ctx, "logged")
	} else {
		span.SetStatus(codes.Error, "required sink failed")
		l.metrics.recordOutcome(ctx, "failed")
	}
	return ok
}

// GetConversation returns the messages of conversationID oldest first.
// Unknown ids yield an empty slice.
func (l *ConversationLogger) GetConversation(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	if l.primary == nil {
		return nil, errors.NewStorageError("read conversation", ErrNoPrimarySink)
	}
	messages, err := l.primary.Read(ctx, conversationID)
	if err != nil {
		return nil, asStorageError("read conversation", err)
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return messages, nil
}

// GetSessionMessages returns every message logged under sessionID oldest first
func (l *ConversationLogger) GetSessionMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	reader, ok := l.primary.(SessionReader)
	if !ok {
		return nil, errors.NewStorageError("read session", ErrNoPrimarySink)
	}
	messages, err := reader.ReadSession(ctx, sessionID)
	if err != nil {
		return nil, asStorageError("read session", err)
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return messages, nil
}

// GetStats summarizes the primary sink at call time
func (l *ConversationLogger) GetStats(ctx context.Context) (models.Stats, error) {
	reader, ok := l.primary.(sink.StatsReader)
	if !ok {
		return models.Stats{}, errors.NewStorageError("compute stats", ErrNoPrimarySink)
	}
	stats, err := reader.Stats(ctx)
	if err != nil {
		return models.Stats{}, asStorageError("compute stats", err)
	}
	return stats, nil
}

// ExportToCSV writes the rows matching filter to path, replacing any previous file
func (l *ConversationLogger) ExportToCSV(ctx context.Context, path, filter string) error {
	f, err := CompileFilter(filter)
	if err != nil {
		return errors.NewStorageError("compile filter", err)
	}
	if strings.TrimSpace(path) == "" {
		return errors.NewStorageError("export", stderrors.New("path must not be empty"))
	}
	if l.isProtected(path) {
		return errors.NewStorageError(fmt.Sprintf("export to %s", path), ErrProtectedPath)
	}

	src, ok := l.primary.(sink.RowIterator)
	if !ok {
		return errors.NewStorageError("export", ErrNoPrimarySink)
	}

	var rows int
	err = writeFileAtomic(path, func(w io.Writer) error {
		var err error
		rows, err = writeCSV(ctx, w, src, f)
		return err
	})
	if err != nil {
		return asStorageError(fmt.Sprintf("export to %s", path), err)
	}

	l.log.Info("conversation log exported", "path", path, "rows", rows, "filter", f.String())
	return nil
}

// WriteCSV streams the rows matching filter to w
func (l *ConversationLogger) WriteCSV(ctx context.Context, w io.Writer, filter string) (int, error) {
	f, err := CompileFilter(filter)
	if err != nil {
		return 0, errors.NewStorageError("compile filter", err)
	}
	src, ok := l.primary.(sink.RowIterator)
	if !ok {
		return 0, errors.NewStorageError("export", ErrNoPrimarySink)
	}
	rows, err := writeCSV(ctx, w, src, f)
	if err != nil {
		return rows, asStorageError("export", err)
	}
	return rows, nil
}

// isProtected reports whether path names one of the protected files,
// either by cleaned absolute path or as the same file on disk
func (l *ConversationLogger) isProtected(path string) bool {
	target, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	targetInfo, statErr := os.Stat(target)
	for _, p := range l.protected {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err == nil && abs == target {
			return true
		}
		if statErr != nil {
			continue
		}
		if info, err := os.Stat(p); err == nil && os.SameFile(info, targetInfo) {
			return true
		}
	}
	return false
}

func asStorageError(op string, err error) error {
	var storageErr *errors.StorageError
	if stderrors.As(err, &storageErr) {
		return err
	}
	return errors.NewStorageError(op, err)
}
