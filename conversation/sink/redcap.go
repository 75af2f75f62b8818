package sink

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"research-chat/backend/conversation/models"
	"research-chat/backend/pkg/config"
	"research-chat/backend/pkg/errors"
	"research-chat/backend/pkg/logger"
	"research-chat/backend/pkg/redcap"
	"research-chat/backend/pkg/resilience"

	"github.com/google/uuid"
)

// RedcapName is the name reported by the REDCap sink
const RedcapName = "redcap"

var errNotImported = stderrors.New("record not imported")

// RedcapAPI is the part of the REDCap client the sink needs
type RedcapAPI interface {
	ImportRecords(ctx context.Context, records []redcap.Record) (int, error)
	ExportRecords(ctx context.Context, opts redcap.ExportOptions) ([]redcap.Record, error)
	ExportMetadata(ctx context.Context) ([]redcap.Field, error)
	ExportProjectInfo(ctx context.Context) (redcap.ProjectInfo, error)
}

// RedcapSink forwards each message as one REDCap record. Writes are not retried.
type RedcapSink struct {
	api     RedcapAPI
	fields  config.RemoteFields
	event   string
	breaker *resilience.CircuitBreaker
	newID   func() string
	log     *logger.Logger
}

func NewRedcapSink(api RedcapAPI, cfg config.RemoteSinkConfig, breaker *resilience.CircuitBreaker, log *logger.Logger) *RedcapSink {
	return &RedcapSink{
		api:     api,
		fields:  cfg.Fields,
		event:   cfg.Event,
		breaker: breaker,
		newID:   uuid.NewString,
		log:     log.WithComponent("redcap_sink"),
	}
}

func (s *RedcapSink) Name() string { return RedcapName }

func (s *RedcapSink) Write(ctx context.Context, message models.ChatMessage) error {
	record := s.toRecord(message)

	var status int
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		count, err := s.api.ImportRecords(ctx, []redcap.Record{record})
		if err != nil {
			var apiErr *redcap.APIError
			if stderrors.As(err, &apiErr) {
				status = apiErr.StatusCode
			}
			return err
		}
		if count < 1 {
			return errNotImported
		}
		return nil
	})
	if err != nil {
		return errors.NewRemoteDeliveryError(RedcapName, status, err)
	}

	s.log.Debug("message forwarded",
		"record_id", record[s.fields.RecordID],
		"conversation_id", message.ConversationID,
		"role", string(message.Role),
	)
	return nil
}

func (s *RedcapSink) toRecord(message models.ChatMessage) redcap.Record {
	f := s.fields
	record := redcap.Record{
		f.RecordID:       fmt.Sprintf("%s_msg_%s", message.ConversationID, s.newID()),
		f.SessionID:      message.SessionID,
		f.ConversationID: message.ConversationID,
		f.Role:           string(message.Role),
		f.Message:        redcap.Truncate(message.Content),
		f.Timestamp:      message.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if f.MessageLength != "" {
		record[f.MessageLength] = strconv.Itoa(len([]rune(message.Content)))
	}
	if f.Complete != "" {
		record[f.Complete] = "1"
	}
	if s.event != "" {
		record["redcap_event_name"] = s.event
	}
	return record
}

func (s *RedcapSink) Read(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	f := s.fields

	var records []redcap.Record
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		records, err = s.api.ExportRecords(ctx, redcap.ExportOptions{
			Fields:      []string{f.RecordID, f.SessionID, f.ConversationID, f.Role, f.Message, f.Timestamp},
			FilterLogic: fmt.Sprintf("[%s] = %s", f.ConversationID, redcap.QuoteLogic(conversationID)),
		})
		return err
	})
	if err != nil {
		return nil, errors.NewRemoteDeliveryError(RedcapName, 0, err)
	}

	messages := make([]models.ChatMessage, 0, len(records))
	for _, r := range records {
		if r[f.ConversationID] != conversationID {
			continue
		}
		role := models.Role(strings.ToLower(r[f.Role]))
		created, err := time.Parse(time.RFC3339Nano, r[f.Timestamp])
		if err != nil {
			s.log.Warn("skipping record with unreadable timestamp", "record_id", r[f.RecordID])
			continue
		}
		messages = append(messages, models.ChatMessage{
			SessionID:      r[f.SessionID],
			ConversationID: r[f.ConversationID],
			Content:        r[f.Message],
			Role:           role,
			CreatedAt:      created,
		})
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// VerifyFields reports configured field names missing from the project data dictionary.
// The form-complete flag is not part of the dictionary and is not checked.
func (s *RedcapSink) VerifyFields(ctx context.Context) ([]string, error) {
	dictionary, err := s.api.ExportMetadata(ctx)
	if err != nil {
		return nil, errors.NewRemoteDeliveryError(RedcapName, 0, err)
	}

	known := make(map[string]bool, len(dictionary))
	for _, field := range dictionary {
		known[field.FieldName] = true
	}

	f := s.fields
	var missing []string
	for _, name := range []string{f.RecordID, f.SessionID, f.ConversationID, f.Role, f.Message, f.Timestamp, f.MessageLength} {
		if name != "" && !known[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

func (s *RedcapSink) Ping(ctx context.Context) error {
	if state := s.breaker.GetState(); state == resilience.StateOpen {
		return errors.NewRemoteDeliveryError(RedcapName, 0, resilience.ErrCircuitOpen)
	}
	if _, err := s.api.ExportProjectInfo(ctx); err != nil {
		return errors.NewRemoteDeliveryError(RedcapName, 0, err)
	}
	return nil
}

// BreakerState exposes the circuit state for health reporting
func (s *RedcapSink) BreakerState() resilience.CircuitBreakerState {
	return s.breaker.GetState()
}
