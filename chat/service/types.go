package service

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Timestamp is a client supplied time kept verbatim. Browsers send either
// an ISO string or epoch milliseconds.
type Timestamp string

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Timestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*t = Timestamp(n.String())
	return nil
}

type SessionInfo struct {
	SessionID        string    `json:"sessionId"`
	SessionStartTime Timestamp `json:"sessionStartTime"`
	CurrentTime      Timestamp `json:"currentTime"`
}

type ConversationInfo struct {
	ConversationID        string    `json:"conversationId"`
	ConversationStartTime Timestamp `json:"conversationStartTime"`
	MessageTimestamp      Timestamp `json:"messageTimestamp"`
}

// Request is the body of POST /chat
type Request struct {
	Message      string           `json:"message"`
	Session      SessionInfo      `json:"session"`
	Conversation ConversationInfo `json:"conversation"`
}

type SessionAck struct {
	SessionID         string `json:"sessionId"`
	Acknowledged      bool   `json:"acknowledged"`
	MessageCount      int    `json:"message_count"`
	ConversationCount int    `json:"conversation_count"`
}

type ConversationAck struct {
	ConversationID string `json:"conversationId"`
	Acknowledged   bool   `json:"acknowledged"`
	MessageCount   int    `json:"message_count"`
}

// Response is returned for a successful chat turn. Timestamp is in epoch seconds.
type Response struct {
	Response     string          `json:"response"`
	Timestamp    float64         `json:"timestamp"`
	Status       string          `json:"status"`
	Provider     string          `json:"provider"`
	Session      SessionAck      `json:"session"`
	Conversation ConversationAck `json:"conversation"`
}
