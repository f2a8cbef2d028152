package checkstatus

import (
	"encoding/json"
	"errors"
	"time"
)

// Message describes a status change payload exchanged over NATS.
type Message struct {
	Check       string    `json:"check"`
	Status      Status    `json:"status"`
	GeneratedAt time.Time `json:"generated_at"`
	Host        string    `json:"host,omitempty"`
	Detail      string    `json:"detail,omitempty"` // free-form summary of what failed
}

// Marshal renders the message as JSON for transport.
func (m Message) Marshal() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Unmarshal decodes a status message from JSON.
func Unmarshal(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	return msg, msg.Validate()
}

// Validate ensures required fields are present. The status value itself is
// not checked against the known set; consumers decide what to do with it.
func (m Message) Validate() error {
	if m.Check == "" {
		return errors.New("check is required")
	}
	if m.Status == "" {
		return errors.New("status is required")
	}
	if m.GeneratedAt.IsZero() {
		return errors.New("generated_at is required")
	}
	return nil
}
