package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseCreatedMessage announces a newly persisted expense. Consumers load
// the expense by ID.
type ExpenseCreatedMessage struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseCreatedMessage(id int64, source string) *ExpenseCreatedMessage {
	return &ExpenseCreatedMessage{
		ID:        id,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ExpenseCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseCreatedMessageFromJSON(data []byte) (*ExpenseCreatedMessage, error) {
	var msg ExpenseCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
