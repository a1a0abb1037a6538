package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"fintrack/internal/core"
)

// TransactionRecordedMessage announces a committed transaction. It carries
// identifiers only; consumers read the current state from the store.
type TransactionRecordedMessage struct {
	TransactionID string           `json:"transaction_id"`
	WalletID      string           `json:"wallet_id"`
	UserID        string           `json:"user_id"`
	AccountType   core.AccountType `json:"account_type"`
	Timestamp     time.Time        `json:"timestamp"`
}

var errIncompleteMessage = errors.New("message is missing transaction or wallet id")

func NewTransactionRecordedMessage(t core.Transaction) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		TransactionID: t.ID,
		WalletID:      t.WalletID,
		UserID:        t.UserID,
		AccountType:   t.AccountType,
		Timestamp:     time.Now().UTC(),
	}
}

func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionRecordedMessageFromJSON decodes a message and rejects one
// without the identifiers a consumer needs.
func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TransactionID == "" || msg.WalletID == "" {
		return nil, errIncompleteMessage
	}
	return &msg, nil
}
