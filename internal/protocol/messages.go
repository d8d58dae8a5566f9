package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// ObservationPayload is one reading inside a batch message. Timestamp is
// RFC3339 with an explicit offset; the engine normalizes it to UTC.
type ObservationPayload struct {
	Timestamp string  `json:"timestamp"`
	TempC     float64 `json:"temp_c"`
	Source    string  `json:"source,omitempty"`
}

// BatchMessage is the Kafka message format for observation ingestion.
// Messages are keyed by location id so all batches for one location land on
// one partition and apply in order.
type BatchMessage struct {
	MessageID    string               `json:"message_id"`
	LocationID   int64                `json:"location_id"`
	ReceivedAt   time.Time            `json:"received_at"`
	Observations []ObservationPayload `json:"observations"`
}

// Validate checks the structural invariants a message must satisfy before
// it reaches the upsert engine.
func (m *BatchMessage) Validate() error {
	if m.LocationID <= 0 {
		return fmt.Errorf("location_id is required")
	}
	if len(m.Observations) == 0 {
		return fmt.Errorf("observations must not be empty")
	}
	for i, obs := range m.Observations {
		if obs.Timestamp == "" {
			return fmt.Errorf("observation %d: timestamp is required", i)
		}
		if _, err := time.Parse(time.RFC3339, obs.Timestamp); err != nil {
			return fmt.Errorf("observation %d: invalid timestamp (must be RFC3339): %w", i, err)
		}
	}
	return nil
}

// EncodeBatchMessage encodes a BatchMessage to JSON
func EncodeBatchMessage(msg *BatchMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeBatchMessage decodes JSON to BatchMessage
func DecodeBatchMessage(data []byte) (*BatchMessage, error) {
	var msg BatchMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &msg, nil
}
