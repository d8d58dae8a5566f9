package protocol

import (
	"testing"
	"time"
)

func validMessage() *BatchMessage {
	return &BatchMessage{
		MessageID:  "b2a6f3c1-9c1c-4f6e-8f61-0f0f36a3c111",
		LocationID: 7,
		ReceivedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Observations: []ObservationPayload{
			{Timestamp: "2024-06-01T12:00:00Z", TempC: 22.5, Source: "station-a"},
			{Timestamp: "2024-06-01T13:00:00Z", TempC: 23.1},
		},
	}
}

func TestBatchMessage_RoundTrip(t *testing.T) {
	msg := validMessage()

	data, err := EncodeBatchMessage(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeBatchMessage(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.LocationID != 7 {
		t.Errorf("Expected location 7, got %d", decoded.LocationID)
	}
	if len(decoded.Observations) != 2 {
		t.Fatalf("Expected 2 observations, got %d", len(decoded.Observations))
	}
	if decoded.Observations[0].Source != "station-a" {
		t.Errorf("Expected source station-a, got %s", decoded.Observations[0].Source)
	}
	if err := decoded.Validate(); err != nil {
		t.Errorf("Expected valid message, got %v", err)
	}
}

func TestDecodeBatchMessage_InvalidJSON(t *testing.T) {
	if _, err := DecodeBatchMessage([]byte("{not json")); err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
}

func TestBatchMessage_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BatchMessage)
	}{
		{"missing location id", func(m *BatchMessage) { m.LocationID = 0 }},
		{"negative location id", func(m *BatchMessage) { m.LocationID = -3 }},
		{"empty observations", func(m *BatchMessage) { m.Observations = nil }},
		{"empty timestamp", func(m *BatchMessage) { m.Observations[1].Timestamp = "" }},
		{"naive timestamp", func(m *BatchMessage) { m.Observations[0].Timestamp = "2024-06-01 12:00:00" }},
		{"garbage timestamp", func(m *BatchMessage) { m.Observations[0].Timestamp = "yesterday" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage()
			tt.mutate(msg)
			if err := msg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
