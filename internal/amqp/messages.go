package amqp

import (
	"encoding/json"
	"time"

	"leasedash/internal/core"
)

// SnapshotMessageType is set as the AMQP message type of report snapshots.
const SnapshotMessageType = "leasedash.report.snapshot"

// ReportSnapshotMessage carries the KPIs computed for one period at refresh time.
type ReportSnapshotMessage struct {
	Period      string         `json:"period"`
	Source      string         `json:"source"`
	GeneratedAt time.Time      `json:"generated_at"`
	Report      core.KPIRecord `json:"report"`
}

func NewReportSnapshotMessage(source string, rec core.KPIRecord) *ReportSnapshotMessage {
	return &ReportSnapshotMessage{
		Period:      rec.Period,
		Source:      source,
		GeneratedAt: time.Now().UTC(),
		Report:      rec,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportSnapshotMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportSnapshotMessageFromJSON decodes a message published by PublishSnapshot.
func ReportSnapshotMessageFromJSON(data []byte) (*ReportSnapshotMessage, error) {
	var msg ReportSnapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
