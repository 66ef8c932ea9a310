// Package eventbus rebuilds the teacher's lib-common/kafka CloudEvent
// envelope and producer wrapper, since lib-common itself isn't a
// fetchable dependency, regrounded on segmentio/kafka-go directly. No
// consumer wrapper is provided; ParseCloudEvent decodes a message value.
package eventbus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CloudEvent is FluxPay's wire envelope, CloudEvents v1.0 shaped per
// spec §6 ("Event format. CloudEvents v1.0 envelope; payload is
// domain-specific JSON").
type CloudEvent struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	SpecVersion string          `json:"specversion"`
	Type        string          `json:"type"`
	Time        time.Time       `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data        json.RawMessage `json:"data"`
}

// NewCloudEvent wraps data in a CloudEvents v1.0 envelope with a fresh id.
func NewCloudEvent(source, eventType string, data interface{}) (CloudEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return CloudEvent{}, err
	}
	return CloudEvent{
		ID:              uuid.New().String(),
		Source:          source,
		SpecVersion:     "1.0",
		Type:            eventType,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            raw,
	}, nil
}

// ParseCloudEvent decodes a wire CloudEvent.
func ParseCloudEvent(raw []byte) (CloudEvent, error) {
	var ce CloudEvent
	err := json.Unmarshal(raw, &ce)
	return ce, err
}

// ParseData unmarshals the event's data payload into v.
func (ce CloudEvent) ParseData(v interface{}) error {
	return json.Unmarshal(ce.Data, v)
}

// Marshal serializes the envelope back to wire bytes.
func (ce CloudEvent) Marshal() ([]byte, error) {
	return json.Marshal(ce)
}

// PartitionKey builds the tenant:aggregate_id partition key from spec §6
// ("Partition key: tenant_id:aggregate_id").
func PartitionKey(tenantID, aggregateID string) string {
	return tenantID + ":" + aggregateID
}

// DLQTopic builds the dead-letter topic name from spec §6
// ("DLQ topic naming: fluxpay.dlq.{event-type}").
func DLQTopic(eventType string) string {
	return "fluxpay.dlq." + eventType
}
