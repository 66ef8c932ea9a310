package application

import (
	"github.com/fluxpay/engine/internal/eventbus"
	"github.com/fluxpay/engine/internal/outbox"
)

// eventSource is the CloudEvents "source" attribute for every event FluxPay
// emits.
const eventSource = "fluxpay"

// newOutboxEvent wraps data in a CloudEvents v1.0 envelope and builds the
// matching PENDING outbox row, ready to be inserted in the same
// transaction as the aggregate state change it records (spec §4.2).
func newOutboxEvent(tenantID, aggregateType, aggregateID, eventType string, data interface{}) (outbox.Event, error) {
	ce, err := eventbus.NewCloudEvent(eventSource, eventType, data)
	if err != nil {
		return outbox.Event{}, err
	}
	payload, err := ce.Marshal()
	if err != nil {
		return outbox.Event{}, err
	}
	topic := "fluxpay.events." + aggregateType
	return outbox.NewEvent(ce.ID, tenantID, aggregateType, aggregateID, eventType, topic, payload), nil
}
