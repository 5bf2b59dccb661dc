package interfaces

import (
	"context"

	domaintypes "axocore/internal/domain/types"
)

// OutboundEnvelope is one element of a SendBatch call: the addressed
// recipient plus its sealed wire bytes and the message id assigned by
// the sending application.
type OutboundEnvelope struct {
	Name      domaintypes.Username
	DeviceID  domaintypes.DeviceID
	Bytes     []byte
	MessageID int64
}

// TransportSink is the pluggable sink the fan-out layer hands batches of
// envelopes to. It accepts arrays and must produce non-zero message ids for
// accepted sends (0 = rejected); the returned slice is parallel to items.
type TransportSink interface {
	SendBatch(ctx context.Context, items []OutboundEnvelope) (accepted []int64, err error)
}

// InboundListener receives the transport's state reports and notifications
// for the host to surface.
type InboundListener interface {
	NotifyCallback(action domaintypes.NotifyAction, info string, device domaintypes.DeviceID)
	MessageReceived(msg domaintypes.DecryptedMessage)
}
