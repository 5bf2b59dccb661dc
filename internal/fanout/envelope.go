package fanout

import (
	"encoding/json"

	"axocore/internal/domain"
	"axocore/internal/errs"
)

// transportWrapper is the outer JSON envelope carried over the transport
// sink: sender identity alongside the inner ratchet wire bytes and detached
// supplements, deserializing the outer transport wrapper.
type transportWrapper struct {
	SenderUser       domain.Username `json:"sender_user"`
	SenderDevice     domain.DeviceID `json:"sender_device"`
	WireBytes        []byte          `json:"wire"`
	SupplementsBytes []byte          `json:"supplements,omitempty"`
}

func marshalWrapper(senderUser domain.Username, senderDevice domain.DeviceID, wire, supplements []byte) ([]byte, error) {
	w := transportWrapper{SenderUser: senderUser, SenderDevice: senderDevice, WireBytes: wire, SupplementsBytes: supplements}
	out, err := json.Marshal(w)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "marshal transport wrapper", err)
	}
	return out, nil
}

func unmarshalWrapper(data []byte) (domain.TransportEnvelope, error) {
	var w transportWrapper
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.TransportEnvelope{}, errs.Wrap(errs.Transport, "unmarshal transport wrapper", err)
	}
	return domain.TransportEnvelope{
		SenderUser:       w.SenderUser,
		SenderDevice:     w.SenderDevice,
		WireBytes:        w.WireBytes,
		SupplementsBytes: w.SupplementsBytes,
	}, nil
}
