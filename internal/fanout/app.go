// Package fanout implements the application-facing entry points: sending a
// message to every device of a recipient (or to the local user's own
// sibling devices), and dispatching an inbound transport envelope to the
// ratchet engine and on to the host's callbacks.
package fanout

import (
	"context"
	"encoding/json"
	"log/slog"

	"axocore/internal/domain"
	"axocore/internal/errs"
	"axocore/internal/ratchet"
	"axocore/internal/x3dh"
)

// supplementsPayload is the small JSON blob carried as ratchet supplements
// when a message references an attachment: the handle travels alongside
// the message, not inside its ciphertext.
type supplementsPayload struct {
	AttachmentID string            `json:"attachment_id,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// App wires the ratchet engine, session establisher, provisioning client
// and transport sink into the sendMessage/receiveMessage surface.
type App struct {
	store        domain.Store
	engine       *ratchet.Engine
	establisher  *x3dh.Establisher
	provisioning domain.ProvisioningClient
	sink         domain.TransportSink
	listener     domain.InboundListener
	localUser    domain.Username
	localDevice  domain.DeviceID
	log          *slog.Logger
}

func New(
	store domain.Store,
	engine *ratchet.Engine,
	establisher *x3dh.Establisher,
	provisioning domain.ProvisioningClient,
	sink domain.TransportSink,
	listener domain.InboundListener,
	localUser domain.Username,
	localDevice domain.DeviceID,
	log *slog.Logger,
) *App {
	return &App{
		store: store, engine: engine, establisher: establisher,
		provisioning: provisioning, sink: sink, listener: listener,
		localUser: localUser, localDevice: localDevice, log: log,
	}
}

// SendMessage fans a message out to every device of descriptor.Recipient,
// establishing a session per device that lacks one, and returns the subset
// of message ids the sink accepted.
func (a *App) SendMessage(ctx context.Context, descriptor domain.MessageDescriptor) ([]int64, error) {
	devices, err := a.deviceListFor(ctx, descriptor.Recipient)
	if err != nil {
		return nil, err
	}
	return a.fanOut(ctx, descriptor, devices)
}

// SendMessageToSiblings is sendMessage narrowed to the local user's other
// devices.
func (a *App) SendMessageToSiblings(ctx context.Context, body []byte, attributes map[string]string) ([]int64, error) {
	devices, err := a.deviceListFor(ctx, a.localUser)
	if err != nil {
		return nil, err
	}
	siblings := make([]domain.DeviceID, 0, len(devices))
	for _, d := range devices {
		if d != a.localDevice {
			siblings = append(siblings, d)
		}
	}
	descriptor := domain.MessageDescriptor{Recipient: a.localUser, Body: body, Attributes: attributes}
	return a.fanOut(ctx, descriptor, siblings)
}

func (a *App) fanOut(ctx context.Context, descriptor domain.MessageDescriptor, devices []domain.DeviceID) ([]int64, error) {
	var supplements []byte
	if descriptor.AttachmentID != "" {
		payload, err := json.Marshal(supplementsPayload{AttachmentID: descriptor.AttachmentID, Attributes: descriptor.Attributes})
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "marshal supplements", err)
		}
		supplements = payload
	}

	items := make([]domain.OutboundEnvelope, 0, len(devices))
	for _, device := range devices {
		id := domain.ConversationID{LocalUser: a.localUser, RemoteUser: descriptor.Recipient, RemoteDevice: device}
		conv, has, err := a.store.LoadConversation(id)
		if err != nil {
			return nil, err
		}
		if !has || !conv.HasSession() {
			if _, err := a.establisher.EstablishInitiator(ctx, id); err != nil {
				if errs.Is(err, errs.IdentityMismatch) && a.listener != nil {
					a.listener.NotifyCallback(domain.NotifyIdentityChanged, descriptor.Recipient.String(), device)
				} else if a.log != nil {
					a.log.Warn("session establishment failed", "remote_user", descriptor.Recipient, "remote_device", device, "err", err)
				}
				continue
			}
		} else if err := a.establisher.VerifyIdentityUnchanged(ctx, id, conv); err != nil {
			if errs.Is(err, errs.IdentityMismatch) && a.listener != nil {
				a.listener.NotifyCallback(domain.NotifyIdentityChanged, descriptor.Recipient.String(), device)
			} else if a.log != nil {
				a.log.Warn("identity verification failed", "remote_user", descriptor.Recipient, "remote_device", device, "err", err)
			}
			continue
		}

		wire, supplementsCT, msgID, err := a.engine.Encrypt(id, descriptor.Body, supplements)
		if err != nil {
			if a.log != nil {
				a.log.Warn("encrypt failed", "remote_user", descriptor.Recipient, "remote_device", device, "err", err)
			}
			continue
		}
		wrapper, err := marshalWrapper(a.localUser, a.localDevice, wire, supplementsCT)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.OutboundEnvelope{Name: descriptor.Recipient, DeviceID: device, Bytes: wrapper, MessageID: msgID})
	}

	if len(items) == 0 {
		return nil, nil
	}
	accepted, err := a.sink.SendBatch(ctx, items)
	if err != nil {
		return nil, errs.Wrap(errs.Transport, "send batch", err)
	}
	var ok []int64
	for i, id := range accepted {
		if id != 0 && i < len(items) {
			ok = append(ok, id)
		}
	}
	return ok, nil
}

// ReceiveMessage parses the outer transport wrapper, decrypts the inner
// envelope, and surfaces the plaintext on the host's callback — notifying
// DEVICE_SCAN first if the sending device has never been seen before
// on delivery.
func (a *App) ReceiveMessage(ctx context.Context, raw []byte) error {
	wrapper, err := unmarshalWrapper(raw)
	if err != nil {
		return err
	}
	id := domain.ConversationID{LocalUser: a.localUser, RemoteUser: wrapper.SenderUser, RemoteDevice: wrapper.SenderDevice}

	seenBefore, err := a.store.HasConversation(id)
	if err != nil {
		return err
	}

	plaintext, supplements, err := a.engine.Decrypt(id, wrapper.WireBytes, wrapper.SupplementsBytes)
	if err != nil {
		if errs.Is(err, errs.IdentityMismatch) && a.listener != nil {
			a.listener.NotifyCallback(domain.NotifyIdentityChanged, wrapper.SenderUser.String(), wrapper.SenderDevice)
		}
		return err
	}

	if !seenBefore && a.listener != nil {
		a.listener.NotifyCallback(domain.NotifyDeviceScan, wrapper.SenderUser.String(), wrapper.SenderDevice)
	}

	msg := domain.DecryptedMessage{FromUser: wrapper.SenderUser, FromDevice: wrapper.SenderDevice, Plaintext: plaintext}
	if len(supplements) > 0 {
		var payload supplementsPayload
		if err := json.Unmarshal(supplements, &payload); err == nil {
			msg.AttachmentID = payload.AttachmentID
			msg.Attributes = payload.Attributes
		}
	}
	if a.listener != nil {
		a.listener.MessageReceived(msg)
	}
	return nil
}

// deviceListFor returns the cached device list for user, refreshing it from
// the provisioning client on a cache miss.
func (a *App) deviceListFor(ctx context.Context, user domain.Username) ([]domain.DeviceID, error) {
	if cached, ok, err := a.store.LoadCachedDeviceList(user); err != nil {
		return nil, err
	} else if ok {
		return cached, nil
	}
	devices, err := a.provisioning.ListDevices(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := a.store.CacheDeviceList(user, devices); err != nil {
		return nil, err
	}
	return devices, nil
}
