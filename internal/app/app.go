package app

import (
	"context"
	"fmt"

	"axocore/internal/domain"
	"axocore/internal/identity"
)

// InitIdentity loads the local identity, generating one on first run.
func (w *Wire) InitIdentity(userName domain.Username) (identity.InitResult, error) {
	return w.Identity.Init(userName)
}

// Fingerprint returns the short fingerprint of the local identity's X25519
// public key, used for out-of-band verification.
func (w *Wire) Fingerprint() (domain.Fingerprint, error) {
	id, ok, err := w.Store.LoadIdentity()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("app: no local identity; run init first")
	}
	return identity.Fingerprint(id.XPub), nil
}

// Register loads or creates the local identity, generates a fresh signed
// pre-key and numOneTimeKeys one-time pre-keys (all kept in the local
// store), and publishes a bundle carrying the identity key, the signed
// pre-key and the first of the new one-time pre-keys before registering the
// device. The remaining one-time pre-keys are not published.
func (w *Wire) Register(ctx context.Context, userName domain.Username, deviceID domain.DeviceID, numOneTimeKeys int) error {
	init, err := w.Identity.Init(userName)
	if err != nil {
		return err
	}
	spk, err := w.Identity.NewSignedPreKey(init.Identity)
	if err != nil {
		return err
	}
	otks, err := w.Identity.NewPreKeys(numOneTimeKeys)
	if err != nil {
		return err
	}
	bundle := domain.PreKeyBundle{
		Username:        userName,
		IdentityKey:     init.Identity.XPub,
		SigningKey:      init.Identity.EdPub,
		SignedPreKeyID:  spk.ID,
		SignedPreKey:    spk.Pub,
		SignedPreKeySig: spk.Signature,
	}
	if len(otks) > 0 {
		bundle.OneTimePreKey = otks[0]
	}
	if err := w.Provisioning.PublishPreKeys(ctx, bundle); err != nil {
		return err
	}
	return w.Provisioning.RegisterDevice(ctx, userName, deviceID)
}

// SendMessage fans descriptor out to every device of its recipient.
func (w *Wire) SendMessage(ctx context.Context, descriptor domain.MessageDescriptor) ([]int64, error) {
	return w.Fanout.SendMessage(ctx, descriptor)
}

// StartListening registers the sink's inbound stream handler so received
// envelopes flow into the fan-out application's ReceiveMessage.
func (w *Wire) StartListening(ctx context.Context) {
	w.Sink.ListenEnvelopes(func(raw []byte) bool {
		if err := w.Fanout.ReceiveMessage(ctx, raw); err != nil {
			if w.Log != nil {
				w.Log.Warn("app: drop inbound envelope", "err", err)
			}
			return false
		}
		return true
	})
}

// ResetStore implements the `axo admin resetaxodb` command: wipes every
// table of the encrypted store except the local identity, which is kept.
func (w *Wire) ResetStore() error {
	return w.Store.ResetStore()
}

// RemoveConversation implements `axo admin removeAxoConversation <user>`:
// deletes every locally-held conversation with the named remote user.
func (w *Wire) RemoveConversation(localUser domain.Username, remoteUser domain.Username) error {
	ids, err := w.Store.ListConversationsOf(localUser)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id.RemoteUser != remoteUser {
			continue
		}
		if err := w.Store.DeleteConversation(id); err != nil {
			return err
		}
	}
	return nil
}

// RescanUserDevices implements `axo admin rescanUserDevices <user>`:
// refreshes the cached device list for a remote user from the provisioning
// service, dropping the stale cache entry regardless of the fetch outcome
// so a failed scan never leaves an inconsistent cache. Device lists are
// served cache-then-provisioning.
func (w *Wire) RescanUserDevices(ctx context.Context, user domain.Username) ([]domain.DeviceID, error) {
	devices, err := w.Provisioning.ListDevices(ctx, user)
	if err != nil {
		_ = w.Store.CacheDeviceList(user, nil)
		return nil, err
	}
	if err := w.Store.CacheDeviceList(user, devices); err != nil {
		return nil, err
	}
	return devices, nil
}
