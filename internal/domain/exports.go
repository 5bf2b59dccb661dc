package domain

import (
	interfaces "axocore/internal/domain/interfaces"
	types "axocore/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact
// imports in the rest of the tree.
type (
	Username            = types.Username
	DeviceID            = types.DeviceID
	Fingerprint         = types.Fingerprint
	PreKeyID            = types.PreKeyID
	SignedPreKeyID      = types.SignedPreKeyID
	ConversationID      = types.ConversationID
	Identity            = types.Identity
	OneTimePreKeyPair   = types.OneTimePreKeyPair
	OneTimePreKeyPublic = types.OneTimePreKeyPublic
	SignedPreKeyPair    = types.SignedPreKeyPair
	PreKeyBundle        = types.PreKeyBundle
	RatchetHeader       = types.RatchetHeader
	EstablishmentBlock  = types.EstablishmentBlock
	Conversation        = types.Conversation
	StagedMessageKey    = types.StagedMessageKey
	AccountProfile      = types.AccountProfile
	DeviceListEntry     = types.DeviceListEntry
	MessageDescriptor   = types.MessageDescriptor
	TransportEnvelope   = types.TransportEnvelope
	DecryptedMessage    = types.DecryptedMessage
	NotifyAction        = types.NotifyAction
	AttachmentLocator   = types.AttachmentLocator
	AttachmentKeyBLOB   = types.AttachmentKeyBLOB
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	X25519KeyPair       = types.X25519KeyPair
	Ed25519Public       = types.Ed25519Public
	Ed25519Private      = types.Ed25519Private
	ConversationRecord  = types.ConversationRecord
	EventRecord         = types.EventRecord
	ObjectRecord        = types.ObjectRecord
)

const (
	NotifyDeviceScan      = types.NotifyDeviceScan
	NotifyIdentityChanged = types.NotifyIdentityChanged
	NotifyStateReport     = types.NotifyStateReport
)

var IsZeroDevice = types.IsZeroDevice

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Store              = interfaces.Store
	ProvisioningClient = interfaces.ProvisioningClient
	HTTPCallback       = interfaces.HTTPCallback
	TransportSink      = interfaces.TransportSink
	OutboundEnvelope   = interfaces.OutboundEnvelope
	InboundListener    = interfaces.InboundListener
	Bootstrapper       = interfaces.Bootstrapper
)
