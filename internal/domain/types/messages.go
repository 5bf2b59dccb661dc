package types

// MessageDescriptor is the small JSON descriptor sendMessage parses out
// of the caller-supplied message.
type MessageDescriptor struct {
	Recipient    Username          `json:"recipient"`
	Body         []byte            `json:"body"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	AttachmentID string            `json:"attachment_id,omitempty"`
}

// TransportEnvelope is the outer wrapper carried over the transport sink:
// sender identity plus the inner ratchet wire bytes.
type TransportEnvelope struct {
	SenderUser       Username
	SenderDevice     DeviceID
	WireBytes        []byte
	SupplementsBytes []byte
	MessageID        int64
}

// DecryptedMessage is surfaced to the host's "message received" callback.
type DecryptedMessage struct {
	FromUser     Username
	FromDevice   DeviceID
	Plaintext    []byte
	Supplements  []byte
	Attributes   map[string]string
	AttachmentID string
}

// NotifyAction enumerates the events notifyCallback surfaces.
type NotifyAction int

const (
	NotifyDeviceScan NotifyAction = iota
	NotifyIdentityChanged
	NotifyStateReport
)

// String renders the action for logging.
func (a NotifyAction) String() string {
	switch a {
	case NotifyDeviceScan:
		return "DEVICE_SCAN"
	case NotifyIdentityChanged:
		return "IDENTITY_CHANGED"
	case NotifyStateReport:
		return "STATE_REPORT"
	default:
		return "UNKNOWN"
	}
}
