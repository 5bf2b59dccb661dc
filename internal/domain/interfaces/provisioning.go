package interfaces

import (
	"context"

	domaintypes "axocore/internal/domain/types"
)

// HTTPCallback is the injected request/response function the provisioning
// client wraps with the
// relay's JSON schema. Hosts substitute in-memory fakes in
// tests; no process-wide function pointers.
type HTTPCallback func(ctx context.Context, method, uri string, body []byte) (status int, respBody []byte, err error)

// ProvisioningClient is the narrow interface the fan-out and session
// establishment layers use to reach the relay
// All bodies are JSON; response parsing tolerates
// unknown fields.
type ProvisioningClient interface {
	ListDevices(ctx context.Context, user domaintypes.Username) ([]domaintypes.DeviceID, error)
	FetchPreKeyBundle(ctx context.Context, user domaintypes.Username, device domaintypes.DeviceID) (domaintypes.PreKeyBundle, error)
	PublishPreKeys(ctx context.Context, bundle domaintypes.PreKeyBundle) error
	RegisterDevice(ctx context.Context, user domaintypes.Username, device domaintypes.DeviceID) error
	RemoveDevice(ctx context.Context, user domaintypes.Username, device domaintypes.DeviceID) error
}
