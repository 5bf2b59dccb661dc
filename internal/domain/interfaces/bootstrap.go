package interfaces

import (
	domaintypes "axocore/internal/domain/types"
)

// Bootstrapper is invoked by the ratchet engine when it receives an
// envelope carrying an establishment block for a conversation that has no
// session yet.
// The x3dh package implements this against its own local identity and
// pre-key material.
type Bootstrapper interface {
	BootstrapResponder(id domaintypes.ConversationID, establish domaintypes.EstablishmentBlock) (domaintypes.Conversation, error)
}
