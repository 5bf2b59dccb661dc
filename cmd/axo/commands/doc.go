// Package commands defines the axo CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init           Create or load the local identity
//   - fingerprint    Print the identity fingerprint
//   - register       Publish your pre-key bundle to the key server
//   - start-session  Establish an X3DH session with a peer device
//   - send           Encrypt and send a message to every device of a peer
//   - recv           Listen for and decrypt inbound messages
//   - admin          Maintenance operations: resetaxodb, removeAxoConversation, rescanUserDevices
//
// # Implementation
//
// The root command loads configuration via internal/config (env vars, an
// optional .env file, and $AXO_HOME/config.yaml) and builds the dependency
// graph (internal/app.Wire) before any subcommand runs.
package commands
