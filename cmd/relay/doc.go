// Package main runs the in-memory HTTP key server used during development
// and tests. It stores published pre-key bundles and a user's registered
// device list; it never sees plaintext or private keys, only public bundles
// and device names.
//
// HTTP API (all endpoints but /healthz require a Bearer JWT minted with the
// shared secret configured via --jwt-secret / AXO_JWT_SECRET):
//
//	POST   /me/prekeys          Publish the caller's PreKeyBundle.
//	POST   /me/device           Register a device for the caller.
//	DELETE /me/device/{device}  Remove one of the caller's devices.
//	GET    /user/{username}/devices           List a user's registered devices.
//	GET    /user/{username}/prekey?device=.. Fetch a user's latest bundle.
//
// All state is held in memory and lost on process exit. Responses are JSON;
// non-2xx statuses carry a short JSON error message. The default listen
// address is :8090.
package main
