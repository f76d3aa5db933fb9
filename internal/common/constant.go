// Package common contains shared constants and sentinel errors used across
// zecrypt components.
package common

// AccessTokenHeaderName is the HTTP header that carries the bearer token on
// every authenticated request against the remote service.
const AccessTokenHeaderName = "access-token"

// ClientIDHeaderName carries the stable per-install identifier so the remote
// service can tell surfaces of one user apart.
const ClientIDHeaderName = "client-id"

// BridgeStorageKey is the well-known local-storage slot a web session writes
// its short-lived handoff payload to, for the extension surface to pick up.
const BridgeStorageKey = "zecrypt_extension_auth"
