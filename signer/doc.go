// Package signer provides the holder's signing capability: an
// AuthorizationSigner backed by an ECDSA key, and loaders for the key from a
// hex string, a go-ethereum keystore file or HashiCorp Vault.
//
// VaultKeySource reads and writes the key in a KV v2 mount under the
// "private_key" field.
package signer
