// Package relayer implements the disclosure service client: it generates
// single-use keypairs, builds EIP-712 user decryption authorizations and
// exchanges signed requests with the relayer for sealed plaintexts.
//
// The relayer API consists of two endpoints:
//
//	GET  /v1/config        EIP-712 domain (chainId, verifyingContract)
//	POST /v1/user-decrypt  signed request, returns sealed plaintexts
//
// Client is unusable until Initialize has fetched /v1/config. Plaintexts are
// returned sealed to the session public key with a NaCl anonymous box and are
// opened with the session private key.
//
// Gateway serves the same API in-process and enforces the authorization
// rules of the real service. It backs tests and local development.
package relayer
