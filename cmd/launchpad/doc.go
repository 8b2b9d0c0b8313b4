// Package main (cmd/launchpad) implements the command line client and API
// server of the confidential token launchpad.
//
// Every command talks to an Ethereum RPC node and the token factory given by
// --factory. Token metadata is read in batches through Multicall3.
//
//   - list-tokens: print every token with its creator, creation time and freemint allowance
//   - create-token: create a token and wait until it is included
//   - freemint: claim the freemint allowance of a token
//   - decrypt-balance: disclose the signer's encrypted balance through the relayer
//   - serve: run the HTTP API (see package httpserver) with metrics and health endpoints
//   - keygen: generate a holder key, optionally storing it in Vault
//
// The holder key is read from --private-key, an encrypted --keystore file, or a
// Vault KV v2 secret (--vault-addr, --vault-token, --vault-mount, --vault-path),
// in this order. Without a key the list and serve commands run read-only.
//
// Example usage:
//
//	launchpad --private-key $KEY create-token \
//	  --rpc-addr https://rpc.sepolia.org \
//	  --factory 0x5FbDB2315678afecb367f032d93F642f64180aa3 \
//	  --name "Ocean Dollar" --symbol OCD
//
//	launchpad serve --factory 0x5FbDB2315678afecb367f032d93F642f64180aa3 \
//	  --relayer-url https://relayer.example.org --listen-addr 0.0.0.0:8080
package main
