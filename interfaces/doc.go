// Package interfaces defines the core types and collaborator interfaces of the
// confidential token launchpad, separating interface definitions from
// implementations.
//
// # Collaborators
//
// ChainReader: read-only contract access with single and batched
// (allow-partial-failure) reads.
//
// TokenTransactor: the write surface of the factory and token contracts
// (createConfidentialToken, freemint) plus block confirmation.
//
// AuthorizationSigner: the holder's signing capability for EIP-712 payloads.
//
// DisclosureService: the off-chain service resolving encrypted handles into
// plaintext amounts for authorized holders.
//
// # Types
//
//   - TokenIdentity, TokenMetadata, TokenRecord: registry data
//   - EncryptedHandle: 32-byte ciphertext reference, zero value is the empty sentinel
//   - Keypair, AuthorizationPayload, DisclosureRequest, DisclosureResult: disclosure protocol
//
// # Errors
//
// All components report failures with the sentinels in errors.go, wrapped
// with their cause.
package interfaces
