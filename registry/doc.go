// Package registry aggregates the token list of a confidential token factory.
//
// The factory reports the identity of every token it created (address,
// creator, creation time). The Aggregator merges each identity with the
// token's metadata (name, symbol, freemint allowance), read for all tokens in
// a single allow-partial-failure batch.
//
// A metadata field that cannot be read or decoded falls back to its default
// (name "Confidential Token", symbol "CTK", allowance 0) without failing the list. A
// failure of the identity read fails the whole list with
// interfaces.ErrRegistryUnavailable.
//
// # Caching
//
// The merged list is cached under a key derived from the factory address and
// kept until Invalidate is called, typically after a confirmed mutation.
// Concurrent List calls share one aggregation, and a result computed before
// an invalidation is never stored.
package registry
