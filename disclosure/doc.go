// Package disclosure resolves a holder's encrypted token balance into a
// plaintext amount. Each call to Coordinator.Disclose runs one session
// through a fixed sequence of states:
//
//	Idle -> HandleFetched -> ShortCircuitZero
//	Idle -> HandleFetched -> KeypairReady -> AuthorizationBuilt -> Signed -> DisclosureRequested -> Resolved
//
// Any non-terminal state may move to Failed. Sessions share no state and are
// never retried.
package disclosure
