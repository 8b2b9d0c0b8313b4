// Package mutation runs state-changing token actions (create, freemint)
// through the submitted -> pending -> confirmed | failed lifecycle.
//
// The Manager allows one in-flight action per (kind, target) and invalidates
// the token list cache once a mutation is confirmed. Records are transient:
// a new submission replaces the previous record of the same action.
// Observers follow a Record with Subscribe or Wait.
package mutation
