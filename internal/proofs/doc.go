// Package proofs implements the proof certification registry: a state machine
// that records caller-submitted attestations under globally unique identifiers,
// indexes them per owner, and allows only the owner to revise a proof's text
// and metadata.
//
// A Registry is bound to a storage.ReadWriter for the duration of a call. It
// validates every precondition before its first write, so a failed call leaves
// nothing behind in the view it was given. Committing the view and releasing
// emitted events is the execution host's job.
package proofs
