// Package engine implements the resolution, identity, and delivery core of
// the bot: the user-list set algebra, alias consolidation, group storage,
// the priority mailbox, presence tracking, and reply threading.
//
// # Concurrency
//
// Nearly every operation is a compound read-modify-write across several
// stores (a tell to a group touches groups, identities, mailboxes, and the
// reply index in one logical transaction), so the engine is single-writer:
// one mutex serializes all operations. Evaluation and validation run to
// completion before any store is mutated, so a rejected command leaves no
// partial state behind.
//
// # Persistence
//
// The engine owns the authoritative in-memory state and writes through to an
// injected storage.Store. State is loaded once at construction.
package engine
