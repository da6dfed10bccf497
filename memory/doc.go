// Package memory holds conversation histories keyed by session id.
//
// A Store lazily creates a Session the first time an id is seen and seeds it
// with a single system persona message. Histories are append-only: appends are
// validated as a unit and either all land or none do. Each Session also owns a
// turn lock so that two turns for the same session never interleave, while
// turns for different sessions proceed independently.
//
// Histories live only in process memory and are never evicted automatically;
// Reset replaces a history with a freshly seeded one.
package memory
