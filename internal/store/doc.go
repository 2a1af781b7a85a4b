// Package store persists conversations and their transcript entries in
// SQLite. All access goes through one connection guarded by one lock, and
// appending an entry bumps its conversation's updated_at in the same
// transaction.
package store
