// Package session provides the durable key/value store shared by the host
// shell and every fragment in the same context.
//
// The store holds cached identity credentials (namespaced per application
// client ID), the transient sign-in return URL, and the silent-SSO session
// backplane entries. Two implementations are provided: an in-memory store
// for tests and ephemeral contexts, and a SQLite-backed store for durable
// standalone contexts.
//
// # Usage
//
// Create a store:
//
//	store := session.NewMemoryStore()
//
// Or durable:
//
//	store, err := session.NewSQLiteStore("/var/lib/mosaic/session.db")
//
// Credential keys:
//
//	key := session.CredentialKey("portal-shell", "account", accountID)
//	store.Set(ctx, key, serialized)
//
// Return URL (read-then-clear, at most one pending):
//
//	session.SetReturnURL(ctx, store, "/billing/invoices")
//	url, ok, err := session.ConsumeReturnURL(ctx, store)
package session
