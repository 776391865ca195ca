// Package queue defines message payloads exchanged over the message broker.
package queue

// AnalyticsEvent is published for every user-facing operation (creation,
// login, updates, deletion).  Downstream consumers build product analytics
// from these without querying the primary database.
type AnalyticsEvent struct {
	UserID     uint64 `json:"user_id"`
	Event      string `json:"event"`
	OccurredAt string `json:"occurred_at"`
}

// AliasEvent links a user id to its email in the analytics store.  It is
// published once, when the account is created.
type AliasEvent struct {
	UserID uint64 `json:"user_id"`
	Email  string `json:"email"`
}
