// Package notifications delivers push notifications for pipeline events
// through ntfy. When no topic is configured every notification is a no-op.
package notifications
