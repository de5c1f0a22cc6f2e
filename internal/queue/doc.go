// Package queue persists pipeline work items in SQLite.
//
// The queue doubles as the pending worklist for backlog scans: discovered
// streams are inserted as pending rows and advanced status-by-status until
// they reach a terminal state.
package queue
