// Package daemon hosts the long-running pipeline process: it enforces
// single-instance execution with a file lock, runs workflow passes on a
// fixed interval, and exposes queue administration used by the CLI.
package daemon
