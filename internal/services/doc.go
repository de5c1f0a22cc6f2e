// Package services provides shared error classification and context
// annotation helpers used by the pipeline stages and their collaborators.
package services
