// Package models holds contracts shared across packages without import cycles.
package models

// RecoverableError is implemented by enriched errors that carry structured
// context and remediation hints (dropped rules, failed fetches, bad config).
// The output package renders these fields in the JSON error envelope.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}
