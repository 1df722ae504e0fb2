// Package structured asks a Generator for JSON that must satisfy both a
// grammar and a semantic validator.
//
// The grammar only guarantees syntax. A completion that parses but fails
// validation (too few list entries, blank fields) is retried: the first
// attempt runs at the policy's base temperature and every retry at its
// escalated temperature, until MaxRetries attempts have been made.
// Generation errors other than context cancellation count as failed
// attempts too.
package structured
