// Package model defines the shared value types of the range-indexed
// journal: transaction ids, journal keys, group keys and the participant
// sum type, plus the pure collaborator functions the journal owner
// supplies (participant extraction, key access, eligibility, watermark
// confirmation).
package model
