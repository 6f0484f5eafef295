// Package repository implements the record lifecycle rules of the front
// desk over the relational store: registration, meal and demand updates
// with their audit trail, departure and reactivation, the archival clone
// policy, next-day rollover and the reporting queries.
package repository

import "errors"

// ErrNotFound is returned when an operation references a record id that
// does not exist. No partial mutation happens.
var ErrNotFound = errors.New("record not found")

// ErrInvalidState is returned for transitions the lifecycle forbids:
// departing twice without a reactivation, or reactivating an active record.
var ErrInvalidState = errors.New("invalid record state")

// ErrValidation is returned for malformed input (missing or extra fields,
// bad clock text, a start time without an end time). The store is never
// touched when it is returned.
var ErrValidation = errors.New("validation failed")
