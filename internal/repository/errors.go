// Package repository holds the MySQL data access of the checkout service.
// Sentinel errors defined here let higher layers tell "nothing configured"
// apart from a failing database.
package repository

import "errors"

// ErrNoFloorRules is returned when the price_floors table is empty.  The
// floor advisor then reports an unknown floor and the server's check stays
// the only gate.
var ErrNoFloorRules = errors.New("no floor rules")
