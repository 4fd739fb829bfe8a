// Package idgen generates the receipt identifiers the multiplexer uses as
// routing-table keys (spec §3, §4.3); Client.Disconnect is its only
// caller. Subscription ids are not generated here: the caller of
// Client.Subscribe chooses them. STOMP places no constraints on these ids
// beyond "unique within the connection", so any collision-resistant
// generator works; a v4 UUID needs no connection-local counter or
// coordination, which keeps Client free of any "next id" state.
package idgen

import "github.com/google/uuid"

// New returns a fresh identifier suitable for a SUBSCRIBE id, an ACK id
// reference, or a receipt id header.
func New() string {
	return uuid.NewString()
}
