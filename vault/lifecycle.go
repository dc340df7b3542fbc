package vault

import (
	"time"

	"github.com/Se7en-Seas/boring-vault-go/boringvault"
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
)

// Status describes where a withdraw request sits in its time gate.  A
// request's status is never stored anywhere; it is always derived from
// the request's creation time and the current time.
type Status uint8

const (
	// StatusMaturing means the request has not reached its maturity time
	// and cannot be fulfilled yet.
	StatusMaturing Status = iota

	// StatusReadyToFulfill means the request has matured and its
	// deadline has not passed.
	StatusReadyToFulfill

	// StatusExpired means the request's deadline has passed.  It can no
	// longer be fulfilled, only cancelled.
	StatusExpired
)

// String returns the Status as a human-readable name.
func (s Status) String() string {
	switch s {
	case StatusMaturing:
		return "maturing"
	case StatusReadyToFulfill:
		return "ready"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// RequestTimes is the time gate derived from a withdraw request.  Both
// instants are creation relative: the deadline clock starts at the
// request's creation, not at its maturity.
type RequestTimes struct {
	// Matures is the first instant the request may be fulfilled.
	Matures time.Time

	// Expires is the first instant the request counts as expired.
	Expires time.Time
}

// Times derives the request's time gate.
func Times(req *boringvault.WithdrawRequest) RequestTimes {
	created := int64(req.CreationTime)
	return RequestTimes{
		Matures: time.Unix(created+int64(req.SecondsToMaturity), 0).UTC(),
		Expires: time.Unix(created+int64(req.SecondsToDeadline), 0).UTC(),
	}
}

// StatusAt returns the request's status at the passed instant.  For a
// fixed request the result only ever advances maturing, ready, expired
// as now increases.
func (rt RequestTimes) StatusAt(now time.Time) Status {
	if !now.Before(rt.Expires) {
		return StatusExpired
	}
	if !now.Before(rt.Matures) {
		return StatusReadyToFulfill
	}
	return StatusMaturing
}

// UntilMature returns the remaining wait before the request matures,
// clamped at zero.
func (rt RequestTimes) UntilMature(now time.Time) time.Duration {
	if d := rt.Matures.Sub(now); d > 0 {
		return d
	}
	return 0
}

// UntilExpiry returns the remaining fulfillment window, clamped at zero.
func (rt RequestTimes) UntilExpiry(now time.Time) time.Duration {
	if d := rt.Expires.Sub(now); d > 0 {
		return d
	}
	return 0
}

// RequestInfo pairs a decoded withdraw request with its derived address
// and the time-gate view taken when it was listed.
type RequestInfo struct {
	Address pubkey.Key
	Request *boringvault.WithdrawRequest
	Times   RequestTimes
	Status  Status
}

func newRequestInfo(addr pubkey.Key, req *boringvault.WithdrawRequest, now time.Time) *RequestInfo {
	times := Times(req)
	return &RequestInfo{
		Address: addr,
		Request: req,
		Times:   times,
		Status:  times.StatusAt(now),
	}
}
