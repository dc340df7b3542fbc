package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Se7en-Seas/boring-vault-go/boringvault"
)

func TestRequestTimes(t *testing.T) {
	req := testRequest(testOwner, 0)
	times := Times(req)

	require.Equal(t, testStart.Add(time.Hour), times.Matures)
	require.Equal(t, testStart.Add(24*time.Hour), times.Expires)
}

func TestStatusSchedule(t *testing.T) {
	times := Times(testRequest(testOwner, 0))

	tests := []struct {
		name        string
		now         time.Time
		status      Status
		untilMature time.Duration
		untilExpiry time.Duration
	}{
		{
			name:        "at creation",
			now:         testStart,
			status:      StatusMaturing,
			untilMature: time.Hour,
			untilExpiry: 24 * time.Hour,
		},
		{
			name:        "just before maturity",
			now:         testStart.Add(time.Hour - time.Second),
			status:      StatusMaturing,
			untilMature: time.Second,
			untilExpiry: 23*time.Hour + time.Second,
		},
		{
			name:        "at maturity",
			now:         testStart.Add(time.Hour),
			status:      StatusReadyToFulfill,
			untilMature: 0,
			untilExpiry: 23 * time.Hour,
		},
		{
			name:        "just before deadline",
			now:         testStart.Add(24*time.Hour - time.Second),
			status:      StatusReadyToFulfill,
			untilMature: 0,
			untilExpiry: time.Second,
		},
		{
			name:        "at deadline",
			now:         testStart.Add(24 * time.Hour),
			status:      StatusExpired,
			untilMature: 0,
			untilExpiry: 0,
		},
		{
			name:        "long after deadline",
			now:         testStart.Add(240 * time.Hour),
			status:      StatusExpired,
			untilMature: 0,
			untilExpiry: 0,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.status, times.StatusAt(test.now))
			require.Equal(t, test.untilMature, times.UntilMature(test.now))
			require.Equal(t, test.untilExpiry, times.UntilExpiry(test.now))
		})
	}
}

// TestStatusMonotone walks a request's whole lifetime and checks the
// status never moves backwards.
func TestStatusMonotone(t *testing.T) {
	times := Times(testRequest(testOwner, 0))

	prev := StatusMaturing
	for offset := time.Duration(0); offset <= 25*time.Hour; offset += 10 * time.Minute {
		status := times.StatusAt(testStart.Add(offset))
		require.GreaterOrEqual(t, int(status), int(prev),
			"status regressed at offset %v", offset)
		prev = status
	}
	require.Equal(t, StatusExpired, prev)
}

func TestZeroMaturityIsImmediatelyReady(t *testing.T) {
	req := testRequest(testOwner, 0)
	req.SecondsToMaturity = 0
	times := Times(req)

	require.Equal(t, StatusReadyToFulfill, times.StatusAt(testStart))
}

func TestZeroDeadlineIsImmediatelyExpired(t *testing.T) {
	req := testRequest(testOwner, 0)
	req.SecondsToMaturity = 0
	req.SecondsToDeadline = 0
	times := Times(req)

	require.Equal(t, StatusExpired, times.StatusAt(testStart))
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "maturing", StatusMaturing.String())
	require.Equal(t, "ready", StatusReadyToFulfill.String())
	require.Equal(t, "expired", StatusExpired.String())
	require.Equal(t, "unknown", Status(99).String())
}

func TestNewRequestInfo(t *testing.T) {
	req := testRequest(testOwner, 2)
	var addr = testKey(0x99)

	info := newRequestInfo(addr, req, testStart.Add(2*time.Hour))
	require.Equal(t, addr, info.Address)
	require.Same(t, req, info.Request)
	require.Equal(t, StatusReadyToFulfill, info.Status)
	require.Equal(t, Times(req), info.Times)
}

// Requests decoded from chain bytes must produce the same gate as ones
// built in memory.
func TestTimesFromDecodedRequest(t *testing.T) {
	req := testRequest(testOwner, 0)
	decoded, err := boringvault.DecodeWithdrawRequest(testKey(0x99), req.Encode())
	require.NoError(t, err)
	require.Equal(t, Times(req), Times(decoded))
}
