package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// wsTestServer upgrades one connection and hands it to serve.
func wsTestServer(t *testing.T, serve func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func awaitNotification(t *testing.T, c *PubSubClient) interface{} {
	t.Helper()
	select {
	case n, ok := <-c.Notifications():
		require.True(t, ok, "notification channel closed")
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func TestPubSubAccountNotifications(t *testing.T) {
	watched := pubkey.SysvarClockID

	url := wsTestServer(t, func(conn *websocket.Conn) {
		// Confirm the subscription, then push one change and one close.
		var req rpcRequest
		require.NoError(t, conn.ReadJSON(&req))
		require.Equal(t, "accountSubscribe", req.Method)
		require.Equal(t, watched.String(), req.Params[0])

		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID, "result": 77,
		}))
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "accountNotification",
			"params": map[string]interface{}{
				"subscription": 77,
				"result": map[string]interface{}{
					"context": map[string]interface{}{"slot": 31},
					"value": map[string]interface{}{
						"data":     []string{"BQY=", "base64"},
						"owner":    pubkey.SystemProgramID.String(),
						"lamports": 12,
					},
				},
			},
		}))
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "accountNotification",
			"params": map[string]interface{}{
				"subscription": 77,
				"result": map[string]interface{}{
					"context": map[string]interface{}{"slot": 32},
					"value":   nil,
				},
			},
		}))

		// Hold the connection open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client := NewPubSubClient(url, CommitmentConfirmed)
	require.NoError(t, client.Start(context.Background()))
	defer func() {
		client.Stop()
		client.WaitForShutdown()
	}()

	require.IsType(t, ClientConnected{}, awaitNotification(t, client))
	require.NoError(t, client.SubscribeAccount(watched))

	n := awaitNotification(t, client)
	changed, ok := n.(AccountChanged)
	require.True(t, ok, "unexpected notification %T", n)
	require.Equal(t, watched, changed.Key)
	require.NotNil(t, changed.Account)
	require.Equal(t, []byte{5, 6}, changed.Account.Data)
	require.Equal(t, uint64(31), changed.Account.Slot)

	// A null value notification reports the account as closed.
	n = awaitNotification(t, client)
	closed, ok := n.(AccountChanged)
	require.True(t, ok, "unexpected notification %T", n)
	require.Nil(t, closed.Account)
}

// TestPubSubConnectionLost checks that a server-side disconnect surfaces as
// SubscriptionLost followed by channel close.
func TestPubSubConnectionLost(t *testing.T) {
	url := wsTestServer(t, func(conn *websocket.Conn) {
		// Drop the connection immediately.
	})

	client := NewPubSubClient(url, "")
	require.NoError(t, client.Start(context.Background()))
	defer func() {
		client.Stop()
		client.WaitForShutdown()
	}()

	require.IsType(t, ClientConnected{}, awaitNotification(t, client))

	lost, ok := awaitNotification(t, client).(SubscriptionLost)
	require.True(t, ok)
	require.Error(t, lost.Err)

	select {
	case _, open := <-client.Notifications():
		require.False(t, open, "channel should close after SubscriptionLost")
	case <-time.After(5 * time.Second):
		t.Fatal("notification channel never closed")
	}
}

// TestPubSubIgnoresUnknownSubscription checks that notifications for
// subscriptions this client never made are dropped rather than delivered.
func TestPubSubIgnoresUnknownSubscription(t *testing.T) {
	url := wsTestServer(t, func(conn *websocket.Conn) {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "accountNotification",
			"params": map[string]interface{}{
				"subscription": 999,
				"result": map[string]interface{}{
					"context": map[string]interface{}{"slot": 1},
					"value":   nil,
				},
			},
		}))
	})

	client := NewPubSubClient(url, "")
	require.NoError(t, client.Start(context.Background()))
	defer func() {
		client.Stop()
		client.WaitForShutdown()
	}()

	require.IsType(t, ClientConnected{}, awaitNotification(t, client))

	// The unknown-subscription update must not be delivered; the next
	// notification is the disconnect.
	n := awaitNotification(t, client)
	_, wasLost := n.(SubscriptionLost)
	require.True(t, wasLost, "unexpected notification %T", n)
}

// Guard the wsMessage shape against field renames: a subscription response
// and a notification must both unmarshal into it.
func TestWSMessageShape(t *testing.T) {
	var resp wsMessage
	require.NoError(t, json.Unmarshal(
		[]byte(`{"jsonrpc":"2.0","id":3,"result":42}`), &resp))
	require.Equal(t, uint64(3), resp.ID)

	var notif wsMessage
	require.NoError(t, json.Unmarshal(
		[]byte(`{"jsonrpc":"2.0","method":"accountNotification","params":{"subscription":1}}`), &notif))
	require.Equal(t, "accountNotification", notif.Method)
	require.Zero(t, notif.ID)
}
