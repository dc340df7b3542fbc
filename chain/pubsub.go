package chain

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/gorilla/websocket"
)

// handshakeTimeout bounds the websocket upgrade when dialing.
const handshakeTimeout = 10 * time.Second

// notificationBuffer is the channel depth before a slow consumer starts
// delaying the read loop.
const notificationBuffer = 16

// PubSubClient delivers account change notifications over the node's
// websocket endpoint.  Notifications are read from the channel returned by
// Notifications rather than handled in transport callbacks, so consumers
// may make blocking client calls while processing them.
//
// The client does not reconnect.  When the connection fails it delivers a
// SubscriptionLost notification and closes the channel; the consumer
// decides whether to construct and start a replacement.
type PubSubClient struct {
	url        string
	commitment Commitment

	conn      *websocket.Conn
	requestID uint64

	mtx     sync.Mutex
	pending map[uint64]pubkey.Key // request id -> key awaiting its sub id
	subs    map[uint64]pubkey.Key // sub id -> key

	writeMtx sync.Mutex

	notifications chan interface{}
	quit          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewPubSubClient returns an unstarted client for the given websocket
// endpoint.  An empty commitment selects confirmed.
func NewPubSubClient(url string, commitment Commitment) *PubSubClient {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	return &PubSubClient{
		url:           url,
		commitment:    commitment,
		pending:       make(map[uint64]pubkey.Key),
		subs:          make(map[uint64]pubkey.Key),
		notifications: make(chan interface{}, notificationBuffer),
		quit:          make(chan struct{}),
	}
}

// Start dials the endpoint and begins delivering notifications.
func (c *PubSubClient) Start(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	c.notifications <- ClientConnected{}

	c.wg.Add(1)
	go c.readLoop()

	log.Infof("Subscribed connection established to %s", c.url)
	return nil
}

// Stop closes the connection, which unblocks the read loop and closes the
// notification channel.  It is safe to call more than once.
func (c *PubSubClient) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// WaitForShutdown blocks until the read loop has exited.
func (c *PubSubClient) WaitForShutdown() {
	c.wg.Wait()
}

// Notifications returns the channel notifications are delivered on.  The
// channel is closed once the connection is lost or Stop is called.
func (c *PubSubClient) Notifications() <-chan interface{} {
	return c.notifications
}

// SubscribeAccount registers for change notifications on key.  The
// subscription stays active for the life of the connection.
func (c *PubSubClient) SubscribeAccount(key pubkey.Key) error {
	id := atomic.AddUint64(&c.requestID, 1)
	c.mtx.Lock()
	c.pending[id] = key
	c.mtx.Unlock()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "accountSubscribe",
		Params: []interface{}{
			key.String(),
			map[string]interface{}{
				"encoding":   "base64",
				"commitment": c.commitment,
			},
		},
	}

	c.writeMtx.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMtx.Unlock()
	if err != nil {
		c.mtx.Lock()
		delete(c.pending, id)
		c.mtx.Unlock()
		return err
	}
	return nil
}

// wsMessage is the superset shape of everything the endpoint sends:
// request responses carry ID and Result/Error, server-initiated
// notifications carry Method and Params.
type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (c *PubSubClient) readLoop() {
	defer c.wg.Done()
	defer close(c.notifications)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.quit:
			default:
				log.Warnf("Subscription connection lost: %v", err)
				c.deliver(SubscriptionLost{Err: err})
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warnf("Dropping malformed subscription message: %v", err)
			continue
		}
		switch {
		case msg.ID != 0:
			c.handleSubResponse(&msg)
		case msg.Method == "accountNotification":
			c.handleAccountNotification(msg.Params)
		default:
			log.Debugf("Ignoring %q notification", msg.Method)
		}
	}
}

func (c *PubSubClient) handleSubResponse(msg *wsMessage) {
	c.mtx.Lock()
	key, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mtx.Unlock()
	if !ok {
		log.Debugf("Response for unknown request id %d", msg.ID)
		return
	}
	if msg.Error != nil {
		log.Warnf("Subscription for %s rejected: %v", key, msg.Error)
		return
	}

	var subID uint64
	if err := json.Unmarshal(msg.Result, &subID); err != nil {
		log.Warnf("Malformed subscription id for %s: %v", key, err)
		return
	}
	c.mtx.Lock()
	c.subs[subID] = key
	c.mtx.Unlock()
	log.Debugf("Watching account %s (subscription %d)", key, subID)
}

func (c *PubSubClient) handleAccountNotification(raw json.RawMessage) {
	var params struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context rpcContext  `json:"context"`
			Value   *rpcAccount `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		log.Warnf("Dropping malformed account notification: %v", err)
		return
	}

	c.mtx.Lock()
	key, ok := c.subs[params.Subscription]
	c.mtx.Unlock()
	if !ok {
		log.Debugf("Notification for unknown subscription %d",
			params.Subscription)
		return
	}

	var account *Account
	if params.Result.Value != nil {
		var err error
		account, err = params.Result.Value.account(params.Result.Context.Slot)
		if err != nil {
			log.Warnf("Dropping undecodable update for %s: %v", key, err)
			return
		}
	}
	c.deliver(AccountChanged{Key: key, Account: account})
}

// deliver sends a notification unless shutdown has begun.
func (c *PubSubClient) deliver(n interface{}) {
	select {
	case c.notifications <- n:
	case <-c.quit:
	}
}
