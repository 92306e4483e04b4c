package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrClientClosed is returned for requests on a closed client
var ErrClientClosed = errors.New("relay connection closed")

// Client is the unprivileged side of the relay
type Client struct {
	conn *websocket.Conn
	log  logrus.FieldLogger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Message
	err     error

	chunks   chan Message
	onNotice func(Message)
	done     chan struct{}
}

// Dial connects to the relay at url (ws://host:port/relay)
func Dial(ctx context.Context, url string, log logrus.FieldLogger) (*Client, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: writeWait}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay at %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		log:     log,
		pending: make(map[string]chan Message),
		chunks:  make(chan Message, sendBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Chunks returns stream chunk pushes. It is closed when the connection ends.
func (c *Client) Chunks() <-chan Message {
	return c.chunks
}

// OnNotice registers fn for server pushes that are neither chunks nor
// replies, such as TypeSettingsChanged. fn runs on the read loop.
func (c *Client) OnNotice(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNotice = fn
}

// Request sends msg and waits for its reply. An ID is assigned when msg
// has none.
func (c *Client) Request(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	replyCh := make(chan Message, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return Message{}, err
	}
	c.pending[msg.ID] = replyCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	if err := c.write(msg); err != nil {
		return Message{}, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-c.done:
		return Message{}, c.closeErr()
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *Client) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

// Close ends the connection
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return ErrClientClosed
	}
	return c.err
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		if c.err == nil {
			c.err = ErrClientClosed
		}
		c.mu.Unlock()
		close(c.chunks)
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.mu.Lock()
				c.err = fmt.Errorf("%w: %v", ErrClientClosed, err)
				c.mu.Unlock()
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.WithError(err).Debug("ignoring malformed message")
			continue
		}

		if msg.Type == TypeStreamChunk {
			select {
			case c.chunks <- msg:
			default:
				c.log.WithField("correlation_id", msg.CorrelationID).Debug("chunk buffer full, dropping")
			}
			continue
		}

		c.mu.Lock()
		replyCh, ok := c.pending[msg.ID]
		notice := c.onNotice
		c.mu.Unlock()
		if msg.ID == "" {
			if notice != nil {
				notice(msg)
			}
			continue
		}
		if ok {
			select {
			case replyCh <- msg:
			default:
			}
		}
	}
}
