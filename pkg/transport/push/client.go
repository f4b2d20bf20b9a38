package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"

	"corridorbots/pkg/corridor"
)

const (
	SnapshotDestination = "/user/queue/snapshot"
	TextDestination     = "/app/text"

	defaultHandshakeTimeout = 10 * time.Second
	readLimit               = 1 << 20
)

var stompSubprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// ErrClosed is returned by SendText after the connection was closed.
var ErrClosed = errors.New("push connection closed")

// SnapshotHandler receives every decoded snapshot in arrival order.
type SnapshotHandler func(corridor.Snapshot)

// Dialer opens STOMP push subscriptions against one WebSocket endpoint.
type Dialer struct {
	endpoint         string
	handshakeTimeout time.Duration
}

func NewDialer(endpoint string, handshakeTimeout time.Duration) (*Dialer, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("corridor.ws_endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse ws endpoint: %w", err)
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}

	return &Dialer{endpoint: endpoint, handshakeTimeout: handshakeTimeout}, nil
}

// Conn is one authenticated STOMP session subscribed to the bot's snapshot queue.
type Conn struct {
	ws     *websocket.Conn
	log    *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	closed    bool
}

// Connect dials the endpoint, performs the STOMP handshake with the bearer
// token, subscribes to snapshots and starts delivering them to handler.
// The returned Conn lives until Close or until ctx is cancelled.
func (d *Dialer) Connect(ctx context.Context, token string, handler SnapshotHandler) (*Conn, error) {
	if handler == nil {
		return nil, errors.New("snapshot handler is required")
	}

	handshakeCtx, cancelHandshake := context.WithTimeout(ctx, d.handshakeTimeout)
	defer cancelHandshake()

	ws, _, err := websocket.Dial(handshakeCtx, d.endpoint, &websocket.DialOptions{Subprotocols: stompSubprotocols})
	if err != nil {
		return nil, fmt.Errorf("dial push endpoint: %w", err)
	}
	ws.SetReadLimit(readLimit)

	host := d.endpoint
	if parsed, err := url.Parse(d.endpoint); err == nil && parsed.Host != "" {
		host = parsed.Hostname()
	}

	connect := frame.New(frame.CONNECT,
		"accept-version", "1.2,1.1,1.0",
		"host", host,
		"heart-beat", "0,0",
		"Authorization", "Bearer "+token,
	)
	if err := writeFrame(handshakeCtx, ws, connect); err != nil {
		ws.Close(websocket.StatusInternalError, "connect failed")
		return nil, fmt.Errorf("send CONNECT: %w", err)
	}

	if err := awaitConnected(handshakeCtx, ws); err != nil {
		ws.Close(websocket.StatusPolicyViolation, "handshake failed")
		return nil, err
	}

	subscribe := frame.New(frame.SUBSCRIBE,
		"id", "sub-0",
		"destination", SnapshotDestination,
		"ack", "auto",
	)
	if err := writeFrame(handshakeCtx, ws, subscribe); err != nil {
		ws.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, fmt.Errorf("send SUBSCRIBE: %w", err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	c := &Conn{
		ws:     ws,
		log:    slog.Default().With("component", "transport.push"),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop(readCtx, handler)

	return c, nil
}

func writeFrame(ctx context.Context, ws *websocket.Conn, f *frame.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}

	return ws.Write(ctx, websocket.MessageText, data)
}

func awaitConnected(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return fmt.Errorf("await CONNECTED: %w", err)
		}

		frames, err := decodeFrames(data)
		if err != nil {
			return fmt.Errorf("await CONNECTED: %w", err)
		}
		for _, f := range frames {
			switch f.Command {
			case frame.CONNECTED:
				return nil
			case frame.ERROR:
				message := f.Header.Get("message")
				return fmt.Errorf("stomp handshake rejected: %s", strings.TrimSpace(message+" "+string(f.Body)))
			}
		}
	}
}

func (c *Conn) readLoop(ctx context.Context, handler SnapshotHandler) {
	defer close(c.done)

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			c.finish(err)
			return
		}

		frames, err := decodeFrames(data)
		if err != nil {
			c.log.Warn("Dropping malformed stomp frame", "error", err)
			continue
		}

		for _, f := range frames {
			switch f.Command {
			case frame.MESSAGE:
				if destination := f.Header.Get("destination"); destination != SnapshotDestination {
					c.log.Debug("Ignoring message for unknown destination", "destination", destination)
					continue
				}
				snap, err := corridor.DecodeSnapshot(f.Body)
				if err != nil {
					c.log.Warn("Dropping undecodable snapshot", "error", err)
					continue
				}
				handler(snap)
			case frame.ERROR:
				message := f.Header.Get("message")
				c.finish(fmt.Errorf("stomp error: %s", message))
				c.ws.Close(websocket.StatusNormalClosure, "stomp error")
				return
			}
		}
	}
}

func (c *Conn) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.err != nil {
		return
	}
	if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return
	}
	c.err = err
}

// SendText publishes the bot's visible text.
func (c *Conn) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return fmt.Errorf("encode text update: %w", err)
	}

	send := frame.New(frame.SEND,
		"destination", TextDestination,
		"content-type", "application/json",
		"content-length", strconv.Itoa(len(body)),
	)
	send.Body = body

	if err := writeFrame(ctx, c.ws, send); err != nil {
		return fmt.Errorf("send text: %w", err)
	}

	return nil
}

// Done is closed once the read loop has stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the subscription ended, or nil for a normal close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close disconnects and waits for the read loop to exit. It is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		writeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = writeFrame(writeCtx, c.ws, frame.New(frame.DISCONNECT))
		cancel()

		_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
		c.cancel()
	})
	<-c.done

	return nil
}
