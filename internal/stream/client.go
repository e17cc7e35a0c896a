package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/config"
	"github.com/Faultbox/bimstream/internal/logger"
)

// Client reads loader messages from a Server.
type Client struct {
	url       string
	dialer    websocket.Dialer
	readLimit int64
	log       *zap.Logger
}

// NewClient creates a client for the ws:// url in cfg.
func NewClient(cfg config.StreamConfig) *Client {
	return &Client{
		url: cfg.URL,
		dialer: websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   64 << 10,
		},
		readLimit: cfg.ReadLimit,
		log:       logger.Named("stream"),
	}
}

// Run dials the server and sends every message to out until the server
// closes the stream, ctx is cancelled or a read fails. out is not closed.
func (c *Client) Run(ctx context.Context, out chan<- Message) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.url, err)
	}
	defer conn.Close()
	if c.readLimit > 0 {
		conn.SetReadLimit(c.readLimit)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	c.log.Info("connected", zap.String("url", c.url))
	var n int
	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.log.Info("stream complete", zap.Int("messages", n))
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading message %d: %w", n, err)
		}
		n++

		select {
		case out <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
