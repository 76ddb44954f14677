package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"SessionBreak/internal/domain/models"
	drepo "SessionBreak/internal/domain/repository"
	"SessionBreak/pkg/logger"
	"SessionBreak/pkg/util"
)

var ErrNotConnected = errors.New("feed: not connected")

// Config for the websocket quote feed.
type Config struct {
	APIKey         string
	URL            string
	Symbols        []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	BufferSize     int
}

// Client streams quotes from a Finnhub style websocket. Trade frames carry a
// single price and become zero-spread quotes; quote frames carry bid and ask.
type Client struct {
	cfg Config
	log *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	dropped   uint64
}

func New(cfg Config, log *logger.Logger) *Client {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{cfg: cfg, log: log}
}

func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("feed url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("feed connected", logger.String("host", u.Host))
	return nil
}

func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return ErrNotConnected
	}
	for _, s := range c.cfg.Symbols {
		if err := c.conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.log.Info("feed subscribed", logger.Strings("symbols", c.cfg.Symbols))
	return nil
}

type frameItem struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	B float64 `json:"b"`
	A float64 `json:"a"`
	T int64   `json:"t"`
}

type frame struct {
	Type string      `json:"type"`
	Data []frameItem `json:"data"`
}

// decodeFrame turns one websocket message into quotes. Pings and unknown
// frame types yield nothing.
func decodeFrame(b []byte) ([]*models.Quote, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if f.Type != "trade" && f.Type != "quote" {
		return nil, nil
	}
	out := make([]*models.Quote, 0, len(f.Data))
	for _, d := range f.Data {
		q := &models.Quote{Symbol: d.S, Bid: d.B, Ask: d.A, Time: util.UnixAuto(d.T)}
		if f.Type == "trade" {
			q.Bid, q.Ask = d.P, d.P
		}
		out = append(out, q)
	}
	return out, nil
}

// Read starts the ping and read loops. The error channel receives the read
// failure that ended the stream; both channels close when it ends.
func (c *Client) Read(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	quotes := make(chan *models.Quote, c.cfg.BufferSize)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		errs <- ErrNotConnected
		close(quotes)
		close(errs)
		return quotes, errs
	}

	stop := make(chan struct{})
	go c.pingLoop(ctx, conn, stop)
	go func() {
		defer close(errs)
		defer close(quotes)
		defer close(stop)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("feed read: %w", err)
				}
				return
			}
			qs, err := decodeFrame(b)
			if err != nil {
				continue
			}
			for _, q := range qs {
				select {
				case quotes <- q:
				case <-ctx.Done():
					return
				default:
					c.mu.Lock()
					c.dropped++
					c.mu.Unlock()
				}
			}
		}
	}()
	return quotes, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.mu.Unlock()
			if err != nil {
				c.log.Warn("feed ping failed", logger.Error(err))
			}
		}
	}
}

// Reconnect waits the configured delay, dials again and resubscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.cfg.ReconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Dropped counts quotes discarded because the consumer fell behind.
func (c *Client) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

var _ drepo.QuoteStream = (*Client)(nil)
