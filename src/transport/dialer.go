// Package transport dials the session server over WebSocket and adapts the
// connection to types.Conn.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
	"github.com/seika-app/pomosync/src/types"
)

// ErrHandshakeRejected is returned when the server refuses the upgrade
// because the credential is invalid or expired.
var ErrHandshakeRejected = errors.New("handshake rejected")

// Config holds WebSocket client settings.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
}

// DefaultConfig returns the default client transport configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
}

// Dialer opens WebSocket connections to the session server.
type Dialer struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	logger       zerolog.Logger
}

// NewDialer creates a Dialer. Zero fields in cfg fall back to DefaultConfig.
func NewDialer(cfg Config, logger zerolog.Logger) *Dialer {
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = def.WriteBufferSize
	}
	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
		writeTimeout: cfg.WriteTimeout,
		logger:       logger.With().Str("component", "transport").Logger(),
	}
}

// Dial connects to rawURL. A handshake answered with 401, 403 or 410 is
// reported as ErrHandshakeRejected.
func (d *Dialer) Dial(ctx context.Context, rawURL string) (types.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && isAuthStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: status %d", ErrHandshakeRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial session server: %w", err)
	}
	d.logger.Debug().Str("url", redact(rawURL)).Msg("websocket handshake complete")
	return &wsConn{conn: conn, writeTimeout: d.writeTimeout}, nil
}

func isAuthStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusGone:
		return true
	}
	return false
}

// wsConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &types.CloseError{Code: ce.Code, Reason: ce.Text}
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) CloseWithCode(code int, reason string) error {
	c.mu.Lock()
	deadline := time.Now().Add(c.writeTimeout)
	err := c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.mu.Unlock()
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *wsConn) Close() error { return c.conn.Close() }
