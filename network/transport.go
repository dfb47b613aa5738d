package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/automoto/fragnet/shared/messages"
	"github.com/coder/websocket"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
)

// Conn is an established connection to a game server.
type Conn interface {
	Send(ctx context.Context, env messages.Envelope) error
	Close() error
}

// Dialer opens connections. recv is called for every inbound envelope and
// closed exactly once when an established connection drops. Both may be
// called from transport goroutines.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, recv func(messages.Envelope), closed func(error)) (Conn, error)
}

// WsDialer connects over WebSocket through the necs client transport. The
// necs router is process wide, so only one connection may be open at a time.
type WsDialer struct{}

func (WsDialer) Dial(ctx context.Context, endpoint string, recv func(messages.Envelope), closed func(error)) (Conn, error) {
	router.ResetRouter()

	var once sync.Once
	done := func(err error) { once.Do(func() { closed(err) }) }

	router.On(func(_ *router.NetworkClient, env messages.Envelope) {
		recv(env)
	})
	router.OnDisconnect(func(_ *router.NetworkClient, err error) {
		log.Printf("[client] disconnected: %v", err)
		done(err)
	})
	router.OnError(func(_ *router.NetworkClient, err error) {
		log.Printf("[client] error: %v", err)
	})

	connected := make(chan *websocket.Conn, 1)
	failed := make(chan error, 1)
	go func() {
		transport := transports.NewWsClientTransport(wsURL(endpoint))
		err := transport.Start(func(conn *websocket.Conn) {
			connected <- conn
		})
		if err != nil {
			failed <- err
			done(err)
		}
	}()

	select {
	case conn := <-connected:
		return &wsConn{conn: conn}, nil
	case err := <-failed:
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	case <-ctx.Done():
		go func() {
			select {
			case conn := <-connected:
				_ = conn.CloseNow()
			case <-failed:
			}
		}()
		return nil, fmt.Errorf("dial %s: %w", endpoint, ctx.Err())
	}
}

func wsURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return endpoint
	}
	return "ws://" + endpoint
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, env messages.Envelope) error {
	payload, err := router.Serialize(env)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	return c.conn.Write(ctx, websocket.MessageBinary, payload)
}

// Close drops the socket. Router callbacks stay registered until the next
// Dial resets them; events they deliver for a closed connection are ignored.
func (c *wsConn) Close() error {
	err := c.conn.CloseNow()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
