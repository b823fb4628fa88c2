package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	pkgmqtt "fleetwatch/pkg/mqtt"
)

// MQTTDialer reads the same frame format from a broker topic. The session
// credentials become the broker username and password.
type MQTTDialer struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Logger   *zap.Logger
}

func (d MQTTDialer) Dial(ctx context.Context, creds Credentials) (Conn, error) {
	if d.Topic == "" {
		return nil, errors.New("mqtt topic is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn := newMQTTConn(defaultBufferSize)
	client := pkgmqtt.NewClient(&pkgmqtt.Config{
		Broker:           d.Broker,
		ClientID:         d.ClientID,
		Username:         creds.Username,
		Password:         creds.Password,
		CleanSession:     true,
		KeepAlive:        30,
		ConnectTimeout:   10,
		AutoReconnect:    false,
		Logger:           d.Logger,
		OnConnectionLost: conn.lose,
	})
	if err := client.Connect(); err != nil {
		return nil, err
	}
	if err := client.Subscribe(d.Topic, d.QoS, conn.deliver); err != nil {
		client.Disconnect()
		return nil, err
	}

	conn.client = client
	conn.topic = d.Topic
	return conn, nil
}

type mqttConn struct {
	client *pkgmqtt.Client
	topic  string

	frames chan []byte
	lost   chan error
	closed chan struct{}
	once   sync.Once

	// lostErr is only touched by the reader.
	lostErr error
}

func newMQTTConn(buffer int) *mqttConn {
	return &mqttConn{
		frames: make(chan []byte, buffer),
		lost:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

// deliver runs on the paho router and blocks until the frame is taken, which
// keeps frames in broker order.
func (c *mqttConn) deliver(_ string, payload []byte) {
	frame := append([]byte(nil), payload...)
	select {
	case c.frames <- frame:
	case <-c.closed:
	}
}

func (c *mqttConn) lose(err error) {
	select {
	case c.lost <- err:
	default:
	}
}

// ReadMessage hands out frames delivered before a connection loss ahead of
// the loss itself.
func (c *mqttConn) ReadMessage() ([]byte, error) {
	for {
		select {
		case frame := <-c.frames:
			return frame, nil
		default:
		}
		if c.lostErr != nil {
			return nil, fmt.Errorf("mqtt connection lost: %w", c.lostErr)
		}

		select {
		case frame := <-c.frames:
			return frame, nil
		case err := <-c.lost:
			c.lostErr = err
		case <-c.closed:
			return nil, ErrConnClosed
		}
	}
}

func (c *mqttConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		if c.client != nil {
			_ = c.client.Unsubscribe(c.topic)
			c.client.Disconnect()
		}
	})
	return nil
}
