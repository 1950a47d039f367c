package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection with the small surface the swarm needs.
type Client struct {
	conn *nats.Conn
}

// NewClient connects to an embedded Bus.
func NewClient(bus *Bus) (*Client, error) {
	return NewClientFromURL(bus.ClientURL())
}

// NewClientFromURL connects to any NATS server, embedded or external.
func NewClientFromURL(url string) (*Client, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Publish sends raw bytes to a topic.
func (c *Client) Publish(topic string, data []byte) error {
	return c.conn.Publish(topic, data)
}

// PublishJSON marshals v and publishes it.
func (c *Client) PublishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.conn.Publish(topic, data)
}

// Subscribe registers a handler for a topic (wildcards allowed).
func (c *Client) Subscribe(topic string, handler func(msg *nats.Msg)) (*nats.Subscription, error) {
	return c.conn.Subscribe(topic, handler)
}

// Request performs a request/reply exchange with a timeout.
func (c *Client) Request(topic string, data []byte, timeout time.Duration) (*nats.Msg, error) {
	return c.conn.Request(topic, data, timeout)
}

// Flush blocks until all buffered publishes reach the server.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// Close terminates the connection.
func (c *Client) Close() {
	c.conn.Close()
}
