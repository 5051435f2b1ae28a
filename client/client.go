// Package client is a small Go client library for zaichik, mirroring
// the connect/subscribe/read_message shape of the broker's reference
// client but extended to the full command set: publish, commit,
// unsubscribe, topic creation and graceful close.
package client

import (
	"fmt"
	"net"
	"time"

	"zaichik/internals/protocol"
)

// Client is a single connection to a zaichik broker. It is not safe
// for concurrent use by multiple goroutines.
type Client struct {
	conn net.Conn
	enc  *protocol.Encoder
	dec  *protocol.Decoder
}

// Connect dials addr and wraps the connection in the zaichik wire
// codec.
func Connect(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect to %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		enc:  protocol.NewEncoder(conn),
		dec:  protocol.NewDecoder(conn),
	}, nil
}

// ReadMessage blocks for the next frame the broker sends on this
// connection, whether it's a reply to a command or an asynchronous
// Message delivery.
func (c *Client) ReadMessage() (protocol.Frame, error) {
	return c.dec.ReadFrame()
}

// CreateTopic asks the broker to create a topic with explicit
// retention and compaction settings.
func (c *Client) CreateTopic(name string, retention, compaction time.Duration) error {
	return c.send(protocol.CreateTopicFrame{Name: name, RetentionTTL: retention, CompactionWindow: compaction})
}

// SubscribeOn attaches the connection to topic, auto-creating it with
// no retention or compaction if it doesn't exist yet.
func (c *Client) SubscribeOn(topic string) error {
	return c.send(protocol.SubscribeFrame{Name: topic})
}

// Unsubscribe detaches the connection from topic.
func (c *Client) Unsubscribe(topic string) error {
	return c.send(protocol.UnsubscribeFrame{Name: topic})
}

// Publish sends payload to topic, optionally keyed for compaction.
func (c *Client) Publish(topic string, key *string, payload []byte) error {
	return c.send(protocol.PublishFrame{Name: topic, Key: key, Payload: payload})
}

// Commit acknowledges the most recently delivered Message and resumes
// data-plane flow for this connection.
func (c *Client) Commit() error {
	return c.send(protocol.CommitFrame{})
}

// Close asks the broker to gracefully tear down the connection, then
// closes the local socket.
func (c *Client) Close() error {
	sendErr := c.send(protocol.CloseFrame{})
	closeErr := c.conn.Close()
	if sendErr != nil {
		return sendErr
	}
	return closeErr
}

func (c *Client) send(f protocol.Frame) error {
	if err := c.enc.WriteFrame(f); err != nil {
		return err
	}
	return c.enc.Flush()
}
