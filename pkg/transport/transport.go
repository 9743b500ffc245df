// Package transport is the UDP gossip socket: a single *net.UDPConn plus
// the JSON envelope that carries one replica's CRDT state to a peer.
package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/crdtsync/pkg/config"
)

// maxDatagram is the practical ceiling for a single UDP payload (spec
// calls for an unframed, single-datagram envelope).
const maxDatagram = 65507

// Envelope.Type values, matching the original base_crdt.py message
// protocol: a gossip round sends StateSync carrying one replica's full
// encoded CRDT value; the receiver replies with Ack. Anything else is
// unrecognized and dropped.
const (
	MsgStateSync = "state_sync"
	MsgAck       = "ack"
)

// State carries the CRDT kind discriminator alongside the variant's own
// encoded bytes, so a listener can pick a decoder before fully parsing.
type State struct {
	Kind config.Kind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Envelope is the wire format gossiped between replicas.
type Envelope struct {
	Type      string `json:"type"`
	NodeID    string `json:"node_id"`
	State     State  `json:"state"`
	Timestamp string `json:"timestamp"`
}

// Socket wraps a bound UDP connection for sending and receiving envelopes.
type Socket struct {
	conn *net.UDPConn
}

// Bind opens a UDP socket on host:port. Pass port 0 to let the OS choose
// an ephemeral port (used by tests).
func Bind(host string, port int) (*Socket, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp %s:%d: %w", host, port, err)
	}
	return &Socket{conn: conn}, nil
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo encodes env and writes it to peer in a single datagram.
func (s *Socket) SendTo(peer config.PeerAddr, env Envelope) (int, error) {
	addr, err := net.ResolveUDPAddr("udp", peer.String())
	if err != nil {
		return 0, fmt.Errorf("resolve peer %s: %w", peer.String(), err)
	}
	return s.SendToAddr(addr, env)
}

// SendToAddr encodes env and writes it to an already-resolved address, for
// replying to the sender of a received datagram rather than a configured
// peer.
func (s *Socket) SendToAddr(addr *net.UDPAddr, env Envelope) (int, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("marshal envelope: %w", err)
	}
	if len(data) > maxDatagram {
		return 0, fmt.Errorf("envelope too large for one datagram: %d bytes", len(data))
	}
	n, err := s.conn.WriteToUDP(data, addr)
	if err != nil {
		return n, fmt.Errorf("send to %s: %w", addr, err)
	}
	return n, nil
}

// Recv blocks until a datagram arrives or deadline elapses, returning the
// decoded envelope and the sender's address.
func (s *Socket) Recv(deadline time.Duration) (Envelope, *net.UDPAddr, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return Envelope{}, nil, fmt.Errorf("set read deadline: %w", err)
	}
	buf := make([]byte, maxDatagram)
	n, from, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return Envelope{}, from, err
	}
	var env Envelope
	if err := json.Unmarshal(buf[:n], &env); err != nil {
		return Envelope{}, from, fmt.Errorf("decode envelope from %s: %w", from, err)
	}
	return env, from, nil
}

// Close releases the underlying socket, unblocking any in-flight Recv.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// IsTimeout reports whether err is a Recv deadline expiry, the normal
// "nothing arrived this tick" outcome rather than a failure.
func IsTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
