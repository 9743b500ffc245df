// Package replica is the node shell: a listener goroutine plus three
// timers (gossip, scan, save) sharing one CRDT value under a mutex, with
// the created->running->stopping->stopped lifecycle spec.md describes.
package replica

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cuemby/crdtsync/pkg/clock"
	"github.com/cuemby/crdtsync/pkg/config"
	"github.com/cuemby/crdtsync/pkg/crdt"
	"github.com/cuemby/crdtsync/pkg/log"
	"github.com/cuemby/crdtsync/pkg/lwwsync"
	"github.com/cuemby/crdtsync/pkg/metrics"
	"github.com/cuemby/crdtsync/pkg/snapshot"
	"github.com/cuemby/crdtsync/pkg/transport"
	"github.com/rs/zerolog"
)

// State is the node's one-way lifecycle.
type State string

const (
	StateCreated  State = "created"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

const listenerDeadline = time.Second
const shutdownTimeout = 5 * time.Second

// Node runs one CRDT replica: a UDP listener and three timers gossiping,
// scanning and persisting a single crdt.Value.
type Node struct {
	cfg    *config.NodeConfig
	logger zerolog.Logger

	mu    sync.Mutex
	value crdt.Value

	stateMu sync.RWMutex
	state   State

	socket *transport.Socket
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Node around value, which must already match cfg.CRDTType
// (the caller constructs it via crdt.New/Decode or lwwsync.NewEngine).
func New(cfg *config.NodeConfig, value crdt.Value) *Node {
	return &Node{
		cfg:    cfg,
		value:  value,
		logger: log.WithNodeID(cfg.NodeID),
		state:  StateCreated,
	}
}

// State reports the node's current lifecycle state.
func (n *Node) State() State {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.state
}

func (n *Node) setState(s State) {
	n.stateMu.Lock()
	n.state = s
	n.stateMu.Unlock()
}

// Start binds the socket, restores persisted state, and launches the
// listener and timer goroutines.
func (n *Node) Start(ctx context.Context) error {
	if n.State() != StateCreated {
		return fmt.Errorf("replica: Start called in state %s", n.State())
	}

	n.restore()

	sock, err := transport.Bind(n.cfg.Host, n.cfg.Port)
	if err != nil {
		return fmt.Errorf("start node %s: %w", n.cfg.NodeID, err)
	}
	n.socket = sock
	n.stopCh = make(chan struct{})

	n.setState(StateRunning)
	metrics.ReplicaUp.Set(1)
	metrics.RegisterComponent("listener", true, "")
	metrics.RegisterComponent("persistence", true, "")

	if n.cfg.CRDTType == config.KindLWW {
		n.scan()
	}

	n.wg.Add(4)
	go n.listenLoop()
	go n.gossipLoop()
	go n.scanLoop()
	go n.saveLoop()

	n.logger.Info().Str("addr", n.socket.LocalAddr().String()).Msg("replica started")
	return nil
}

// restore loads a persisted snapshot into value, if any. lww kinds manage
// their own persistence inside lwwsync.Engine's first scan, so this is a
// no-op for those.
func (n *Node) restore() {
	if n.cfg.CRDTType == config.KindLWW {
		return
	}
	data, err := snapshot.Read(n.cfg.StateFile)
	if err != nil {
		if !os.IsNotExist(err) {
			n.logger.Error().Err(err).Msg("discarding unreadable snapshot")
		}
		return
	}
	restored, err := crdt.Decode(n.cfg.CRDTType, data)
	if err != nil {
		n.logger.Error().Err(err).Msg("discarding unreadable snapshot")
		return
	}
	n.mu.Lock()
	_, _ = n.value.Merge(restored)
	n.mu.Unlock()
}

// Stop signals all goroutines to exit, waits up to shutdownTimeout, and
// performs one final synchronous snapshot flush.
func (n *Node) Stop(ctx context.Context) error {
	if n.State() != StateRunning {
		return nil
	}
	n.setState(StateStopping)
	close(n.stopCh)
	_ = n.socket.Close()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		n.logger.Warn().Msg("timed out waiting for goroutines to stop")
	case <-ctx.Done():
	}

	n.persist()
	metrics.ReplicaUp.Set(0)
	metrics.UpdateComponent("listener", false, "replica stopped")
	n.setState(StateStopped)
	n.logger.Info().Msg("replica stopped")
	return nil
}

func (n *Node) listenLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stopCh:
			return
		default:
		}

		env, from, err := n.socket.Recv(listenerDeadline)
		if err != nil {
			if transport.IsTimeout(err) {
				continue
			}
			select {
			case <-n.stopCh:
				return
			default:
				n.logger.Error().Err(err).Msg("listener recv failed")
				continue
			}
		}

		n.handleEnvelope(env, from)
	}
}

func (n *Node) handleEnvelope(env transport.Envelope, from *net.UDPAddr) {
	switch env.Type {
	case transport.MsgStateSync:
		n.handleStateSync(env, from)
	case transport.MsgAck:
		n.logger.Debug().Str("peer", env.NodeID).Str("from", from.String()).Msg("received ack")
	default:
		n.logger.Warn().Str("peer", env.NodeID).Str("from", from.String()).Str("type", env.Type).Msg("unknown message type")
	}
}

func (n *Node) handleStateSync(env transport.Envelope, from *net.UDPAddr) {
	timer := metrics.NewTimer()

	remote, err := crdt.Decode(env.State.Kind, env.State.Data)
	if err != nil {
		metrics.MergeRejectionsTotal.Inc()
		n.logger.Error().Err(err).Str("peer", env.NodeID).Str("from", from.String()).Msg("failed to decode remote state")
		return
	}

	n.mu.Lock()
	changed, err := n.value.Merge(remote)
	n.mu.Unlock()

	if err != nil {
		metrics.MergeRejectionsTotal.Inc()
		n.logger.Error().Err(err).Str("peer", env.NodeID).Str("from", from.String()).Msg("merge rejected")
		return
	}
	metrics.MergesTotal.WithLabelValues(boolLabel(changed)).Inc()
	timer.ObserveDurationVec(metrics.MergeSeconds, boolLabel(changed))

	ack := transport.Envelope{
		Type:      transport.MsgAck,
		NodeID:    n.cfg.NodeID,
		Timestamp: clock.Now(),
	}
	if _, err := n.socket.SendToAddr(from, ack); err != nil {
		n.logger.Error().Err(err).Str("from", from.String()).Msg("ack send failed")
	}
}

func (n *Node) gossipLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Duration(n.cfg.SyncIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.gossipRound()
		case <-n.stopCh:
			return
		}
	}
}

// SyncNow performs one gossip round synchronously, for tests and manual
// triggering.
func (n *Node) SyncNow(ctx context.Context) {
	n.gossipRound()
}

func (n *Node) gossipRound() {
	metrics.GossipRoundsTotal.Inc()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.GossipRoundSeconds)

	n.mu.Lock()
	data, err := n.value.Encode()
	n.mu.Unlock()
	if err != nil {
		n.logger.Error().Err(err).Msg("encode for gossip failed")
		return
	}
	metrics.EnvelopeBytes.Observe(float64(len(data)))

	env := transport.Envelope{
		Type:      transport.MsgStateSync,
		NodeID:    n.cfg.NodeID,
		State:     transport.State{Kind: n.cfg.CRDTType, Data: json.RawMessage(data)},
		Timestamp: clock.Now(),
	}

	for _, peer := range n.cfg.Peers {
		if _, err := n.socket.SendTo(peer, env); err != nil {
			metrics.GossipSendsTotal.WithLabelValues(peer.String(), "error").Inc()
			n.logger.Error().Err(err).Str("peer", peer.String()).Msg("gossip send failed")
			continue
		}
		metrics.GossipSendsTotal.WithLabelValues(peer.String(), "ok").Inc()
	}
}

func (n *Node) scanLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Duration(n.cfg.ScanIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.scan()
		case <-n.stopCh:
			return
		}
	}
}

func (n *Node) scan() {
	engine, ok := n.value.(*lwwsync.Engine)
	if !ok {
		return
	}
	n.mu.Lock()
	changed, err := engine.LocalUpdate(lwwsync.ScanOp{})
	n.mu.Unlock()
	if err != nil {
		n.logger.Error().Err(err).Msg("directory scan failed")
		return
	}
	metrics.ScansTotal.WithLabelValues(boolLabel(changed)).Inc()
}

func (n *Node) saveLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Duration(n.cfg.SaveIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.persist()
		case <-n.stopCh:
			return
		}
	}
}

// persist is a no-op for lww: lwwsync.Engine persists its own
// .lww_state.json on every mutating operation.
func (n *Node) persist() {
	if n.cfg.CRDTType == config.KindLWW {
		return
	}
	timer := metrics.NewTimer()
	n.mu.Lock()
	data, err := n.value.Encode()
	n.mu.Unlock()
	if err != nil {
		metrics.SnapshotWritesTotal.WithLabelValues("error").Inc()
		metrics.UpdateComponent("persistence", false, err.Error())
		n.logger.Error().Err(err).Msg("encode for snapshot failed")
		return
	}
	if err := snapshot.Write(n.cfg.StateFile, data); err != nil {
		metrics.SnapshotWritesTotal.WithLabelValues("error").Inc()
		metrics.UpdateComponent("persistence", false, err.Error())
		n.logger.Error().Err(err).Msg("snapshot write failed")
		return
	}
	metrics.SnapshotWritesTotal.WithLabelValues("ok").Inc()
	metrics.UpdateComponent("persistence", true, "")
	n.logger.Debug().Dur("elapsed", timer.Duration()).Msg("snapshot written")
}

// Query returns the current value's query result under lock.
func (n *Node) Query() any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value.Query()
}

func boolLabel(b bool) string {
	if b {
		return "changed"
	}
	return "unchanged"
}
