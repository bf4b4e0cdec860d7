// Package node ties the Drift components together: it dispatches inbound
// packets to the session registry, the narrative manager and the per-peer
// interpolators, and runs the periodic driver tick that sweeps timeouts,
// broadcasts authoritative state, arms the story lock fail-safe and emits
// heartbeats.
package node

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftnetworks/drift/src/interp"
	"github.com/driftnetworks/drift/src/narrative"
	"github.com/driftnetworks/drift/src/net"
	"github.com/driftnetworks/drift/src/protocol"
	"github.com/driftnetworks/drift/src/session"
)

// Node is a symmetric Drift relay. Every participant runs one; packets are
// relayed between authenticated peers and the narrative state is reconciled
// through heartbeats.
type Node struct {
	// The node runs the state machine defined in state.go.
	state

	conf *Config

	logger *logrus.Entry

	validator *Validator

	trans net.Transport
	netCh <-chan net.Packet

	sessions *session.Registry

	narrative *narrative.Manager

	telemetry *Telemetry

	handlers map[string]func(from string, payload []byte)

	// One interpolator per remote entity, keyed by GUID, fed by inbound
	// state packets.
	interpLock    sync.Mutex
	interpolators map[uint64]*interp.Interpolator

	poseLock sync.Mutex
	pose     protocol.Pose

	// selfStateID sequences our own entries in the states broadcast.
	selfStateID uint64

	lastHeartbeat time.Time

	shutdownCh chan struct{}
}

// NewNode instantiates a node from its dependencies. Call Init before Run.
func NewNode(conf *Config,
	validator *Validator,
	trans net.Transport,
	nrt *narrative.Manager,
) *Node {

	logger := conf.Logger.WithField("guid", validator.GUID())

	node := &Node{
		conf:          conf,
		logger:        logger,
		validator:     validator,
		trans:         trans,
		netCh:         trans.Consumer(),
		sessions:      session.NewRegistry(conf.SessionTimeout, logger),
		narrative:     nrt,
		telemetry:     NewTelemetry(),
		interpolators: make(map[uint64]*interp.Interpolator),
		shutdownCh:    make(chan struct{}),
	}

	node.handlers = map[string]func(from string, payload []byte){
		protocol.CmdState:        node.handleState,
		protocol.CmdStates:       node.handleStates,
		protocol.CmdAuthRequest:  node.handleAuthRequest,
		protocol.CmdAuthResponse: node.handleAuthResponse,
		protocol.CmdKill:         node.handleKill,
		protocol.CmdKilled:       node.handleKilled,
		protocol.CmdFact:         node.handleFact,
		protocol.CmdAttack:       node.handleAttack,
		protocol.CmdCutscene:     node.handleCutscene,
		protocol.CmdQuestLock:    node.handleQuestLock,
		protocol.CmdLoot:         node.handleLoot,
		protocol.CmdAchievement:  node.handleAchievement,
		protocol.CmdHandshake:    node.handleHandshake,
		protocol.CmdHandshakeAck: node.handleHandshakeAck,
		protocol.CmdHeartbeat:    node.handleHeartbeat,
		protocol.CmdHeartbeatAck: node.handleHeartbeatAck,
	}

	return node
}

// Init starts the transport listening and moves the node to Connected.
func (n *Node) Init() error {
	n.logger.WithField("addr", n.trans.AdvertiseAddr()).Debug("Init")
	n.trans.Listen()
	n.setState(Connected)
	return nil
}

// Run starts the packet dispatch goroutine and runs the driver tick loop in
// the calling goroutine until Shutdown.
func (n *Node) Run() {
	n.goFunc(n.doBackgroundWork)
	n.tickLoop()
}

// RunAsync runs the node in the background.
func (n *Node) RunAsync() {
	n.goFunc(n.Run)
}

// Shutdown stops the node and its transport and waits for the background
// routines to drain.
func (n *Node) Shutdown() {
	if n.getState() == Shutdown {
		return
	}

	n.logger.Debug("Shutdown")
	n.setState(Shutdown)
	close(n.shutdownCh)
	n.trans.Close()
	n.waitRoutines()
}

// GetState returns the node's lifecycle state.
func (n *Node) GetState() State {
	return n.getState()
}

// Sessions exposes the peer registry for the stats service.
func (n *Node) Sessions() *session.Registry {
	return n.sessions
}

// Narrative exposes the narrative manager for the stats service.
func (n *Node) Narrative() *narrative.Manager {
	return n.narrative
}

// AdvertiseAddr returns the address peers should use to reach this node.
func (n *Node) AdvertiseAddr() string {
	return n.trans.AdvertiseAddr()
}

// GUID returns the local identity.
func (n *Node) GUID() uint64 {
	return n.validator.GUID()
}

// SetPose updates the local pose announced by SendState.
func (n *Node) SetPose(pose protocol.Pose) {
	n.poseLock.Lock()
	defer n.poseLock.Unlock()
	n.pose = pose
}

func (n *Node) localPose() protocol.Pose {
	n.poseLock.Lock()
	defer n.poseLock.Unlock()
	return n.pose
}

// Handshake announces this node to a peer. The peer creates a session for us
// and replies with an acknowledgement.
func (n *Node) Handshake(target string) {
	n.send(target, protocol.CmdHandshake, &protocol.HandshakePacket{
		SessionID:       n.validator.GUID(),
		GUID:            n.validator.GUID(),
		Name:            n.validator.Moniker,
		ProtocolVersion: protocol.Version,
		Timestamp:       time.Now().UnixNano(),
	})
}

// SendState announces the local pose to a peer. On the receiving side this
// creates or refreshes our session and, while we are unauthenticated, makes
// the peer issue its challenge.
func (n *Node) SendState(target string) {
	n.send(target, protocol.CmdState, &protocol.StatePacket{
		GUID: n.validator.GUID(),
		Name: n.validator.Moniker,
		Pose: n.localPose(),
	})
}

// RegisterFact records a world fact on behalf of the local player and
// broadcasts it to all authenticated peers.
func (n *Node) RegisterFact(name string, value int32) {
	now := time.Now()

	n.narrative.RegisterFact(name, value, n.validator.GUID(), now)

	n.broadcast(protocol.CmdFact, &protocol.FactPacket{
		Name:      name,
		Value:     value,
		OwnerGUID: n.validator.GUID(),
		Timestamp: now.UnixNano(),
	})
}

// AcquireStoryLock takes the global story lock for the local player and
// announces it. Returns false when the lock is already held.
func (n *Node) AcquireStoryLock(sceneID uint32) bool {
	now := time.Now()

	if !n.narrative.Acquire(n.validator.GUID(), sceneID, now) {
		return false
	}

	n.broadcast(protocol.CmdQuestLock, &protocol.QuestLockPacket{
		Locked:     true,
		SceneID:    sceneID,
		PlayerGUID: n.validator.GUID(),
		Timestamp:  now.UnixNano(),
	})
	return true
}

// ReleaseStoryLock releases the global story lock and announces the unlock.
// A no-op when the lock is not held.
func (n *Node) ReleaseStoryLock() bool {
	now := time.Now()

	notice, ok := n.narrative.Release(false, now)
	if !ok {
		return false
	}

	n.broadcastRelease(notice, now)
	return true
}

// SendKill asks a relay to notify the victim that the local player killed
// it.
func (n *Node) SendKill(target string, victimGUID uint64) {
	n.send(target, protocol.CmdKill, &protocol.KillPacket{
		VictimGUID: victimGUID,
	})
}

// SamplePose returns the interpolated pose of a tracked remote entity.
func (n *Node) SamplePose(guid uint64, now time.Time) (protocol.Pose, bool) {
	n.interpLock.Lock()
	defer n.interpLock.Unlock()

	itp, ok := n.interpolators[guid]
	if !ok {
		return protocol.Pose{}, false
	}
	return itp.Sample(now)
}

// Telemetry returns a snapshot of the node's counters.
func (n *Node) Telemetry() TelemetrySnapshot {
	return n.telemetry.Snapshot()
}

// Stats returns the node's observable state as a string map.
func (n *Node) Stats() map[string]string {
	tel := n.telemetry.Snapshot()

	s := map[string]string{
		"state":              n.getState().String(),
		"moniker":            n.validator.Moniker,
		"guid":               strconv.FormatUint(n.validator.GUID(), 10),
		"addr":               n.trans.AdvertiseAddr(),
		"peers":              strconv.Itoa(n.sessions.Count()),
		"authenticated":      strconv.Itoa(n.sessions.AuthenticatedCount()),
		"facts":              strconv.Itoa(n.narrative.FactCount()),
		"world_state_hash":   strconv.FormatUint(uint64(n.narrative.WorldStateHash()), 10),
		"story_locked":       strconv.FormatBool(n.narrative.IsLocked()),
		"packets_sent":       strconv.FormatUint(tel.Sent, 10),
		"packets_received":   strconv.FormatUint(tel.Received, 10),
		"pps":                strconv.Itoa(tel.PPS),
		"rtt":                tel.RTT.String(),
		"handshake_complete": strconv.FormatBool(tel.HandshakeComplete),
	}
	return s
}

/*******************************************************************************
Packet dispatch
*******************************************************************************/

func (n *Node) doBackgroundWork() {
	for {
		select {
		case pkt := <-n.netCh:
			n.dispatch(pkt)
		case <-n.shutdownCh:
			return
		}
	}
}

// dispatch routes one inbound packet. Unknown commands and undecodable
// payloads are dropped with a log line; a misbehaving peer must never be
// able to take the dispatch loop down.
func (n *Node) dispatch(pkt net.Packet) {
	n.telemetry.IncrementReceived(time.Now())

	handler, ok := n.handlers[pkt.Command]
	if !ok {
		n.logger.WithFields(logrus.Fields{
			"from":    pkt.From,
			"command": pkt.Command,
		}).Debug("Unknown command")
		return
	}

	handler(pkt.From, pkt.Payload)
}

// decode unwraps a version-tagged payload, logging and discarding on
// failure.
func (n *Node) decode(from string, payload []byte, out interface{}) bool {
	if err := protocol.Unmarshal(payload, out); err != nil {
		n.logger.WithField("from", from).WithError(err).Debug("Discarding malformed packet")
		return false
	}
	return true
}

func (n *Node) handleState(from string, payload []byte) {
	var pkt protocol.StatePacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	now := time.Now()

	challenge := n.sessions.HandleState(from, &pkt, now)

	n.addSnapshot(pkt.GUID, pkt.Pose, now)

	if challenge != nil {
		n.send(from, protocol.CmdAuthRequest, challenge)
	}
}

// handleStates consumes the authoritative state broadcast, feeding every
// remote entity's interpolator. The local entity is skipped; our own pose is
// not replicated back onto us.
func (n *Node) handleStates(from string, payload []byte) {
	var pkt protocol.StatesPacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	now := time.Now()
	n.sessions.Touch(from, now)

	for _, st := range pkt.States {
		if st.GUID == n.validator.GUID() {
			continue
		}
		n.addSnapshot(st.GUID, st.Pose, now)
	}
}

func (n *Node) handleAuthRequest(from string, payload []byte) {
	var pkt protocol.AuthRequest
	if !n.decode(from, payload, &pkt) {
		return
	}

	sig, err := n.validator.SignChallenge(pkt.Nonce)
	if err != nil {
		n.logger.WithError(err).Error("Signing challenge")
		return
	}

	n.send(from, protocol.CmdAuthResponse, &protocol.AuthResponse{
		PublicKey: n.validator.PublicKeyBytes(),
		Signature: sig,
	})
}

func (n *Node) handleAuthResponse(from string, payload []byte) {
	var pkt protocol.AuthResponse
	if !n.decode(from, payload, &pkt) {
		return
	}

	n.sessions.HandleAuthResponse(from, &pkt, time.Now())
}

func (n *Node) handleKill(from string, payload []byte) {
	var pkt protocol.KillPacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	killer, ok := n.sessions.Get(from)
	if !ok || !killer.Authenticated() {
		return
	}

	victimAddr, ok := n.sessions.AddrByGUID(pkt.VictimGUID)
	if !ok {
		return
	}

	n.send(victimAddr, protocol.CmdKilled, &protocol.KilledPacket{
		KillerGUID: killer.GUID,
	})
}

func (n *Node) handleKilled(from string, payload []byte) {
	var pkt protocol.KilledPacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	n.logger.WithField("killer", pkt.KillerGUID).Info("Killed by peer")
}

func (n *Node) handleFact(from string, payload []byte) {
	var pkt protocol.FactPacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	if !n.sessions.IsAuthenticated(from) {
		return
	}

	n.narrative.RegisterFact(pkt.Name, pkt.Value, pkt.OwnerGUID, time.Now())

	n.relay(from, protocol.CmdFact, payload, false)
}

func (n *Node) handleAttack(from string, payload []byte) {
	var pkt protocol.AttackPacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	if !n.sessions.IsAuthenticated(from) {
		return
	}

	n.relay(from, protocol.CmdAttack, payload, false)
}

// handleCutscene relays to every authenticated peer including the sender:
// cutscene playback must start everywhere at once, and the echo doubles as
// the sender's confirmation.
func (n *Node) handleCutscene(from string, payload []byte) {
	var pkt protocol.CutscenePacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	if !n.sessions.IsAuthenticated(from) {
		return
	}

	n.relay(from, protocol.CmdCutscene, payload, true)
}

func (n *Node) handleQuestLock(from string, payload []byte) {
	var pkt protocol.QuestLockPacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	if !n.sessions.IsAuthenticated(from) {
		return
	}

	now := time.Now()

	if pkt.Locked {
		if n.narrative.Acquire(pkt.PlayerGUID, pkt.SceneID, now) {
			n.relay(from, protocol.CmdQuestLock, payload, false)
		}
		return
	}

	if _, ok := n.narrative.Release(pkt.Forced, now); ok {
		n.relay(from, protocol.CmdQuestLock, payload, false)
	}
}

func (n *Node) handleLoot(from string, payload []byte) {
	var pkt protocol.LootPacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	if !n.sessions.IsAuthenticated(from) {
		return
	}

	n.relay(from, protocol.CmdLoot, payload, false)
}

func (n *Node) handleAchievement(from string, payload []byte) {
	var pkt protocol.AchievementPacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	if !n.sessions.IsAuthenticated(from) {
		return
	}

	n.relay(from, protocol.CmdAchievement, payload, false)
}

func (n *Node) handleHandshake(from string, payload []byte) {
	var pkt protocol.HandshakePacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	n.sessions.HandleHandshake(from, &pkt, time.Now())

	n.send(from, protocol.CmdHandshakeAck, &protocol.HandshakeAck{
		SessionID: pkt.SessionID,
		Accepted:  true,
	})
}

func (n *Node) handleHandshakeAck(from string, payload []byte) {
	var pkt protocol.HandshakeAck
	if !n.decode(from, payload, &pkt) {
		return
	}

	if pkt.Accepted {
		n.telemetry.SetHandshakeComplete()
	}
}

func (n *Node) handleHeartbeat(from string, payload []byte) {
	var pkt protocol.HeartbeatPacket
	if !n.decode(from, payload, &pkt) {
		return
	}

	now := time.Now()
	n.sessions.Touch(from, now)

	if local := n.narrative.WorldStateHash(); local != pkt.WorldStateHash {
		n.logger.WithFields(logrus.Fields{
			"peer":        pkt.GUID,
			"peer_hash":   pkt.WorldStateHash,
			"local_hash":  local,
			"peer_facts":  pkt.FactCount,
			"local_facts": n.narrative.FactCount(),
		}).Warn("World state divergence detected")
	}

	n.send(from, protocol.CmdHeartbeatAck, &protocol.HeartbeatAck{
		GUID:   n.validator.GUID(),
		SentAt: pkt.SentAt,
	})
}

func (n *Node) handleHeartbeatAck(from string, payload []byte) {
	var pkt protocol.HeartbeatAck
	if !n.decode(from, payload, &pkt) {
		return
	}

	n.telemetry.RecordRTT(time.Since(time.Unix(0, pkt.SentAt)))
}

/*******************************************************************************
Driver tick
*******************************************************************************/

func (n *Node) tickLoop() {
	ticker := time.NewTicker(n.conf.FramePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.tick(time.Now())
		case <-n.shutdownCh:
			return
		}
	}
}

// tick runs one driver frame. Order matters: the sweep runs before the state
// broadcast so a session being evicted this frame is not sent state, and the
// lock fail-safe runs unconditionally so it fires even with zero peers.
func (n *Node) tick(now time.Time) {
	for _, evicted := range n.sessions.SweepTimeouts(now) {
		n.dropInterpolator(evicted.GUID)
	}

	n.broadcastStates()

	if notice := n.narrative.CheckTimeout(now); notice != nil {
		n.broadcastRelease(notice, now)
	}

	if now.Sub(n.lastHeartbeat) >= n.conf.HeartbeatInterval {
		n.lastHeartbeat = now
		n.broadcastHeartbeat(now)
	}
}

// broadcastStates sends the authoritative state of every authenticated peer,
// plus the local entity, to every authenticated peer.
func (n *Node) broadcastStates() {
	auth := n.sessions.Authenticated()
	if len(auth) == 0 {
		return
	}

	states := make([]protocol.PlayerState, 0, len(auth)+1)
	states = append(states, protocol.PlayerState{
		GUID:    n.validator.GUID(),
		Name:    n.validator.Moniker,
		StateID: atomic.AddUint64(&n.selfStateID, 1),
		Pose:    n.localPose(),
	})
	for _, s := range auth {
		states = append(states, protocol.PlayerState{
			GUID:    s.GUID,
			Name:    s.Name,
			StateID: s.StateID,
			Pose:    s.Pose,
		})
	}

	pkt := &protocol.StatesPacket{States: states}
	for _, s := range auth {
		n.send(s.Addr, protocol.CmdStates, pkt)
	}
}

func (n *Node) broadcastRelease(notice *narrative.ReleaseNotice, now time.Time) {
	n.broadcast(protocol.CmdQuestLock, &protocol.QuestLockPacket{
		Locked:     false,
		SceneID:    notice.SceneID,
		PlayerGUID: notice.HolderGUID,
		Forced:     notice.Forced,
		Timestamp:  now.UnixNano(),
	})
}

func (n *Node) broadcastHeartbeat(now time.Time) {
	n.broadcast(protocol.CmdHeartbeat, &protocol.HeartbeatPacket{
		GUID:           n.validator.GUID(),
		FactCount:      int32(n.narrative.FactCount()),
		WorldStateHash: n.narrative.WorldStateHash(),
		SentAt:         now.UnixNano(),
	})
}

/*******************************************************************************
Outbound helpers
*******************************************************************************/

// send marshals and transmits one packet. Transport errors are logged and
// swallowed; datagram delivery is best-effort by contract.
func (n *Node) send(target string, command string, payload interface{}) {
	data, err := protocol.Marshal(payload)
	if err != nil {
		n.logger.WithField("command", command).WithError(err).Error("Marshalling packet")
		return
	}

	n.sendRaw(target, command, data)
}

func (n *Node) sendRaw(target string, command string, data []byte) {
	if err := n.trans.Send(target, command, data); err != nil {
		n.logger.WithFields(logrus.Fields{
			"target":  target,
			"command": command,
		}).WithError(err).Debug("Sending packet")
		return
	}

	n.telemetry.IncrementSent()
}

// broadcast sends a packet to every authenticated peer.
func (n *Node) broadcast(command string, payload interface{}) {
	data, err := protocol.Marshal(payload)
	if err != nil {
		n.logger.WithField("command", command).WithError(err).Error("Marshalling packet")
		return
	}

	for _, s := range n.sessions.Authenticated() {
		n.sendRaw(s.Addr, command, data)
	}
}

// relay forwards an already-encoded payload to the other authenticated
// peers, optionally echoing it back to the sender.
func (n *Node) relay(from string, command string, payload []byte, includeSender bool) {
	for _, s := range n.sessions.Authenticated() {
		if !includeSender && s.Addr == from {
			continue
		}
		n.sendRaw(s.Addr, command, payload)
	}
}

/*******************************************************************************
Interpolators
*******************************************************************************/

func (n *Node) addSnapshot(guid uint64, pose protocol.Pose, now time.Time) {
	n.interpLock.Lock()
	defer n.interpLock.Unlock()

	itp, ok := n.interpolators[guid]
	if !ok {
		itp = interp.NewInterpolator()
		n.interpolators[guid] = itp
	}
	itp.AddSnapshot(pose, now)
}

func (n *Node) dropInterpolator(guid uint64) {
	n.interpLock.Lock()
	defer n.interpLock.Unlock()

	if itp, ok := n.interpolators[guid]; ok {
		itp.Reset()
		delete(n.interpolators, guid)
	}
}
