// Package protocol defines the commands and payload structures exchanged
// between Drift peers. Payloads are encoded with a canonical JSON handle and
// carry a protocol version tag; anything that fails to decode is discarded at
// the dispatch boundary rather than propagated.
package protocol

// Version is the protocol version tag. Every payload starts with it; a
// mismatch causes a silent, logged discard.
const Version uint32 = 3

// Wire commands. Commands are dispatched by name; unknown commands are
// dropped.
const (
	CmdState        = "state"
	CmdStates       = "states"
	CmdAuthRequest  = "authRequest"
	CmdAuthResponse = "authResponse"
	CmdKill         = "kill"
	CmdKilled       = "killed"
	CmdFact         = "fact"
	CmdAttack       = "attack"
	CmdCutscene     = "cutscene"
	CmdQuestLock    = "quest_lock"
	CmdLoot         = "loot"
	CmdAchievement  = "achievement"
	CmdHandshake    = "handshake"
	CmdHandshakeAck = "handshakeAck"
	CmdHeartbeat    = "heartbeat"
	CmdHeartbeatAck = "heartbeatAck"
)

// Bounds for variable-length fields. Senders are expected to respect them;
// receivers truncate rather than reject.
const (
	MaxFactNameLength   = 128
	MaxTagLength        = 64
	MaxScenePathLength  = 256
	MaxItemNameLength   = 64
	MaxPlayerNameLength = 32
)

// Vec3 is a 3-component vector. Orientations are expressed as Euler angles in
// degrees.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Vec4 is a 4-component vector, matching the engine's native position and
// velocity representation.
type Vec4 struct {
	X float64
	Y float64
	Z float64
	W float64
}

// Pose is the replicated movement state of one player entity.
type Pose struct {
	Position Vec4
	Angles   Vec3
	Velocity Vec4
	Speed    float64
	MoveType int32
}

// StatePacket is a pose update from one peer. It is also the packet that
// bootstraps a session: the first state packet from an unknown address
// creates the session and triggers the authentication challenge.
type StatePacket struct {
	GUID uint64
	Name string
	Pose Pose
}

// PlayerState is one entry of the authoritative state broadcast.
type PlayerState struct {
	GUID    uint64
	Name    string
	StateID uint64
	Pose    Pose
}

// StatesPacket is the authoritative state broadcast sent to all
// authenticated peers on every driver tick.
type StatesPacket struct {
	States []PlayerState
}

// AuthRequest carries the random challenge a peer must sign to prove
// ownership of the key its GUID is derived from.
type AuthRequest struct {
	Nonce string
}

// AuthResponse carries the uncompressed public key and the signature over
// the challenge previously issued to the sender.
type AuthResponse struct {
	PublicKey []byte
	Signature string
}

// KillPacket asks the relay to notify the victim that it was killed.
type KillPacket struct {
	VictimGUID uint64
}

// KilledPacket notifies a peer that it was killed, and by whom.
type KilledPacket struct {
	KillerGUID uint64
}

// FactPacket synchronizes one named world fact, e.g. quest objectives,
// tutorial flags, kill counts.
type FactPacket struct {
	Name      string
	Value     int32
	OwnerGUID uint64
	Timestamp int64
}

// AttackType discriminates replicated attacks.
type AttackType uint8

const (
	AttackLight AttackType = iota
	AttackHeavy
	AttackSpecial
)

// AttackPacket replicates a player attack against a world entity.
type AttackPacket struct {
	AttackerGUID uint64
	TargetTag    string
	Damage       float64
	Type         AttackType
	ForceKill    bool
	Timestamp    int64
}

// CutscenePacket synchronizes cutscene playback across peers.
type CutscenePacket struct {
	ScenePath string
	Position  Vec4
	Rotation  Vec3
	Timestamp int64
}

// QuestLockPacket acquires or releases the global story lock. Forced marks a
// fail-safe release triggered by the lock timeout.
type QuestLockPacket struct {
	Locked     bool
	SceneID    uint32
	PlayerGUID uint64
	Forced     bool
	Timestamp  int64
}

// LootPacket replicates shared loot and currency pickups.
type LootPacket struct {
	ItemName   string
	Quantity   uint32
	PlayerGUID uint64
	Timestamp  int64
}

// AchievementPacket replicates achievement unlocks to party members.
type AchievementPacket struct {
	AchievementID string
	PlayerGUID    uint64
	Timestamp     int64
}

// HandshakePacket establishes a session before gameplay packets.
type HandshakePacket struct {
	SessionID       uint64
	GUID            uint64
	Name            string
	ProtocolVersion uint32
	Timestamp       int64
}

// HandshakeAck acknowledges a handshake.
type HandshakeAck struct {
	SessionID uint64
	Accepted  bool
}

// HeartbeatPacket is the periodic reconciliation heartbeat. It carries the
// sender's world-state digest so peers can detect divergence without
// exchanging the full fact set.
type HeartbeatPacket struct {
	GUID           uint64
	FactCount      int32
	WorldStateHash uint32
	SentAt         int64
}

// HeartbeatAck echoes a heartbeat's send timestamp so the original sender can
// derive a round-trip estimate.
type HeartbeatAck struct {
	GUID   uint64
	SentAt int64
}

// Truncate bounds a string field to max bytes.
func Truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
