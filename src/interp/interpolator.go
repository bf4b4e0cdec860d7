// Package interp smooths the sparse pose updates received from remote peers
// into continuous motion.
//
// Each remote entity gets its own Interpolator. Inbound poses land in a small
// fixed-size ring buffer with their local arrival time; Sample reconstructs
// the pose at "render time" (now minus a fixed delay) by interpolating
// between the two buffered snapshots that bracket it. When no bracket exists
// the last known pose is projected forward along its velocity, and when real
// data comes back a short blend hides the correction.
package interp

import (
	"time"

	"github.com/driftnetworks/drift/src/protocol"
)

const (
	// SnapshotBufferSize is the ring buffer capacity. Three slots are
	// enough to bracket the render time at typical update rates without
	// buffering stale motion.
	SnapshotBufferSize = 3

	// RenderDelay is how far behind wall-clock time Sample reconstructs
	// the pose. The delay makes it likely that two bracketing snapshots
	// exist.
	RenderDelay = 100 * time.Millisecond

	// RecoveryBlendDuration is the length of the transition from an
	// extrapolated pose back to freshly interpolated data.
	RecoveryBlendDuration = 500 * time.Millisecond

	// extrapolationThreshold is how stale the newest snapshot may be
	// before Sample starts projecting it forward along its velocity.
	extrapolationThreshold = 100 * time.Millisecond
)

type snapshot struct {
	pose      protocol.Pose
	timestamp time.Time
	valid     bool
}

// Interpolator reconstructs smooth motion for a single remote entity. It is
// not safe for concurrent use; callers serialize access per entity.
type Interpolator struct {
	snapshots  [SnapshotBufferSize]snapshot
	writeIndex int
	count      int

	inExtrapolation bool
	blendActive     bool
	blendStart      time.Time
	blendFrom       protocol.Pose
	anchor          protocol.Pose
	hasAnchor       bool
}

// NewInterpolator returns an empty Interpolator.
func NewInterpolator() *Interpolator {
	return &Interpolator{}
}

// AddSnapshot records a pose with its arrival time, overwriting the oldest
// slot when the buffer is full. Slots are filled in arrival order; Sample
// orders them by timestamp, so late delivery is tolerated up to the buffer
// capacity.
func (i *Interpolator) AddSnapshot(pose protocol.Pose, now time.Time) {
	i.snapshots[i.writeIndex] = snapshot{
		pose:      pose,
		timestamp: now,
		valid:     true,
	}

	i.writeIndex = (i.writeIndex + 1) % SnapshotBufferSize

	if i.count < SnapshotBufferSize {
		i.count++
	}
}

// Sample returns the pose at render time (now - RenderDelay). The second
// return value is false only when no snapshot has ever been recorded; every
// other edge case degrades to extrapolation from the newest snapshot.
func (i *Interpolator) Sample(now time.Time) (protocol.Pose, bool) {
	if i.count < 2 {
		return i.extrapolate(now)
	}

	renderTime := now.Add(-RenderDelay)

	// Find the bracketing pair: the latest snapshot at or before render
	// time, and the earliest one after it.
	var older, newer *snapshot
	for idx := range i.snapshots {
		snap := &i.snapshots[idx]
		if !snap.valid {
			continue
		}

		if !snap.timestamp.After(renderTime) {
			if older == nil || snap.timestamp.After(older.timestamp) {
				older = snap
			}
		} else {
			if newer == nil || snap.timestamp.Before(newer.timestamp) {
				newer = snap
			}
		}
	}

	if older == nil || newer == nil {
		return i.extrapolate(now)
	}

	timeDiff := newer.timestamp.Sub(older.timestamp)
	if timeDiff == 0 {
		return older.pose, true
	}

	elapsed := renderTime.Sub(older.timestamp)
	t := clamp01(float64(elapsed) / float64(timeDiff))

	interpolated := lerpPose(older.pose, newer.pose, t)
	interpolated.MoveType = older.pose.MoveType

	return i.applyBlendIfNeeded(interpolated, now), true
}

// Reset invalidates all buffered snapshots and clears extrapolation and
// blend state. Used on entity disconnect or teleport.
func (i *Interpolator) Reset() {
	for idx := range i.snapshots {
		i.snapshots[idx].valid = false
	}
	i.writeIndex = 0
	i.count = 0
	i.inExtrapolation = false
	i.blendActive = false
	i.hasAnchor = false
}

// Count returns the number of valid buffered snapshots. It saturates at
// SnapshotBufferSize and only decreases on Reset.
func (i *Interpolator) Count() int {
	return i.count
}

// Extrapolating reports whether the last Sample had to project forward past
// the newest snapshot.
func (i *Interpolator) Extrapolating() bool {
	return i.inExtrapolation
}

// Blending reports whether a recovery blend is currently active.
func (i *Interpolator) Blending() bool {
	return i.blendActive
}

// extrapolate returns the newest snapshot's pose, projected forward along
// its velocity once it is older than the staleness threshold. It records the
// result as the anchor a future recovery blend will start from.
func (i *Interpolator) extrapolate(now time.Time) (protocol.Pose, bool) {
	latest := i.latestSnapshot()
	if latest == nil {
		return protocol.Pose{}, false
	}

	result := latest.pose

	age := now.Sub(latest.timestamp)
	if age > extrapolationThreshold {
		dt := (age - RenderDelay).Seconds()
		result.Position.X += result.Velocity.X * dt
		result.Position.Y += result.Velocity.Y * dt
		result.Position.Z += result.Velocity.Z * dt
	}

	i.inExtrapolation = true
	i.blendActive = false
	i.anchor = result
	i.hasAnchor = true

	return result, true
}

func (i *Interpolator) latestSnapshot() *snapshot {
	var latest *snapshot
	for idx := range i.snapshots {
		snap := &i.snapshots[idx]
		if !snap.valid {
			continue
		}
		if latest == nil || snap.timestamp.After(latest.timestamp) {
			latest = snap
		}
	}
	return latest
}

// applyBlendIfNeeded starts a recovery blend the first time interpolation
// resumes after extrapolation, and folds the target pose through the active
// blend until the blend duration elapses.
func (i *Interpolator) applyBlendIfNeeded(target protocol.Pose, now time.Time) protocol.Pose {
	if i.inExtrapolation && i.hasAnchor {
		i.blendActive = true
		i.blendStart = now
		i.blendFrom = i.anchor
		i.inExtrapolation = false
	}

	if !i.blendActive {
		return target
	}

	elapsed := now.Sub(i.blendStart)
	t := clamp01(float64(elapsed) / float64(RecoveryBlendDuration))

	blended := lerpPose(i.blendFrom, target, t)
	blended.MoveType = target.MoveType

	if elapsed >= RecoveryBlendDuration {
		i.blendActive = false
		i.hasAnchor = false
	}

	return blended
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpAngle interpolates degrees along the shortest arc, so 170 to -170
// passes through 180 rather than sweeping back through 0.
func lerpAngle(a, b, t float64) float64 {
	diff := b - a
	for diff > 180 {
		diff -= 360
	}
	for diff < -180 {
		diff += 360
	}
	return a + diff*t
}

func lerpPose(from, to protocol.Pose, t float64) protocol.Pose {
	var p protocol.Pose

	p.Position.X = lerp(from.Position.X, to.Position.X, t)
	p.Position.Y = lerp(from.Position.Y, to.Position.Y, t)
	p.Position.Z = lerp(from.Position.Z, to.Position.Z, t)
	p.Position.W = lerp(from.Position.W, to.Position.W, t)

	p.Angles.X = lerpAngle(from.Angles.X, to.Angles.X, t)
	p.Angles.Y = lerpAngle(from.Angles.Y, to.Angles.Y, t)
	p.Angles.Z = lerpAngle(from.Angles.Z, to.Angles.Z, t)

	p.Velocity.X = lerp(from.Velocity.X, to.Velocity.X, t)
	p.Velocity.Y = lerp(from.Velocity.Y, to.Velocity.Y, t)
	p.Velocity.Z = lerp(from.Velocity.Z, to.Velocity.Z, t)
	p.Velocity.W = lerp(from.Velocity.W, to.Velocity.W, t)

	p.Speed = lerp(from.Speed, to.Speed, t)

	return p
}
