package interp

import (
	"math"
	"testing"
	"time"

	"github.com/driftnetworks/drift/src/protocol"
)

func poseAtX(x float64) protocol.Pose {
	return protocol.Pose{Position: protocol.Vec4{X: x}}
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	i := NewInterpolator()
	base := time.Now()

	for n := 0; n < 5; n++ {
		i.AddSnapshot(poseAtX(float64(n)), base.Add(time.Duration(n)*50*time.Millisecond))
	}

	if i.Count() != SnapshotBufferSize {
		t.Fatalf("count should saturate at %d, got %d", SnapshotBufferSize, i.Count())
	}

	// Only the last three inserted poses should remain.
	want := map[float64]bool{2: false, 3: false, 4: false}
	for idx := range i.snapshots {
		snap := i.snapshots[idx]
		if !snap.valid {
			t.Fatalf("slot %d should be valid", idx)
		}
		seen, ok := want[snap.pose.Position.X]
		if !ok {
			t.Fatalf("unexpected retained pose x=%v", snap.pose.Position.X)
		}
		if seen {
			t.Fatalf("pose x=%v retained twice", snap.pose.Position.X)
		}
		want[snap.pose.Position.X] = true
	}
}

func TestSampleNoData(t *testing.T) {
	i := NewInterpolator()

	if _, ok := i.Sample(time.Now()); ok {
		t.Fatalf("empty interpolator should return no data")
	}
}

func TestSampleSingleSnapshot(t *testing.T) {
	i := NewInterpolator()
	base := time.Now()

	i.AddSnapshot(poseAtX(7), base)

	pose, ok := i.Sample(base.Add(10 * time.Millisecond))
	if !ok {
		t.Fatalf("single snapshot should still sample")
	}
	if pose.Position.X != 7 {
		t.Fatalf("expected last pose, got x=%v", pose.Position.X)
	}
	if !i.Extrapolating() {
		t.Fatalf("single snapshot sample should flag extrapolation")
	}
}

func TestSampleBracketedInterpolation(t *testing.T) {
	i := NewInterpolator()
	base := time.Now()

	i.AddSnapshot(poseAtX(0), base)
	i.AddSnapshot(poseAtX(10), base.Add(200*time.Millisecond))

	// render time = base + 150ms, which sits 3/4 of the way between the
	// snapshots.
	pose, ok := i.Sample(base.Add(250 * time.Millisecond))
	if !ok {
		t.Fatalf("bracketed sample should succeed")
	}
	if math.Abs(pose.Position.X-7.5) > 1e-9 {
		t.Fatalf("expected x=7.5, got %v", pose.Position.X)
	}
	if i.Blending() {
		t.Fatalf("no blend expected without prior extrapolation")
	}
}

func TestSampleRatioSaturatesAtNewest(t *testing.T) {
	i := NewInterpolator()
	base := time.Now()

	i.AddSnapshot(poseAtX(0), base)
	i.AddSnapshot(poseAtX(10), base.Add(200*time.Millisecond))

	// render time lands exactly on the newest snapshot, so its value is
	// returned unchanged.
	pose, ok := i.Sample(base.Add(300 * time.Millisecond))
	if !ok {
		t.Fatalf("sample should succeed")
	}
	if pose.Position.X != 10 {
		t.Fatalf("expected newest value 10, got %v", pose.Position.X)
	}
	if i.Blending() {
		t.Fatalf("no blend expected")
	}
}

func TestSampleIdenticalTimestamps(t *testing.T) {
	i := NewInterpolator()
	base := time.Now()

	i.AddSnapshot(poseAtX(1), base)
	i.AddSnapshot(poseAtX(2), base)

	pose, ok := i.Sample(base.Add(250 * time.Millisecond))
	if !ok {
		t.Fatalf("sample should succeed")
	}
	// Identical timestamps cannot be interpolated between; the sample
	// degrades to the newest snapshot.
	if pose.Position.X != 1 && pose.Position.X != 2 {
		t.Fatalf("expected one of the buffered poses, got x=%v", pose.Position.X)
	}
}

func TestExtrapolationProjectsVelocity(t *testing.T) {
	i := NewInterpolator()
	base := time.Now()

	pose := poseAtX(100)
	pose.Velocity = protocol.Vec4{X: 10}
	i.AddSnapshot(pose, base)

	// 300ms after arrival, well past the staleness threshold: position is
	// projected forward by velocity * (age - render delay).
	got, ok := i.Sample(base.Add(300 * time.Millisecond))
	if !ok {
		t.Fatalf("sample should succeed")
	}

	want := 100.0 + 10.0*0.2
	if math.Abs(got.Position.X-want) > 1e-9 {
		t.Fatalf("expected extrapolated x=%v, got %v", want, got.Position.X)
	}
	if !i.Extrapolating() {
		t.Fatalf("expected extrapolation flag")
	}
}

func TestRecoveryBlendAfterExtrapolation(t *testing.T) {
	i := NewInterpolator()
	base := time.Now()

	pose := poseAtX(100)
	pose.Velocity = protocol.Vec4{X: 10}
	i.AddSnapshot(pose, base)

	// Force extrapolation.
	if _, ok := i.Sample(base.Add(400 * time.Millisecond)); !ok {
		t.Fatalf("extrapolated sample should succeed")
	}
	if !i.Extrapolating() {
		t.Fatalf("expected extrapolation")
	}

	// Fresh data arrives and a bracket exists again.
	i.AddSnapshot(poseAtX(200), base.Add(400*time.Millisecond))
	i.AddSnapshot(poseAtX(200), base.Add(600*time.Millisecond))

	now := base.Add(650 * time.Millisecond)
	got, ok := i.Sample(now)
	if !ok {
		t.Fatalf("sample should succeed")
	}
	if !i.Blending() {
		t.Fatalf("expected recovery blend to start")
	}
	if i.Extrapolating() {
		t.Fatalf("blend and extrapolation must not both be active")
	}

	// At blend start (t=0) the returned pose is the extrapolated anchor,
	// not the raw interpolated target.
	anchor := 100.0 + 10.0*0.3
	if math.Abs(got.Position.X-anchor) > 1e-9 {
		t.Fatalf("expected blend to start from anchor x=%v, got %v", anchor, got.Position.X)
	}

	// Past the blend duration the blend deactivates and raw interpolation
	// resumes.
	i.AddSnapshot(poseAtX(200), base.Add(1200*time.Millisecond))
	if _, ok := i.Sample(base.Add(1250 * time.Millisecond)); !ok {
		t.Fatalf("sample should succeed")
	}
	if i.Blending() {
		t.Fatalf("blend should deactivate after %v", RecoveryBlendDuration)
	}
}

func TestLerpAngleShortestPath(t *testing.T) {
	got := lerpAngle(170, -170, 0.5)
	if math.Abs(math.Abs(got)-180) > 1e-9 {
		t.Fatalf("expected ±180, got %v", got)
	}

	// Naive blending would pass through 0.
	if math.Abs(got) < 90 {
		t.Fatalf("angle blend took the long way round: %v", got)
	}

	if got := lerpAngle(10, 20, 0.5); math.Abs(got-15) > 1e-9 {
		t.Fatalf("plain case broken: %v", got)
	}
}

func TestReset(t *testing.T) {
	i := NewInterpolator()
	base := time.Now()

	i.AddSnapshot(poseAtX(1), base)
	i.AddSnapshot(poseAtX(2), base.Add(50*time.Millisecond))
	if _, ok := i.Sample(base.Add(400 * time.Millisecond)); !ok {
		t.Fatalf("sample should succeed")
	}

	i.Reset()

	if i.Count() != 0 {
		t.Fatalf("count should be 0 after reset, got %d", i.Count())
	}
	if i.Extrapolating() || i.Blending() {
		t.Fatalf("reset should clear derived state")
	}
	if _, ok := i.Sample(base.Add(500 * time.Millisecond)); ok {
		t.Fatalf("reset interpolator should report no data")
	}
}
