package node

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftnetworks/drift/src/common"
	"github.com/driftnetworks/drift/src/narrative"
	"github.com/driftnetworks/drift/src/session"
)

// Config holds the timing parameters of a node.
type Config struct {
	// FramePeriod is the tick period of the session driver.
	FramePeriod time.Duration

	// HeartbeatInterval is the cadence of reconciliation heartbeats.
	HeartbeatInterval time.Duration

	// SessionTimeout is how long a peer may stay silent before eviction.
	SessionTimeout time.Duration

	// LockTimeout is the story lock fail-safe.
	LockTimeout time.Duration

	Logger *logrus.Entry
}

// NewConfig builds a node configuration.
func NewConfig(framePeriod, heartbeat, sessionTimeout, lockTimeout time.Duration, logger *logrus.Entry) *Config {
	return &Config{
		FramePeriod:       framePeriod,
		HeartbeatInterval: heartbeat,
		SessionTimeout:    sessionTimeout,
		LockTimeout:       lockTimeout,
		Logger:            logger,
	}
}

// DefaultConfig returns the production timing parameters.
func DefaultConfig() *Config {
	log := logrus.New()
	log.Level = logrus.DebugLevel

	return &Config{
		FramePeriod:       30 * time.Millisecond,
		HeartbeatInterval: 5 * time.Second,
		SessionTimeout:    session.DefaultSessionTimeout,
		LockTimeout:       narrative.DefaultLockTimeout,
		Logger:            logrus.NewEntry(log),
	}
}

// TestConfig returns a config with short timings suitable for unit tests.
func TestConfig(t testing.TB) *Config {
	conf := DefaultConfig()
	conf.FramePeriod = 5 * time.Millisecond
	conf.HeartbeatInterval = 20 * time.Millisecond
	conf.Logger = common.NewTestEntry(t)
	return conf
}
