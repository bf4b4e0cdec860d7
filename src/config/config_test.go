package config

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()

	conf.SetDataDir("/tmp/drift-test")

	if conf.DataDir != "/tmp/drift-test" {
		t.Fatalf("bad datadir: %s", conf.DataDir)
	}
	if conf.DatabaseDir != filepath.Join("/tmp/drift-test", DefaultBadgerFile) {
		t.Fatalf("database dir should follow datadir: %s", conf.DatabaseDir)
	}
	if conf.Keyfile() != filepath.Join("/tmp/drift-test", DefaultKeyfile) {
		t.Fatalf("bad keyfile: %s", conf.Keyfile())
	}

	// An explicitly set database dir is left alone.
	conf2 := NewDefaultConfig()
	conf2.DatabaseDir = "/var/lib/drift/facts"
	conf2.SetDataDir("/tmp/elsewhere")
	if conf2.DatabaseDir != "/var/lib/drift/facts" {
		t.Fatalf("explicit database dir must not be overridden: %s", conf2.DatabaseDir)
	}
}

func TestLogLevel(t *testing.T) {
	if LogLevel("warn") != logrus.WarnLevel {
		t.Fatalf("bad level for warn")
	}
	if LogLevel("nonsense") != logrus.DebugLevel {
		t.Fatalf("unknown levels should default to debug")
	}
}

func TestNodeConfig(t *testing.T) {
	conf := NewTestConfig(t)

	nc := conf.NodeConfig()
	if nc.FramePeriod != DefaultFramePeriod {
		t.Fatalf("bad frame period: %v", nc.FramePeriod)
	}
	if nc.SessionTimeout != DefaultSessionTimeout {
		t.Fatalf("bad session timeout: %v", nc.SessionTimeout)
	}
	if nc.LockTimeout != DefaultLockTimeout {
		t.Fatalf("bad lock timeout: %v", nc.LockTimeout)
	}
	if nc.Logger == nil {
		t.Fatalf("node config should carry a logger")
	}
}
