package drift

import (
	"path/filepath"
	"testing"

	"github.com/driftnetworks/drift/src/config"
	"github.com/driftnetworks/drift/src/narrative"
	"github.com/driftnetworks/drift/src/node"
)

func testConfig(t *testing.T) *config.Config {
	conf := config.NewTestConfig(t)
	conf.SetDataDir(t.TempDir())
	conf.BindAddr = "127.0.0.1:0"
	conf.NoService = true
	conf.Moniker = "test"
	return conf
}

func TestInitAndShutdown(t *testing.T) {
	engine := NewDrift(testConfig(t))

	if err := engine.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}
	defer engine.Shutdown()

	if engine.Node == nil || engine.Transport == nil || engine.Narrative == nil {
		t.Fatalf("engine should be fully assembled")
	}
	if engine.Node.GetState() != node.Connected {
		t.Fatalf("node should be connected after init, got %v", engine.Node.GetState())
	}
	if _, ok := engine.Store.(*narrative.InmemStore); !ok {
		t.Fatalf("default store should be in-memory")
	}
}

func TestInitGeneratesKey(t *testing.T) {
	conf := testConfig(t)

	engine := NewDrift(conf)
	if err := engine.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}
	engine.Shutdown()

	if conf.Key == nil {
		t.Fatalf("a fresh datadir should get a generated key")
	}

	// A second engine over the same datadir reuses the key and therefore
	// derives the same GUID.
	guid := engine.Node.GUID()

	conf2 := testConfig(t)
	conf2.SetDataDir(conf.DataDir)

	engine2 := NewDrift(conf2)
	if err := engine2.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}
	defer engine2.Shutdown()

	if engine2.Node.GUID() != guid {
		t.Fatalf("identity should be stable across restarts")
	}
}

func TestBadgerStore(t *testing.T) {
	conf := testConfig(t)
	conf.Store = true
	conf.DatabaseDir = filepath.Join(conf.DataDir, "facts")

	engine := NewDrift(conf)
	if err := engine.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}
	defer engine.Shutdown()

	if _, ok := engine.Store.(*narrative.BadgerStore); !ok {
		t.Fatalf("store flag should select the badger store")
	}
}

func TestKeygenRefusesOverwrite(t *testing.T) {
	keyfile := filepath.Join(t.TempDir(), "priv_key")

	if _, err := Keygen(keyfile); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := Keygen(keyfile); err == nil {
		t.Fatalf("keygen must refuse to overwrite an existing key")
	}
}
