// Package drift assembles a complete node from its configuration: key,
// store, transport, node and HTTP service.
package drift

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/driftnetworks/drift/src/config"
	"github.com/driftnetworks/drift/src/crypto/keys"
	"github.com/driftnetworks/drift/src/narrative"
	"github.com/driftnetworks/drift/src/net"
	"github.com/driftnetworks/drift/src/node"
	"github.com/driftnetworks/drift/src/service"
)

// Drift is a fully assembled node engine.
type Drift struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     narrative.Store
	Narrative *narrative.Manager
	Service   *service.Service
}

// NewDrift wraps a configuration; call Init before Run.
func NewDrift(conf *config.Config) *Drift {
	engine := &Drift{
		Config: conf,
	}

	return engine
}

func (d *Drift) initKey() error {
	if d.Config.Key == nil {
		keyfile := keys.NewSimpleKeyfile(d.Config.Keyfile())

		privKey, err := keyfile.ReadKey()

		if err != nil {
			d.Config.Logger().Warn("Cannot read private key from file", err)

			privKey, err = Keygen(d.Config.Keyfile())

			if err != nil {
				d.Config.Logger().Error("Cannot generate a new private key", err)

				return err
			}

			d.Config.Logger().Info("Created a new key: ", keys.PublicKeyHex(&privKey.PublicKey))
		}

		d.Config.Key = privKey
	}
	return nil
}

func (d *Drift) initStore() error {
	if !d.Config.Store {
		d.Store = narrative.NewInmemStore(d.Config.FactCacheLimit)

		d.Config.Logger().Debug("created new in-mem store")
	} else {
		var err error

		d.Config.Logger().WithField("path", d.Config.DatabaseDir).Debug("Attempting to load or create database")

		d.Store, err = narrative.NewBadgerStore(d.Config.FactCacheLimit, d.Config.DatabaseDir)

		if err != nil {
			return err
		}
	}

	d.Narrative = narrative.NewManager(d.Store, d.Config.LockTimeout, d.Config.Logger())

	return nil
}

func (d *Drift) initTransport() error {
	transport, err := net.NewUDPTransport(
		d.Config.BindAddr,
		d.Config.AdvertiseAddr,
		d.Config.Logger(),
	)

	if err != nil {
		return err
	}

	d.Transport = transport

	return nil
}

func (d *Drift) initNode() error {
	validator := node.NewValidator(d.Config.Key, d.Config.Moniker)

	d.Node = node.NewNode(
		d.Config.NodeConfig(),
		validator,
		d.Transport,
		d.Narrative,
	)

	if err := d.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (d *Drift) initService() error {
	if !d.Config.NoService {
		d.Service = service.NewService(d.Config.ServiceAddr, d.Node, d.Config.Logger())
	}
	return nil
}

// Init builds all components in dependency order.
func (d *Drift) Init() error {
	if err := d.initKey(); err != nil {
		return err
	}

	if err := d.initStore(); err != nil {
		return err
	}

	if err := d.initTransport(); err != nil {
		return err
	}

	if err := d.initNode(); err != nil {
		return err
	}

	if err := d.initService(); err != nil {
		return err
	}

	return nil
}

// Run serves the HTTP API in the background and runs the node in the calling
// goroutine until Shutdown.
func (d *Drift) Run() {
	if d.Service != nil {
		go d.Service.Serve()
	}

	d.Node.Run()
}

// Shutdown stops the node and closes the store.
func (d *Drift) Shutdown() {
	if d.Node != nil {
		d.Node.Shutdown()
	}
	if d.Store != nil {
		d.Store.Close()
	}
}

// Keygen generates a new key pair and persists it to keyfile. It refuses to
// overwrite an existing key.
func Keygen(keyfile string) (*ecdsa.PrivateKey, error) {
	simpleKeyfile := keys.NewSimpleKeyfile(keyfile)

	if _, err := simpleKeyfile.ReadKey(); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", keyfile)
	}

	privKey, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := simpleKeyfile.WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
