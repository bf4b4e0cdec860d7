package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/driftnetworks/drift/src/common"
	"github.com/driftnetworks/drift/src/node"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the
	// validator's private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel          = "debug"
	DefaultBindAddr          = "127.0.0.1:28960"
	DefaultServiceAddr       = "127.0.0.1:8000"
	DefaultFramePeriod       = 30 * time.Millisecond
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultSessionTimeout    = 20 * time.Second
	DefaultLockTimeout       = 15 * time.Second
	DefaultFactCacheLimit    = 1024
	DefaultStore             = false
)

// Config contains all the configuration properties of a Drift node.
type Config struct {
	// DataDir is the top-level directory containing Drift configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile is an optional file to tee log output into, in addition to
	// stderr.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node listens for peer
	// datagrams. In some cases, there may be a routable address that
	// cannot be bound. Use AdvertiseAddr to advertise a different address
	// to support this.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to
	// other nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. If
	// not specified, and "no-service" is not set, the API handlers are
	// registered with the DefaultServeMux of the http package. It is
	// possible that another server in the same process is simultaneously
	// using the DefaultServeMux. In which case, the handlers will be
	// accessible from both servers.
	ServiceAddr string `mapstructure:"service-listen"`

	// FramePeriod is the period of the session driver tick: timeout
	// sweep, state broadcast, lock fail-safe check and heartbeats all run
	// on this cadence.
	FramePeriod time.Duration `mapstructure:"frame"`

	// HeartbeatInterval is how often reconciliation heartbeats are sent
	// to authenticated peers.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat"`

	// SessionTimeout is how long a peer may stay silent before its
	// session is evicted.
	SessionTimeout time.Duration `mapstructure:"session-timeout"`

	// LockTimeout is the story lock fail-safe: a lock held longer than
	// this is forcibly released.
	LockTimeout time.Duration `mapstructure:"lock-timeout"`

	// FactCacheLimit is the max number of facts held in the narrative
	// cache before the oldest are evicted.
	FactCacheLimit int `mapstructure:"fact-cache"`

	// Store activates persistent storage for the fact cache.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// Key is the private key of the validator.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		BindAddr:          DefaultBindAddr,
		ServiceAddr:       DefaultServiceAddr,
		FramePeriod:       DefaultFramePeriod,
		HeartbeatInterval: DefaultHeartbeatInterval,
		SessionTimeout:    DefaultSessionTimeout,
		LockTimeout:       DefaultLockTimeout,
		FactCacheLimit:    DefaultFactCacheLimit,
		Store:             DefaultStore,
		DatabaseDir:       DefaultDatabaseDir(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level Drift directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitly
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// NodeConfig extracts the node-level timing parameters.
func (c *Config) NodeConfig() *node.Config {
	return node.NewConfig(
		c.FramePeriod,
		c.HeartbeatInterval,
		c.SessionTimeout,
		c.LockTimeout,
		c.Logger(),
	)
}

// Logger returns a formatted logrus Entry, with prefix set to "drift". When
// LogFile is set, output is additionally teed into that file at all levels.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			if _, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err != nil {
				c.logger.WithField("file", c.LogFile).Info("Failed to open log file, using stderr only")
			} else {
				pathMap := lfshook.PathMap{}
				for _, level := range logrus.AllLevels {
					pathMap[level] = c.LogFile
				}
				c.logger.Hooks.Add(lfshook.NewHook(
					pathMap,
					&logrus.TextFormatter{},
				))
			}
		}
	}
	return c.logger.WithField("prefix", "drift")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level Drift
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Drift")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Drift")
		} else {
			return filepath.Join(home, ".drift")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
