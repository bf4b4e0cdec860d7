package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driftnetworks/drift/src/drift"
)

// NewRunCmd returns the command that starts a Drift node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runDrift,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runDrift(cmd *cobra.Command, args []string) error {
	engine := drift.NewDrift(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Optional file to tee log output into")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for drift node")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for drift node")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB for facts")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")
	cmd.Flags().Int("fact-cache", _config.FactCacheLimit, "Max number of cached facts")

	// Timing
	cmd.Flags().Duration("frame", _config.FramePeriod, "Period of the session driver tick")
	cmd.Flags().Duration("heartbeat", _config.HeartbeatInterval, "Time between heartbeats")
	cmd.Flags().Duration("session-timeout", _config.SessionTimeout, "Peer inactivity timeout")
	cmd.Flags().Duration("lock-timeout", _config.LockTimeout, "Story lock fail-safe timeout")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitly set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"drift.DataDir":           _config.DataDir,
		"drift.BindAddr":          _config.BindAddr,
		"drift.AdvertiseAddr":     _config.AdvertiseAddr,
		"drift.ServiceAddr":       _config.ServiceAddr,
		"drift.NoService":         _config.NoService,
		"drift.Store":             _config.Store,
		"drift.LogLevel":          _config.LogLevel,
		"drift.Moniker":           _config.Moniker,
		"drift.FramePeriod":       _config.FramePeriod,
		"drift.HeartbeatInterval": _config.HeartbeatInterval,
		"drift.SessionTimeout":    _config.SessionTimeout,
		"drift.LockTimeout":       _config.LockTimeout,
		"drift.FactCacheLimit":    _config.FactCacheLimit,
	}

	if _config.Store {
		logFields["drift.DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all
	// other persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/drift.toml (.json, .yaml also work)
	viper.SetConfigName("drift")         // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
