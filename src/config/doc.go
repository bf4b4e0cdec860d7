// Package config defines the configuration for a Drift node.
//
// Regardless of how Drift is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, Drift relies on a data directory, defined by Config.DataDir, where
// it expects to find one additional file:
//
//	priv_key // a plain text file containing the raw private key (cf. drift keygen).
//
// When persistent storage is enabled, the fact database lives in a badger_db
// directory under the same data directory.
package config
