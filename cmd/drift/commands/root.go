package commands

import (
	"github.com/spf13/cobra"

	"github.com/driftnetworks/drift/src/config"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for Drift
var RootCmd = &cobra.Command{
	Use:              "drift",
	Short:            "drift game-session relay",
	TraverseChildren: true,
}
