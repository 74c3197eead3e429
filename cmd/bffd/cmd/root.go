package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "bffd",
	Short:   "bffd is a session broker for micro-frontend shells",
	Version: Version,
	Long: `bffd exchanges externally issued identity credentials for server-side
sessions, hands the browser an HttpOnly cookie plus a CSRF token, and guards
state-changing module APIs behind both.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
