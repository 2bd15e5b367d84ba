package cmd

import (
	"github.com/spf13/cobra"
)

// Version is the semantic version of the build, set at link time.
var Version = "dev"

// GitSHA is the git commit of the build, set at link time.
var GitSHA = ""

// VersionCmd prints the build version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("devnode version: %s\n", Version)
		if GitSHA != "" {
			cmd.Printf("git sha: %s\n", GitSHA)
		}
	},
}
