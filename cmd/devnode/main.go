package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	devcmd "github.com/evstack/devnode/pkg/cmd"
	"github.com/evstack/devnode/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "devnode",
		Short: "Local development node with instant and interval mining",
	}

	config.AddGlobalFlags(rootCmd)
	config.AddFlags(devcmd.InitCmd)

	rootCmd.AddCommand(
		devcmd.InitCmd,
		devcmd.RunCmd,
		devcmd.VersionCmd,
		devcmd.StoreCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
