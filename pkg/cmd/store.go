package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evstack/devnode/pkg/config"
	"github.com/evstack/devnode/pkg/store"
)

// UnsafeCleanDataDir removes all contents of the specified data directory.
// It does not remove the data directory itself, only its contents.
func UnsafeCleanDataDir(dataDir string) error {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			// Data directory does not exist, nothing to clean.
			return nil
		}
		return fmt.Errorf("failed to read data directory: %w", err)
	}
	for _, entry := range entries {
		entryPath := filepath.Join(dataDir, entry.Name())
		if err := os.RemoveAll(entryPath); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entryPath, err)
		}
	}
	return nil
}

// StoreUnsafeCleanCmd removes all contents of the data directory.
var StoreUnsafeCleanCmd = &cobra.Command{
	Use:   "unsafe-clean",
	Short: "Remove all contents of the data directory (DANGEROUS: cannot be undone)",
	Long: `Removes all files and subdirectories in the node's data directory.
This operation is unsafe and cannot be undone. Use with caution!`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := ParseConfig(cmd)
		if err != nil {
			return fmt.Errorf("error parsing config: %w", err)
		}
		dataDir := filepath.Join(cfg.RootDir, cfg.DBPath)
		cmd.Println("Data directory:", dataDir)
		if err := UnsafeCleanDataDir(dataDir); err != nil {
			return fmt.Errorf("error cleaning data directory: %w", err)
		}
		cmd.Println("All contents of the data directory have been removed.")
		return nil
	},
}

// StoreInfoCmd prints the chain head recorded in the block store.
var StoreInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the chain head recorded in the block store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := ParseConfig(cmd)
		if err != nil {
			return fmt.Errorf("error parsing config: %w", err)
		}

		kv, err := store.NewDefaultKVStore(cfg.RootDir, cfg.DBPath, dbName)
		if err != nil {
			return fmt.Errorf("failed to open datastore: %w", err)
		}
		defer kv.Close()

		blockStore := store.New(store.NewDevnodeKVStore(kv))
		ctx := cmd.Context()

		height, err := blockStore.Height(ctx)
		if errors.Is(err, store.ErrNotFound) {
			cmd.Println("Store is empty.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read height: %w", err)
		}

		block, err := blockStore.BlockByNumber(ctx, height)
		if err != nil {
			return fmt.Errorf("failed to read head block: %w", err)
		}

		cmd.Printf("Height:  %d\n", height)
		cmd.Printf("Hash:    %s\n", block.Hash().Hex())
		cmd.Printf("Parent:  %s\n", block.ParentHash().Hex())
		cmd.Printf("Txs:     %d\n", len(block.Transactions()))
		cmd.Printf("GasUsed: %d\n", block.GasUsed())
		return nil
	},
}

// StoreCmd groups the block store inspection subcommands.
var StoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and manage the node's block store",
}

func init() {
	StoreCmd.AddCommand(StoreInfoCmd, StoreUnsafeCleanCmd)
	config.AddFlags(StoreInfoCmd)
	config.AddFlags(StoreUnsafeCleanCmd)
}
