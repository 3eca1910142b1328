package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robcohen/peervault/pkg/core"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run shallow-snapshot compaction and orphan blob reclamation",
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		force, _ := cmd.Flags().GetBool("force")
		return withVaultOffline(cmd, func(ctx context.Context, v *core.Vault) error {
			result, err := v.RunGC(ctx, force)
			if err != nil {
				return err
			}
			if result == nil {
				fmt.Println("gc not due: size and freshness thresholds not met")
				return nil
			}
			fmt.Printf("compacted %d -> %d bytes, reclaimed %d orphan blob(s) (%d bytes) in %s\n",
				result.BeforeSize, result.AfterSize, result.BlobsRemoved, result.BlobBytesReclaimed, result.Duration)
			return nil
		})
	},
}

func init() {
	gcCmd.Flags().Bool("force", false, "Run immediately, bypassing the size/freshness gate")
	gcCmd.Flags().String("node-id", "", "Node ID (random if omitted)")
}
