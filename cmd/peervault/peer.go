package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/robcohen/peervault/pkg/core"
	"github.com/robcohen/peervault/pkg/gc"
	"github.com/robcohen/peervault/pkg/migrations"
	"github.com/robcohen/peervault/pkg/tcptransport"
)

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Manage synced peers",
}

var peerInviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Mint an invite ticket new peers can redeem",
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		return withVault(cmd, func(ctx context.Context, v *core.Vault, transport *tcptransport.Transport) error {
			ticket, err := v.GenerateInvite(ctx)
			if err != nil {
				return err
			}
			fmt.Println(transport.EncodeInvite(ticket))
			return nil
		})
	},
}

var peerAddCmd = &cobra.Command{
	Use:   "add <invite>",
	Short: "Redeem an invite minted by another vault and start syncing with it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		return withVault(cmd, func(ctx context.Context, v *core.Vault, transport *tcptransport.Transport) error {
			if err := v.Start(ctx); err != nil {
				return err
			}
			if err := v.AddPeer(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("peer added, syncing in background")
			return nil
		})
	},
}

var peerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known peers and their sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		return withVaultOffline(cmd, func(ctx context.Context, v *core.Vault) error {
			peers, err := v.ListPeers(ctx)
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				fmt.Println("no peers")
				return nil
			}
			for _, p := range peers {
				lastSync := "never"
				if !p.LastSyncTime.IsZero() {
					lastSync = p.LastSyncTime.Format(time.RFC3339)
				}
				fmt.Printf("%s\t%s\t%s\tlast-sync=%s\n", p.NodeID, p.Hostname, p.State, lastSync)
			}
			return nil
		})
	},
}

var peerRemoveCmd = &cobra.Command{
	Use:   "remove <node-id>",
	Short: "Forget a peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		return withVaultOffline(cmd, func(ctx context.Context, v *core.Vault) error {
			return v.RemovePeer(ctx, args[0])
		})
	},
}

// withVault opens the vault at the configured data dir, wires a fresh
// tcptransport bound to the configured listen address, runs fn, and closes
// everything down afterward. peer invite, peer add and sync share this
// open/transport/close bracket (peer list and peer remove use
// withVaultOffline instead), the way the teacher's worker/manager
// subcommands each open their own store around a single RunE body.
func withVault(cmd *cobra.Command, fn func(ctx context.Context, v *core.Vault, transport *tcptransport.Transport) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()

	transport, _, err := tcptransport.New(cfg.Listen)
	if err != nil {
		return fmt.Errorf("bind listen address: %w", err)
	}

	nodeID, _ := cmd.Flags().GetString("node-id")
	if nodeID == "" {
		nodeID = tcptransport.RandomNodeID()
	}

	v, err := core.Open(ctx, core.Options{
		DataDir:   cfg.DataDir,
		NodeID:    nodeID,
		Hostname:  hostnameOrDefault(),
		Transport: transport,
		GC: gc.Config{
			Enabled:              cfg.GC.Enabled,
			MaxDocSizeMB:         cfg.GC.MaxDocSizeMB,
			MinHistoryDays:       cfg.GC.MinHistoryDays,
			RequirePeerConsensus: cfg.GC.RequirePeerConsensus,
		},
		Crypto: core.CryptoOptions{
			Algorithm:  cfg.Crypto.Suite,
			ScryptCost: cfg.Crypto.ScryptCost,
		},
		Migrations: migrations.Chain(),
	})
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}
	defer v.Close()

	return fn(ctx, v, transport)
}

func init() {
	peerCmd.PersistentFlags().String("node-id", "", "Node ID (random if omitted)")

	peerCmd.AddCommand(peerInviteCmd)
	peerCmd.AddCommand(peerAddCmd)
	peerCmd.AddCommand(peerListCmd)
	peerCmd.AddCommand(peerRemoveCmd)
}
