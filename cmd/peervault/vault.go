package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robcohen/peervault/pkg/config"
	"github.com/robcohen/peervault/pkg/core"
	"github.com/robcohen/peervault/pkg/events"
	"github.com/robcohen/peervault/pkg/gc"
	"github.com/robcohen/peervault/pkg/migrations"
	"github.com/robcohen/peervault/pkg/tcptransport"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage a local vault",
}

var vaultInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new vault data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}

		nodeID, _ := cmd.Flags().GetString("node-id")
		if nodeID == "" {
			nodeID = tcptransport.RandomNodeID()
		}

		fmt.Printf("vault initialized in %s\n", cfg.DataDir)
		fmt.Printf("node id: %s\n", nodeID)
		fmt.Printf("run 'peervault vault serve --node-id %s' to start syncing\n", nodeID)
		return nil
	},
}

var vaultServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vault daemon, syncing with peers until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		nodeID, _ := cmd.Flags().GetString("node-id")
		if nodeID == "" {
			nodeID = tcptransport.RandomNodeID()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		transport, addr, err := tcptransport.New(cfg.Listen)
		if err != nil {
			return fmt.Errorf("bind listen address: %w", err)
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

		logEvents(ctx, v)

		if err := v.Start(ctx); err != nil {
			return fmt.Errorf("start vault: %w", err)
		}

		fmt.Printf("serving vault %s on %s (node %s)\n", cfg.DataDir, addr, nodeID)
		<-ctx.Done()
		fmt.Println("shutting down")
		return nil
	},
}

// logEvents prints a one-line summary of every broker event, the CLI's
// stand-in for a host application's notification center.
func logEvents(ctx context.Context, v *core.Vault) {
	sub := v.Events()
	go func() {
		for {
			select {
			case e, ok := <-sub:
				if !ok {
					return
				}
				if e.Type == events.VaultAdoptionRequest && e.Respond != nil {
					fmt.Printf("[event] vault adoption requested by peer %s, auto-accepting\n", e.NodeID)
					e.Respond(true)
					continue
				}
				fmt.Printf("[event] %s peer=%s\n", e.Type, e.NodeID)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil {
		return "peervault"
	}
	return h
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func init() {
	vaultInitCmd.Flags().String("node-id", "", "Node ID (random if omitted)")
	vaultServeCmd.Flags().String("node-id", "", "Node ID (random if omitted)")

	vaultCmd.AddCommand(vaultInitCmd)
	vaultCmd.AddCommand(vaultServeCmd)
}
