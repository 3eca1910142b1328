package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robcohen/peervault/pkg/core"
	"github.com/robcohen/peervault/pkg/gc"
	"github.com/robcohen/peervault/pkg/migrations"
	"github.com/robcohen/peervault/pkg/peer"
	"github.com/robcohen/peervault/pkg/syncsession"
	"github.com/robcohen/peervault/pkg/tcptransport"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// inertTransport never produces inbound connections and refuses every
// dial, the same shape pkg/core's own tests use to open a Vault without a
// real network. Commands that only read or mutate local state (peer list,
// peer remove, gc, key management) use it instead of binding a TCP socket
// that would collide with an already-running 'vault serve'.
type inertTransport struct{}

func (inertTransport) RegisterInvite(ctx context.Context, ticket string) error { return nil }

func (inertTransport) Dial(ctx context.Context, ticket string) (main, blob syncsession.Stream, nodeID string, err error) {
	return nil, nil, "", vaulterr.New(vaulterr.CodeTransportNotInit, "no network available in this command")
}

func (inertTransport) Listen(ctx context.Context) (<-chan peer.Inbound, error) {
	ch := make(chan peer.Inbound)
	go func() { <-ctx.Done(); close(ch) }()
	return ch, nil
}

// withVaultOffline opens the vault without binding any real transport, for
// subcommands that never dial out or accept inbound connections.
func withVaultOffline(cmd *cobra.Command, fn func(ctx context.Context, v *core.Vault) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()

	nodeID, _ := cmd.Flags().GetString("node-id")
	if nodeID == "" {
		nodeID = tcptransport.RandomNodeID()
	}

	v, err := core.Open(ctx, core.Options{
		DataDir:   cfg.DataDir,
		NodeID:    nodeID,
		Hostname:  hostnameOrDefault(),
		Transport: inertTransport{},
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

	return fn(ctx, v)
}
