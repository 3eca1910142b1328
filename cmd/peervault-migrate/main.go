package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/robcohen/peervault/pkg/migrate"
	"github.com/robcohen/peervault/pkg/migrations"
	"github.com/robcohen/peervault/pkg/storage"
)

var (
	dataDir  = flag.String("data-dir", "./data", "PeerVault data directory")
	dryRun   = flag.Bool("dry-run", false, "Show what would migrate without making changes")
	restore  = flag.String("restore", "", "Restore the primary document from the given backup snapshot key and exit")
	toTarget = flag.Int("to", 0, "Target schema version (default: the latest migration in the chain)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags)
	log.Println("PeerVault Schema Migration Tool")
	log.Println("================================")

	dbPath := filepath.Join(*dataDir, "peervault.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("database not found at %s", dbPath)
	}

	st, err := storage.NewBoltAdapter(*dataDir)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer st.Close()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	runner := migrate.NewRunner(st, logger, migrations.Chain())
	ctx := context.Background()

	if *restore != "" {
		if err := runner.RestoreFromBackup(ctx, *restore); err != nil {
			log.Fatalf("restore failed: %v", err)
		}
		log.Printf("restored primary document from backup %s", *restore)
		return
	}

	target := *toTarget
	if target == 0 {
		target = migrations.Current()
	}

	if *dryRun {
		log.Printf("dry run: would migrate %s toward schema v%d (no changes made)", dbPath, target)
		log.Println("run without --dry-run to perform the migration")
		return
	}

	result, err := runner.Run(ctx, target)
	if err != nil {
		log.Fatalf("migration failed: %v (backup: %s)", err, result.BackupKey)
	}

	switch result.Status {
	case migrate.StatusUpToDate:
		log.Printf("already at schema v%d, nothing to do", result.FromVersion)
	case migrate.StatusOK:
		log.Printf("migrated v%d -> v%d (%d step(s) run)", result.FromVersion, result.ToVersion, len(result.MigrationsRun))
		if result.BackupKey != "" {
			log.Printf("pre-migration backup stored under key %s; restore with --restore=%s if needed", result.BackupKey, result.BackupKey)
		}
	}
}
