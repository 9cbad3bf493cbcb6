package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"crypto-keystore/internal/domain"
	"crypto-keystore/internal/infra"
	"crypto-keystore/internal/usecase"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage keystore schema migrations",
	Long:  "Manage schema migrations of the keystore database configured by crypto_keystore_sql_url",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up [version]",
	Short: "Apply pending migrations",
	Long:  "Apply pending migrations up to the given version (latest when omitted). Puts the database under version control first if needed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := ""
		if len(args) == 1 {
			target = args[0]
		}
		return withMigrations(cmd.Context(), func(ctx context.Context, ks *infra.KeyStore) error {
			appliedCount, err := ks.Migrations.Upgrade(ctx, target)
			if errors.Is(err, domain.ErrNotVersionControlled) {
				if err := ks.Migrations.VersionControl(ctx, domain.BaseRevision); err != nil {
					return fmt.Errorf("failed to put database under version control: %w", err)
				}
				appliedCount, err = ks.Migrations.Upgrade(ctx, target)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			if appliedCount == 0 {
				fmt.Println("No pending migrations.")
			} else {
				fmt.Printf("Applied %d migration(s) successfully.\n", appliedCount)
			}
			return nil
		})
	},
}

var migrateSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bring the keystore schema up to date",
	Long:  "Run the same schema synchronization the server performs when crypto_keystore_sync_on_start is enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(cmd.Context(), func(ctx context.Context, ks *infra.KeyStore) error {
			if err := ks.Sync(ctx); err != nil {
				return err
			}
			fmt.Println("Keystore schema is up to date.")
			return nil
		})
	},
}

var migrateVersionControlCmd = &cobra.Command{
	Use:   "version-control [version]",
	Short: "Put the database under version control",
	Long:  "Record the given version (none when omitted) as applied without running any migration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := domain.BaseRevision
		if len(args) == 1 {
			target = args[0]
		}
		return withMigrations(cmd.Context(), func(ctx context.Context, ks *infra.KeyStore) error {
			if err := ks.Migrations.VersionControl(ctx, target); err != nil {
				return err
			}
			fmt.Println("Database is under version control.")
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long:  "Show the status of all migrations (applied/pending)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(cmd.Context(), func(ctx context.Context, ks *infra.KeyStore) error {
			migrations, err := ks.Migrations.GetMigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			// テーブル形式で出力
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			fmt.Fprintln(w, "-------\t----\t------\t----------")

			for _, migration := range migrations {
				appliedAt := "-"
				if migration.AppliedAt != nil {
					appliedAt = migration.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", migration.Version, migration.Name, migration.Status, appliedAt)
			}

			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush output: %w", err)
			}
			return nil
		})
	},
}

// withMigrations は sql ドライバのキーストアを開いて fn を実行する。
func withMigrations(ctx context.Context, fn func(ctx context.Context, ks *infra.KeyStore) error) error {
	if cfg.KeystoreDriver != usecase.DriverSQL {
		return fmt.Errorf("migrations require crypto_keystore_driver=%s, got %q", usecase.DriverSQL, cfg.KeystoreDriver)
	}

	// 起動時同期はコマンド側で制御する
	local := *cfg
	local.KeystoreSyncOnStart = false

	ks, err := infra.OpenKeyStore(ctx, &local)
	if err != nil {
		return fmt.Errorf("failed to open keystore: %w", err)
	}
	defer ks.Close()

	return fn(ctx, ks)
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateSyncCmd)
	migrateCmd.AddCommand(migrateVersionControlCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
