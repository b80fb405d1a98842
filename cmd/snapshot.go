package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/trafficpeek/internal/app"
	"github.com/JakeFAU/trafficpeek/internal/ranklist"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage the rank-list CSV snapshot",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "push <file.csv>",
		Short: "Validate a rank,domain CSV and upload it to the configured snapshot store",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotPush,
	})
	return cmd
}

func runSnapshotPush(cmd *cobra.Command, args []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := ranklist.ParseSnapshot(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("validate snapshot: %w", err)
	}

	cfg := rt.cfg.RankList.Snapshot
	if err := cfg.Validate(); err != nil {
		return err
	}
	store, release, err := app.OpenSnapshotStore(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer func() {
		_ = release()
	}()

	location, err := store.PutObject(cmd.Context(), cfg.Object, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	rt.logger.Info("rank list snapshot uploaded",
		zap.String("location", location),
		zap.Int("domains", snap.Len()),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d domains to %s\n", snap.Len(), location)
	return nil
}
