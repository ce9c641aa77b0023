package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tapeview/internal/core"
	"tapeview/internal/importer"
	"tapeview/internal/infra/persistence/memory"
	"tapeview/pkg/domain"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	var peaksPath, regionsPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load peaks and regions CSV exports into the record store",
		Long: `Reads TapeStation peak and region tables from CSV and appends them to the
configured record store. The combined tables must still merge: rows that
repeat a (ts_data_id, well_id) key already present are rejected before
anything is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if peaksPath == "" && regionsPath == "" {
				return fmt.Errorf("at least one of --peaks or --regions is required")
			}
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			peaks, regions, err := readTables(peaksPath, regionsPath)
			if err != nil {
				return err
			}
			store, err := core.OpenRecordStore(cmd.Context(), cfg.Storage)
			if err != nil {
				return fmt.Errorf("open record store: %w", err)
			}
			defer func() { _ = store.Close() }()

			rows, err := importRecords(cmd.Context(), store, peaks, regions)
			if err != nil {
				return err
			}
			logger.Info("import complete",
				zap.Int("peaks", len(peaks)),
				zap.Int("regions", len(regions)),
				zap.Int("baseline_rows", rows))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d peaks and %d regions; baseline now has %d wells\n", len(peaks), len(regions), rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&peaksPath, "peaks", "", "peaks table CSV")
	cmd.Flags().StringVar(&regionsPath, "regions", "", "regions table CSV")
	return cmd
}

func readTables(peaksPath, regionsPath string) ([]domain.PeakRow, []domain.RegionRow, error) {
	var (
		peaks   []domain.PeakRow
		regions []domain.RegionRow
	)
	if peaksPath != "" {
		f, err := os.Open(peaksPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open peaks: %w", err)
		}
		defer func() { _ = f.Close() }()
		if peaks, err = importer.ReadPeaks(f); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", peaksPath, err)
		}
	}
	if regionsPath != "" {
		f, err := os.Open(regionsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open regions: %w", err)
		}
		defer func() { _ = f.Close() }()
		if regions, err = importer.ReadRegions(f); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", regionsPath, err)
		}
	}
	return peaks, regions, nil
}

// importRecords merges the store contents with the new rows in memory and
// seeds the store only when the result forms a valid baseline. It returns
// the baseline size after the import.
func importRecords(ctx context.Context, store domain.RecordStore, peaks []domain.PeakRow, regions []domain.RegionRow) (int, error) {
	existingPeaks, err := store.PeakRows(ctx)
	if err != nil {
		return 0, err
	}
	existingRegions, err := store.RegionRows(ctx)
	if err != nil {
		return 0, err
	}
	combined := memory.NewStore()
	if err := combined.Seed(ctx, existingPeaks, existingRegions); err != nil {
		return 0, err
	}
	if err := combined.Seed(ctx, peaks, regions); err != nil {
		return 0, err
	}
	check, err := core.NewService(combined)
	if err != nil {
		return 0, err
	}
	baseline, err := check.LoadBaseline(ctx)
	if err != nil {
		return 0, fmt.Errorf("rows rejected: %w", err)
	}
	if err := store.Seed(ctx, peaks, regions); err != nil {
		return 0, fmt.Errorf("seed store: %w", err)
	}
	return baseline.Len(), nil
}
