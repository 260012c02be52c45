package cli

import (
	"fmt"
	"time"

	"github.com/gear6io/slate/server/ingest"
	"github.com/gear6io/slate/server/replication"
	"github.com/gear6io/slate/utils"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write demo ingest records",
	Long: `Write synthetic ingest records through the same recorder the
tablet server uses, so a local daemon has something to replicate.

Each seeded file gets a fresh ULID segment name under files/. With
--closed the records are immediately marked closed, which makes them
eligible for work creation on the next replication pass.

Examples:
  repladm seed --table 4 --files 3
  repladm seed --table 4 --files 1 --end 2048 --closed`,
	RunE: runSeed,
}

type seedOptions struct {
	tableID string
	files   int
	end     int64
	closed  bool
}

var seedOpts = &seedOptions{}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedOpts.tableID, "table", "", "source table id to record ingest for (required)")
	seedCmd.Flags().IntVar(&seedOpts.files, "files", 1, "number of segment files to seed")
	seedCmd.Flags().Int64Var(&seedOpts.end, "end", 0, "ingested byte watermark per file (0 = growing file)")
	seedCmd.Flags().BoolVar(&seedOpts.closed, "closed", false, "mark the seeded files closed")
	seedCmd.MarkFlagRequired("table")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg := loadConfig()

	if seedOpts.files < 1 {
		return fmt.Errorf("--files must be at least 1, got %d", seedOpts.files)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	recorder := ingest.NewRecorder(st, zerolog.Nop())
	if err := recorder.EnsureCombiner(ctx); err != nil {
		return err
	}
	defer recorder.Close(ctx)

	files := make([]string, 0, seedOpts.files)
	for i := 0; i < seedOpts.files; i++ {
		files = append(files, fmt.Sprintf("files/%s", utils.GenerateULIDString()))
	}

	status := replication.NewFileStatus()
	if seedOpts.end > 0 {
		status = replication.IngestedUntil(seedOpts.end)
	}
	if err := recorder.UpdateFiles(ctx, seedOpts.tableID, files, status); err != nil {
		return err
	}

	if seedOpts.closed {
		closed := replication.FileClosedAt(time.Now().UnixMilli())
		if err := recorder.UpdateFiles(ctx, seedOpts.tableID, files, closed); err != nil {
			return err
		}
	}

	for _, f := range files {
		fmt.Fprintln(out, f)
	}
	fmt.Fprintf(out, "Seeded %d file(s) for table %s (closed=%t)\n", len(files), seedOpts.tableID, seedOpts.closed)
	return nil
}
