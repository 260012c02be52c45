package cli

import (
	"fmt"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/replication"
	"github.com/gear6io/slate/server/store"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var workCmd = &cobra.Command{
	Use:   "work [file-prefix]",
	Short: "Show work records awaiting assignment",
	Long: `List the per-target work records in the replication table.

A work record exists for every (file, target) pair that still has data
to replicate. The assigner turns these into queue keys; remote workers
update the record as they make progress.

Examples:
  repladm work
  repladm work files/wal-`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWork,
}

func init() {
	rootCmd.AddCommand(workCmd)
}

func runWork(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg := loadConfig()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	it, err := st.Scan(ctx, replication.ReplicationTableName, store.ScanOptions{
		Prefix: prefix,
		Family: replication.WorkFamily,
	})
	if err != nil {
		if errors.HasCode(err, store.ErrTableNotFound) {
			fmt.Fprintln(out, "No replication table yet; no work records.")
			return nil
		}
		return err
	}
	defer it.Close()

	data := pterm.TableData{{"FILE", "PEER", "REMOTE ID", "TABLE", "BEGIN", "END", "CLOSED", "NEEDS WORK"}}
	for it.Next() {
		e := it.Entry()

		target, err := replication.ParseTarget(e.Qualifier)
		if err != nil {
			data = append(data, []string{e.Row, e.Qualifier, "?", "?", "?", "?", "?", "?"})
			continue
		}
		status, err := replication.UnmarshalStatus(e.Value)
		if err != nil {
			data = append(data, []string{e.Row, target.Peer, target.RemoteID, target.SourceTable, "?", "?", "?", "?"})
			continue
		}
		data = append(data, []string{
			e.Row, target.Peer, target.RemoteID, target.SourceTable,
			fmt.Sprintf("%d", status.Begin), fmt.Sprintf("%d", status.End),
			fmt.Sprintf("%t", status.Closed), fmt.Sprintf("%t", status.RequiresWork()),
		})
	}
	if err := it.Err(); err != nil {
		return err
	}
	if len(data) == 1 {
		fmt.Fprintln(out, "No work records.")
		return nil
	}
	return renderTable(out, data)
}
