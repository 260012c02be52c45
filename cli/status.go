package cli

import (
	"fmt"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/replication"
	"github.com/gear6io/slate/server/store"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [file-prefix]",
	Short: "Show per-target replication statuses",
	Long: `List the replication status records tracked for each file.

Each row is one (file, source table) pair from the replication table's
status section: the replicated and ingested watermarks, whether the file
is still growing, and whether more replication work is outstanding.

Examples:
  repladm status                 # all tracked files
  repladm status files/wal-      # files under a row prefix
  repladm status --pending       # include unprocessed ingest records`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

type statusOptions struct {
	pending bool
}

var statusOpts = &statusOptions{}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusOpts.pending, "pending", false, "also list ingest records not yet processed into the replication table")
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	if err := printStatuses(cmd, st, prefix); err != nil {
		return err
	}

	if statusOpts.pending {
		fmt.Fprintln(out)
		if err := printPending(cmd, st, prefix); err != nil {
			return err
		}
	}
	return nil
}

func printStatuses(cmd *cobra.Command, st store.Store, prefix string) error {
	out := cmd.OutOrStdout()

	it, err := st.Scan(cmd.Context(), replication.ReplicationTableName, store.ScanOptions{
		Prefix: prefix,
		Family: replication.StatusFamily,
	})
	if err != nil {
		if errors.HasCode(err, store.ErrTableNotFound) {
			fmt.Fprintln(out, "No replication table yet; nothing has been tracked.")
			return nil
		}
		return err
	}
	defer it.Close()

	data := pterm.TableData{{"FILE", "TABLE", "BEGIN", "END", "INFINITE", "CLOSED", "CLOSED TIME", "NEEDS WORK"}}
	for it.Next() {
		e := it.Entry()
		status, err := replication.UnmarshalStatus(e.Value)
		if err != nil {
			data = append(data, []string{e.Row, e.Qualifier, "?", "?", "?", "?", "?", "?"})
			continue
		}
		data = append(data, []string{
			e.Row, e.Qualifier,
			fmt.Sprintf("%d", status.Begin), fmt.Sprintf("%d", status.End),
			fmt.Sprintf("%t", status.InfiniteEnd), fmt.Sprintf("%t", status.Closed),
			fmt.Sprintf("%d", status.ClosedTime), fmt.Sprintf("%t", status.RequiresWork()),
		})
	}
	if err := it.Err(); err != nil {
		return err
	}
	if len(data) == 1 {
		fmt.Fprintln(out, "No status records.")
		return nil
	}
	return renderTable(out, data)
}

// printPending lists ingest records still sitting in the source
// metadata table, i.e. not yet drained by a replication pass.
func printPending(cmd *cobra.Command, st store.Store, prefix string) error {
	out := cmd.OutOrStdout()

	it, err := st.Scan(cmd.Context(), replication.MetadataTableName, store.ScanOptions{
		Prefix: replication.MetadataReplPrefix + prefix,
		Family: replication.MetadataFamily,
	})
	if err != nil {
		if errors.HasCode(err, store.ErrTableNotFound) {
			fmt.Fprintln(out, "No metadata table; no pending ingest records.")
			return nil
		}
		return err
	}
	defer it.Close()

	data := pterm.TableData{{"PENDING FILE", "TABLE", "BEGIN", "END", "INFINITE", "CLOSED"}}
	for it.Next() {
		e := it.Entry()
		file, ok := replication.FileFromMetadataRow(e.Row)
		if !ok {
			continue
		}
		status, err := replication.UnmarshalStatus(e.Value)
		if err != nil {
			data = append(data, []string{file, e.Qualifier, "?", "?", "?", "?"})
			continue
		}
		data = append(data, []string{
			file, e.Qualifier,
			fmt.Sprintf("%d", status.Begin), fmt.Sprintf("%d", status.End),
			fmt.Sprintf("%t", status.InfiniteEnd), fmt.Sprintf("%t", status.Closed),
		})
	}
	if err := it.Err(); err != nil {
		return err
	}
	if len(data) == 1 {
		fmt.Fprintln(out, "No pending ingest records.")
		return nil
	}
	return renderTable(out, data)
}
