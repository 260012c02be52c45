package cli

import (
	"fmt"
	"time"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/replication"
	"github.com/gear6io/slate/server/store"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Show the close order of replicated files",
	Long: `List close order records, oldest close first.

The sequential assigner replays files per (peer, table) pair in exactly
this order. A file appears here once it has been closed and processed
by a replication pass, and disappears when it is fully replicated and
cleaned up.

Examples:
  repladm orders
  repladm orders --limit 20`,
	RunE: runOrders,
}

type ordersOptions struct {
	limit int
}

var ordersOpts = &ordersOptions{}

func init() {
	rootCmd.AddCommand(ordersCmd)

	ordersCmd.Flags().IntVar(&ordersOpts.limit, "limit", 0, "maximum number of records to show (0 = all)")
}

func runOrders(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg := loadConfig()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	it, err := st.Scan(ctx, replication.ReplicationTableName, store.ScanOptions{
		Family: replication.OrderFamily,
	})
	if err != nil {
		if errors.HasCode(err, store.ErrTableNotFound) {
			fmt.Fprintln(out, "No replication table yet; no close orders.")
			return nil
		}
		return err
	}
	defer it.Close()

	data := pterm.TableData{{"CLOSED AT", "FILE", "TABLE", "BEGIN", "END", "NEEDS WORK"}}
	for it.Next() {
		if ordersOpts.limit > 0 && len(data) > ordersOpts.limit {
			break
		}
		e := it.Entry()

		closedTime, file, err := replication.ParseOrderRow(e.Row)
		if err != nil {
			data = append(data, []string{e.Row, "?", e.Qualifier, "?", "?", "?"})
			continue
		}
		closedAt := "unknown"
		if closedTime > 0 {
			closedAt = time.UnixMilli(closedTime).UTC().Format(time.RFC3339)
		}
		status, err := replication.UnmarshalStatus(e.Value)
		if err != nil {
			data = append(data, []string{closedAt, file, e.Qualifier, "?", "?", "?"})
			continue
		}
		data = append(data, []string{
			closedAt, file, e.Qualifier,
			fmt.Sprintf("%d", status.Begin), fmt.Sprintf("%d", status.End),
			fmt.Sprintf("%t", status.RequiresWork()),
		})
	}
	if err := it.Err(); err != nil {
		return err
	}
	if len(data) == 1 {
		fmt.Fprintln(out, "No close orders.")
		return nil
	}
	return renderTable(out, data)
}
