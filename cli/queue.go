package cli

import (
	"fmt"

	"github.com/gear6io/slate/server/coordination/httpqueue"
	"github.com/gear6io/slate/server/replication"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the coordination work queue",
	Long: `Inspect the work queue served by the coordination endpoint.

These are the keys currently offered to remote replication workers.
Removing a key marks its work complete from the queue's point of view;
the assigner re-publishes it if the work record still needs data moved.

Examples:
  repladm queue list
  repladm queue remove 'files/wal-1|peerA|9|4'`,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the keys on the work queue",
	RunE:  runQueueList,
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <key>",
	Short: "Remove a key from the work queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRemove,
}

func init() {
	rootCmd.AddCommand(queueCmd)

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRemoveCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg := loadConfig()

	client := httpqueue.NewClient(cfg.Coordination.Endpoint, cfg.Coordination.Queue)
	keys, err := client.ListKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Fprintln(out, "Queue is empty.")
		return nil
	}

	data := pterm.TableData{{"FILE", "PEER", "REMOTE ID", "TABLE", "KEY"}}
	for _, key := range keys {
		file, target, err := replication.ParseQueueKey(key)
		if err != nil {
			data = append(data, []string{"?", "?", "?", "?", key})
			continue
		}
		data = append(data, []string{file, target.Peer, target.RemoteID, target.SourceTable, key})
	}
	return renderTable(out, data)
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loadConfig()

	client := httpqueue.NewClient(cfg.Coordination.Endpoint, cfg.Coordination.Queue)
	if err := client.RemoveWork(ctx, args[0]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}
