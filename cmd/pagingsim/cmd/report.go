package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/sarchlab/pagingsim/datarecording"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report [database.sqlite3]",
	Short: "Summarize the paging events of a recording.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := datarecording.NewReader(args[0])
		defer reader.Close()

		return report(cmd.Context(), cmd.OutOrStdout(), reader)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

type eventCount struct {
	pid   uint32
	event string
}

func report(
	ctx context.Context,
	out io.Writer,
	reader datarecording.DataReader,
) error {
	if ctx == nil {
		ctx = context.Background()
	}

	reader.MapTable(datarecording.ExecTableName, datarecording.ExecInfo{})
	reader.MapTable(datarecording.PagingTableName, datarecording.PagingEntry{})

	infos, _, err := reader.Query(ctx, datarecording.ExecTableName,
		datarecording.QueryParams{})
	if err != nil {
		return err
	}

	for _, i := range infos {
		info := i.(*datarecording.ExecInfo)
		fmt.Fprintf(out, "%s: %s\n", info.Property, info.Value)
	}

	events, total, err := reader.Query(ctx, datarecording.PagingTableName,
		datarecording.QueryParams{OrderBy: "Time"})
	if err != nil {
		return err
	}

	counts := make(map[eventCount]int)
	for _, e := range events {
		entry := e.(*datarecording.PagingEntry)
		counts[eventCount{entry.PID, entry.Event}]++
	}

	keys := make([]eventCount, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].pid != keys[j].pid {
			return keys[i].pid < keys[j].pid
		}

		return keys[i].event < keys[j].event
	})

	fmt.Fprintf(out, "%d paging events\n", total)

	for _, k := range keys {
		fmt.Fprintf(out, "  process %d %-10s %d\n", k.pid, k.event, counts[k])
	}

	return nil
}
