package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"queue-ticket/models"

	"github.com/spf13/cobra"
)

type coreLoader func() (*queueCore, error)

// newQueueCommand creates the "queue" admin command group. It runs against
// the same store the server uses, so it is safe to call while serving.
func newQueueCommand(load coreLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage service queues and their tickets",
	}

	cmd.AddCommand(
		newQueueCreateCommand(load),
		newQueueListCommand(load),
		newQueueResetCommand(load),
		newQueueDeleteCommand(load),
		newQueueStatsCommand(load),
	)
	return cmd
}

func newQueueCreateCommand(load coreLoader) *cobra.Command {
	return &cobra.Command{
		Use:          "create <name>",
		Short:        "Create an active queue",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load()
			if err != nil {
				return err
			}
			defer c.close()

			q, err := c.registry.CreateQueue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), q)
		},
	}
}

func newQueueListCommand(load coreLoader) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:          "list",
		Short:        "List queues",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load()
			if err != nil {
				return err
			}
			defer c.close()

			var queues []*models.Queue
			if all {
				queues, err = c.registry.ListQueues(cmd.Context())
			} else {
				queues, err = c.registry.ListActiveQueues(cmd.Context())
			}
			if err != nil {
				return err
			}
			return writeQueueTable(cmd.OutOrStdout(), queues)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include deactivated queues")
	return cmd
}

func newQueueResetCommand(load coreLoader) *cobra.Command {
	return &cobra.Command{
		Use:          "reset <queue-id>",
		Short:        "Cancel every waiting and serving ticket of a queue",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load()
			if err != nil {
				return err
			}
			defer c.close()

			n, err := c.engine.ResetQueue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d tickets\n", n)
			return nil
		},
	}
}

func newQueueDeleteCommand(load coreLoader) *cobra.Command {
	return &cobra.Command{
		Use:          "delete <queue-id>",
		Short:        "Cancel a queue's active tickets and delete it",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load()
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.registry.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted queue %s\n", args[0])
			return nil
		},
	}
}

func newQueueStatsCommand(load coreLoader) *cobra.Command {
	var queueID string

	cmd := &cobra.Command{
		Use:          "stats",
		Short:        "Show ticket counts per status",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load()
			if err != nil {
				return err
			}
			defer c.close()

			st, err := c.engine.Stats(cmd.Context(), queueID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st)
		},
	}

	cmd.Flags().StringVar(&queueID, "queue", "", "limit the counts to one queue")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeQueueTable(w io.Writer, queues []*models.Queue) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tCREATED")
	for _, q := range queues {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", q.ID, q.Name, q.IsActive, q.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
