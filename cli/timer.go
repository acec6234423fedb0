package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func newTimerCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "timer",
		Short:       "Execute and query timer jobs",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newTimerExecuteCmd(cli))
	c.AddCommand(newTimerQueryCmd(cli))

	return &c
}

func newTimerExecuteCmd(cli *Cli) *cobra.Command {
	var cmd engine.ExecuteTimersCmd

	c := cobra.Command{
		Use:   "execute",
		Short: "Claim and fire due timer jobs",
		RunE: func(c *cobra.Command, _ []string) error {
			completed, failed, err := cli.e.ExecuteTimers(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Print(formatTimerJobs(append(completed, failed...)))
			return nil
		},
	}

	c.Flags().Int64Var(&cmd.ProcessInstanceId, "process-instance-id", 0, "Process instance ID")
	c.Flags().IntVar(&cmd.Limit, "limit", 0, "Maximum number of timer jobs to fire - if 0, the engine's default is used")

	return &c
}

func newTimerQueryCmd(cli *Cli) *cobra.Command {
	var (
		criteria engine.TimerJobCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query timer jobs",
		RunE: func(c *cobra.Command, _ []string) error {
			q := cli.e.CreateQuery()
			q.SetOptions(options)

			results, err := q.QueryTimerJobs(context.Background(), criteria)
			if err != nil {
				return err
			}

			c.Print(formatTimerJobs(results))
			return nil
		},
	}

	c.Flags().Int64Var(&criteria.Id, "id", 0, "Timer job ID")
	c.Flags().Int64Var(&criteria.ProcessInstanceId, "process-instance-id", 0, "Process instance ID")
	c.Flags().Var(newStateValue(&criteria.State, engine.MapTimerState, "timerState"), "state", "Timer state")

	flagQueryOptions(&c, &options)

	return &c
}

func formatTimerJobs(timerJobs []engine.TimerJob) string {
	table := newTable([]string{
		"ID",
		"PROCESS INSTANCE ID",
		"ACTIVITY ID",
		"TYPE",
		"DEFINITION",
		"STATE",
		"DUE AT",
		"RETRIES",
		"ERROR",
	})

	for _, timerJob := range timerJobs {
		table.addRow(
			formatId(timerJob.Id),
			formatId(timerJob.ProcessInstanceId),
			timerJob.ActivityId,
			timerJob.Type.String(),
			timerJob.Definition,
			timerJob.State.String(),
			formatTime(timerJob.DueAt),
			strconv.Itoa(timerJob.Retries),
			timerJob.Error,
		)
	}

	return table.format()
}
