package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func newExternalTaskCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "external-task",
		Short:       "Lock, complete, fail and query external tasks",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newExternalTaskCompleteCmd(cli))
	c.AddCommand(newExternalTaskFailCmd(cli))
	c.AddCommand(newExternalTaskLockCmd(cli))
	c.AddCommand(newExternalTaskQueryCmd(cli))

	return &c
}

func newExternalTaskCompleteCmd(cli *Cli) *cobra.Command {
	var (
		variables map[string]string

		cmd engine.CompleteExternalTaskCmd
	)

	c := cobra.Command{
		Use:   "complete",
		Short: "Complete a locked external task",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.Variables = mapVariables(variables)
			cmd.WorkerId = cli.workerId

			_, err := cli.e.CompleteExternalTask(context.Background(), cmd)
			return err
		},
	}

	c.Flags().Int64Var(&cmd.Id, "id", 0, "External task ID")
	flagVariables(&c, &variables)

	c.MarkFlagRequired("id")

	return &c
}

func newExternalTaskFailCmd(cli *Cli) *cobra.Command {
	var cmd engine.FailExternalTaskCmd

	c := cobra.Command{
		Use:   "fail",
		Short: "Fail a locked external task",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.WorkerId = cli.workerId

			_, err := cli.e.FailExternalTask(context.Background(), cmd)
			return err
		},
	}

	c.Flags().Int64Var(&cmd.Id, "id", 0, "External task ID")
	c.Flags().StringVar(&cmd.Error, "error", "", "Error, describing the failure")

	c.MarkFlagRequired("id")
	c.MarkFlagRequired("error")

	return &c
}

func newExternalTaskLockCmd(cli *Cli) *cobra.Command {
	var (
		lockDuration iso8601DurationValue

		cmd engine.LockExternalTasksCmd
	)

	c := cobra.Command{
		Use:   "lock",
		Short: "Lock external tasks of a topic",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.LockDuration = engine.ISO8601Duration(lockDuration)
			cmd.WorkerId = cli.workerId

			lockedTasks, err := cli.e.LockExternalTasks(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Print(formatExternalTasks(lockedTasks))
			return nil
		},
	}

	c.Flags().StringVar(&cmd.Topic, "topic", "", "Topic")
	c.Flags().IntVar(&cmd.Limit, "limit", 1, "Maximum number of tasks to lock")
	c.Flags().Var(&lockDuration, "lock-duration", "Duration of the lock (default PT5M)")

	c.MarkFlagRequired("topic")

	return &c
}

func newExternalTaskQueryCmd(cli *Cli) *cobra.Command {
	var (
		criteria engine.ExternalTaskCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query external tasks",
		RunE: func(c *cobra.Command, _ []string) error {
			q := cli.e.CreateQuery()
			q.SetOptions(options)

			results, err := q.QueryExternalTasks(context.Background(), criteria)
			if err != nil {
				return err
			}

			c.Print(formatExternalTasks(results))
			return nil
		},
	}

	c.Flags().Int64Var(&criteria.Id, "id", 0, "External task ID")
	c.Flags().Int64Var(&criteria.ProcessInstanceId, "process-instance-id", 0, "Process instance ID")
	c.Flags().Var(newStateValue(&criteria.State, engine.MapExternalTaskState, "externalTaskState"), "state", "External task state")
	c.Flags().StringVar(&criteria.Topic, "topic", "", "Topic")

	flagQueryOptions(&c, &options)

	return &c
}

func formatExternalTasks(externalTasks []engine.ExternalTask) string {
	table := newTable([]string{
		"ID",
		"PROCESS INSTANCE ID",
		"ACTIVITY ID",
		"TOPIC",
		"STATE",
		"LOCKED BY",
		"LOCK EXPIRES AT",
		"ERROR",
	})

	for _, externalTask := range externalTasks {
		table.addRow(
			formatId(externalTask.Id),
			formatId(externalTask.ProcessInstanceId),
			externalTask.ActivityId,
			externalTask.Topic,
			externalTask.State.String(),
			externalTask.LockedBy,
			formatTimeOrNil(externalTask.LockExpiresAt),
			externalTask.Error,
		)
	}

	return table.format()
}
