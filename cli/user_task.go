package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func newUserTaskCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "user-task",
		Short:       "Claim, complete and query user tasks",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newUserTaskClaimCmd(cli))
	c.AddCommand(newUserTaskCompleteCmd(cli))
	c.AddCommand(newUserTaskQueryCmd(cli))
	c.AddCommand(newUserTaskUnclaimCmd(cli))

	return &c
}

func newUserTaskClaimCmd(cli *Cli) *cobra.Command {
	var cmd engine.ClaimUserTaskCmd

	c := cobra.Command{
		Use:   "claim",
		Short: "Claim a user task",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.UserId = cli.userId

			_, err := cli.e.ClaimUserTask(context.Background(), cmd)
			return err
		},
	}

	c.Flags().Int64Var(&cmd.Id, "id", 0, "User task ID")

	c.MarkFlagRequired("id")

	return &c
}

func newUserTaskCompleteCmd(cli *Cli) *cobra.Command {
	var (
		variables map[string]string

		cmd engine.CompleteUserTaskCmd
	)

	c := cobra.Command{
		Use:   "complete",
		Short: "Complete a user task",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.UserId = cli.userId
			cmd.Variables = mapVariables(variables)

			return cli.e.CompleteUserTask(context.Background(), cmd)
		},
	}

	c.Flags().Int64Var(&cmd.Id, "id", 0, "User task ID")
	flagVariables(&c, &variables)

	c.MarkFlagRequired("id")

	return &c
}

func newUserTaskQueryCmd(cli *Cli) *cobra.Command {
	var (
		criteria engine.UserTaskCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query user tasks",
		RunE: func(c *cobra.Command, _ []string) error {
			q := cli.e.CreateQuery()
			q.SetOptions(options)

			results, err := q.QueryUserTasks(context.Background(), criteria)
			if err != nil {
				return err
			}

			table := newTable([]string{
				"ID",
				"PROCESS INSTANCE ID",
				"ACTIVITY ID",
				"NAME",
				"STATE",
				"ASSIGNEE",
				"CANDIDATE USERS",
				"CANDIDATE GROUPS",
				"CREATED AT",
			})

			for _, result := range results {
				table.addRow(
					formatId(result.Id),
					formatId(result.ProcessInstanceId),
					result.ActivityId,
					result.Name,
					result.State.String(),
					result.Assignee,
					strings.Join(result.CandidateUsers, ","),
					strings.Join(result.CandidateGroups, ","),
					formatTime(result.CreatedAt),
				)
			}

			c.Print(table.format())
			return nil
		},
	}

	c.Flags().Int64Var(&criteria.Id, "id", 0, "User task ID")
	c.Flags().StringVar(&criteria.Assignee, "assignee", "", "Assignee")
	c.Flags().StringVar(&criteria.CandidateGroup, "candidate-group", "", "Candidate group")
	c.Flags().StringVar(&criteria.CandidateUser, "candidate-user", "", "Candidate user")
	c.Flags().Int64Var(&criteria.ProcessInstanceId, "process-instance-id", 0, "Process instance ID")
	c.Flags().Var(newStateValue(&criteria.State, engine.MapUserTaskState, "userTaskState"), "state", "User task state")

	flagQueryOptions(&c, &options)

	return &c
}

func newUserTaskUnclaimCmd(cli *Cli) *cobra.Command {
	var cmd engine.UnclaimUserTaskCmd

	c := cobra.Command{
		Use:   "unclaim",
		Short: "Release a claimed user task",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.UserId = cli.userId

			_, err := cli.e.UnclaimUserTask(context.Background(), cmd)
			return err
		},
	}

	c.Flags().Int64Var(&cmd.Id, "id", 0, "User task ID")

	c.MarkFlagRequired("id")

	return &c
}
