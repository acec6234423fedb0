package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func newActivityInstanceCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "activity-instance",
		Short:       "Query activity instances",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newActivityInstanceQueryCmd(cli))

	return &c
}

func newActivityInstanceQueryCmd(cli *Cli) *cobra.Command {
	var (
		criteria engine.ActivityInstanceCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query activity instances",
		RunE: func(c *cobra.Command, _ []string) error {
			q := cli.e.CreateQuery()
			q.SetOptions(options)

			results, err := q.QueryActivityInstances(context.Background(), criteria)
			if err != nil {
				return err
			}

			table := newTable([]string{
				"ID",
				"PROCESS INSTANCE ID",
				"ACTIVITY ID",
				"TYPE",
				"FLOW ID",
				"STATE",
				"STARTED AT",
				"ENDED AT",
			})

			for _, result := range results {
				table.addRow(
					formatId(result.Id),
					formatId(result.ProcessInstanceId),
					result.ActivityId,
					result.ActivityType.String(),
					result.FlowId,
					result.State.String(),
					formatTime(result.StartedAt),
					formatTimeOrNil(result.EndedAt),
				)
			}

			c.Print(table.format())
			return nil
		},
	}

	c.Flags().Int64Var(&criteria.Id, "id", 0, "Activity instance ID")
	c.Flags().Int64Var(&criteria.ProcessInstanceId, "process-instance-id", 0, "Process instance ID")
	c.Flags().StringVar(&criteria.ActivityId, "activity-id", "", "ID of the node")
	c.Flags().Var(newStateValue(&criteria.State, engine.MapActivityState, "activityState"), "state", "Activity state")

	flagQueryOptions(&c, &options)

	return &c
}
