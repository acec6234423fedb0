package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func newIncidentCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "incident",
		Short:       "Resolve and query incidents",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newIncidentResolveCmd(cli))
	c.AddCommand(newIncidentQueryCmd(cli))

	return &c
}

func newIncidentResolveCmd(cli *Cli) *cobra.Command {
	var cmd engine.ResolveIncidentCmd

	c := cobra.Command{
		Use:   "resolve",
		Short: "Resolve an incident",
		RunE: func(c *cobra.Command, args []string) error {
			cmd.UserId = cli.userId

			return cli.e.ResolveIncident(context.Background(), cmd)
		},
	}

	c.Flags().Int64Var(&cmd.Id, "id", 0, "Incident ID")
	c.Flags().BoolVar(&cmd.Retry, "retry", false, "Execute the failed activity again")
	c.Flags().StringVar(&cmd.Notes, "notes", "", "Notes of the resolution")

	c.MarkFlagRequired("id")

	return &c
}

func newIncidentQueryCmd(cli *Cli) *cobra.Command {
	var (
		criteria engine.IncidentCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query incidents",
		RunE: func(c *cobra.Command, _ []string) error {
			q := cli.e.CreateQuery()
			q.SetOptions(options)

			results, err := q.QueryIncidents(context.Background(), criteria)
			if err != nil {
				return err
			}

			table := newTable([]string{
				"ID",
				"PROCESS INSTANCE ID",
				"ACTIVITY ID",
				"EXTERNAL TASK ID",
				"TYPE",
				"STATE",
				"MESSAGE",
				"CREATED AT",
				"RESOLVED AT",
				"RESOLVED BY",
			})

			for _, incident := range results {
				table.addRow(
					formatId(incident.Id),
					formatId(incident.ProcessInstanceId),
					incident.ActivityId,
					formatId(incident.ExternalTaskId),
					incident.Type.String(),
					incident.State.String(),
					incident.Message,
					formatTime(incident.CreatedAt),
					formatTimeOrNil(incident.ResolvedAt),
					incident.ResolvedBy,
				)
			}

			c.Print(table.format())
			return nil
		},
	}

	c.Flags().Int64Var(&criteria.Id, "id", 0, "Incident ID")
	c.Flags().Int64Var(&criteria.ProcessInstanceId, "process-instance-id", 0, "Process instance ID")
	c.Flags().Var(newStateValue(&criteria.State, engine.MapIncidentState, "incidentState"), "state", "Incident state")

	flagQueryOptions(&c, &options)

	return &c
}
