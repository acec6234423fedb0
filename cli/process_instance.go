package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func newProcessInstanceCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "process-instance",
		Short:       "Manage and query process instances",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newProcessInstanceGetVariablesCmd(cli))
	c.AddCommand(newProcessInstanceQueryCmd(cli))
	c.AddCommand(newProcessInstanceResumeCmd(cli))
	c.AddCommand(newProcessInstanceSetVariablesCmd(cli))
	c.AddCommand(newProcessInstanceSuspendCmd(cli))
	c.AddCommand(newProcessInstanceTerminateCmd(cli))

	return &c
}

func newProcessInstanceGetVariablesCmd(cli *Cli) *cobra.Command {
	var cmd engine.GetProcessVariablesCmd

	c := cobra.Command{
		Use:   "get-variables",
		Short: "Get the variables of a process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			variables, err := cli.e.GetProcessVariables(context.Background(), cmd)
			if err != nil {
				return err
			}

			s, err := formatVariables(variables)
			if err != nil {
				return err
			}

			c.Print(s)
			return nil
		},
	}

	c.Flags().Int64Var(&cmd.ProcessInstanceId, "id", 0, "Process instance ID")

	c.MarkFlagRequired("id")

	return &c
}

func newProcessInstanceQueryCmd(cli *Cli) *cobra.Command {
	var (
		criteria engine.ProcessInstanceCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query process instances",
		RunE: func(c *cobra.Command, _ []string) error {
			q := cli.e.CreateQuery()
			q.SetOptions(options)

			results, err := q.QueryProcessInstances(context.Background(), criteria)
			if err != nil {
				return err
			}

			table := newTable([]string{
				"ID",
				"DEFINITION KEY",
				"VERSION",
				"BUSINESS KEY",
				"TENANT ID",
				"STATE",
				"STARTED AT",
				"ENDED AT",
				"CREATED BY",
			})

			for _, result := range results {
				table.addRow(
					formatId(result.Id),
					result.DefinitionKey,
					strconv.Itoa(result.DefinitionVersion),
					result.BusinessKey,
					result.TenantId,
					result.State.String(),
					formatTime(result.StartedAt),
					formatTimeOrNil(result.EndedAt),
					result.CreatedBy,
				)
			}

			c.Print(table.format())
			return nil
		},
	}

	c.Flags().Int64Var(&criteria.Id, "id", 0, "Process instance ID")
	c.Flags().StringVar(&criteria.BusinessKey, "business-key", "", "Business key")
	c.Flags().StringVar(&criteria.DefinitionKey, "key", "", "Process definition key")
	c.Flags().Int64Var(&criteria.ProcessDefinitionId, "process-definition-id", 0, "Process definition ID")
	c.Flags().Var(newStateValue(&criteria.State, engine.MapInstanceState, "instanceState"), "state", "Process instance state")
	c.Flags().StringVar(&criteria.TenantId, "tenant-id", "", "Tenant ID")

	flagQueryOptions(&c, &options)

	return &c
}

func newProcessInstanceResumeCmd(cli *Cli) *cobra.Command {
	var cmd engine.ResumeProcessInstanceCmd

	c := cobra.Command{
		Use:   "resume",
		Short: "Resume a suspended process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.UserId = cli.userId
			return cli.e.ResumeProcessInstance(context.Background(), cmd)
		},
	}

	c.Flags().Int64Var(&cmd.Id, "id", 0, "Process instance ID")

	c.MarkFlagRequired("id")

	return &c
}

func newProcessInstanceSetVariablesCmd(cli *Cli) *cobra.Command {
	var (
		variables map[string]string

		cmd engine.SetProcessVariablesCmd
	)

	c := cobra.Command{
		Use:   "set-variables",
		Short: "Set or delete variables of a process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.UserId = cli.userId
			cmd.Variables = mapVariables(variables)
			return cli.e.SetProcessVariables(context.Background(), cmd)
		},
	}

	c.Flags().Int64Var(&cmd.ProcessInstanceId, "id", 0, "Process instance ID")
	flagVariables(&c, &variables)

	c.MarkFlagRequired("id")
	c.MarkFlagRequired("variable")

	return &c
}

func newProcessInstanceSuspendCmd(cli *Cli) *cobra.Command {
	var cmd engine.SuspendProcessInstanceCmd

	c := cobra.Command{
		Use:   "suspend",
		Short: "Suspend an active process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.UserId = cli.userId
			return cli.e.SuspendProcessInstance(context.Background(), cmd)
		},
	}

	c.Flags().Int64Var(&cmd.Id, "id", 0, "Process instance ID")

	c.MarkFlagRequired("id")

	return &c
}

func newProcessInstanceTerminateCmd(cli *Cli) *cobra.Command {
	var cmd engine.TerminateProcessInstanceCmd

	c := cobra.Command{
		Use:   "terminate",
		Short: "Terminate a process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.UserId = cli.userId
			return cli.e.TerminateProcessInstance(context.Background(), cmd)
		},
	}

	c.Flags().Int64Var(&cmd.Id, "id", 0, "Process instance ID")
	c.Flags().StringVar(&cmd.Reason, "reason", "", "Reason of the termination")

	c.MarkFlagRequired("id")

	return &c
}
