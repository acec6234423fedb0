package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func newProcessCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "process",
		Short:       "Deploy, start and query processes",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newProcessDeployCmd(cli))
	c.AddCommand(newProcessQueryCmd(cli))
	c.AddCommand(newProcessStartCmd(cli))

	return &c
}

func newProcessDeployCmd(cli *Cli) *cobra.Command {
	var (
		fileName string

		cmd engine.DeployProcessCmd
	)

	c := cobra.Command{
		Use:   "deploy",
		Short: "Deploy a process definition",
		RunE: func(c *cobra.Command, _ []string) error {
			b, err := os.ReadFile(fileName)
			if err != nil {
				return fmt.Errorf("failed to read file %s: %v", fileName, err)
			}

			cmd.Source = string(b)
			cmd.CreatedBy = cli.userId

			processDefinition, err := cli.e.DeployProcess(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(processDefinition.Id)
			return nil
		},
	}

	c.Flags().StringVar(&fileName, "file", "", "Path to a BPMN XML file or a graph document (JSON or YAML)")
	c.Flags().StringVar(&cmd.Name, "name", "", "Name, which overrides the name of the process element")
	c.Flags().StringVar(&cmd.TenantId, "tenant-id", "", "Tenant ID")

	c.MarkFlagRequired("file")
	c.MarkFlagFilename("file", ".bpmn", ".xml", ".json", ".yaml", ".yml")

	return &c
}

func newProcessQueryCmd(cli *Cli) *cobra.Command {
	var (
		criteria engine.ProcessDefinitionCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query process definitions",
		RunE: func(c *cobra.Command, _ []string) error {
			q := cli.e.CreateQuery()
			q.SetOptions(options)

			results, err := q.QueryProcessDefinitions(context.Background(), criteria)
			if err != nil {
				return err
			}

			table := newTable([]string{
				"ID",
				"KEY",
				"VERSION",
				"NAME",
				"TENANT ID",
				"CREATED AT",
				"CREATED BY",
			})

			for _, result := range results {
				table.addRow(
					formatId(result.Id),
					result.Key,
					strconv.Itoa(result.Version),
					result.Name,
					result.TenantId,
					formatTime(result.CreatedAt),
					result.CreatedBy,
				)
			}

			c.Print(table.format())
			return nil
		},
	}

	c.Flags().Int64Var(&criteria.Id, "id", 0, "Process definition ID")
	c.Flags().StringVar(&criteria.Key, "key", "", "Process definition key")
	c.Flags().StringVar(&criteria.TenantId, "tenant-id", "", "Tenant ID")

	flagQueryOptions(&c, &options)

	return &c
}

func newProcessStartCmd(cli *Cli) *cobra.Command {
	var (
		variables map[string]string

		cmd engine.StartProcessCmd
	)

	c := cobra.Command{
		Use:   "start",
		Short: "Start a process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.CreatedBy = cli.userId
			cmd.Variables = mapVariables(variables)

			processInstance, err := cli.e.StartProcess(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(processInstance.Id)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.DefinitionKey, "key", "", "Process definition key")
	c.Flags().IntVar(&cmd.Version, "version", 0, "Process definition version - if 0, the latest version is started")
	c.Flags().StringVar(&cmd.BusinessKey, "business-key", "", "Key, used to correlate the process instance with a business entity")
	c.Flags().StringVar(&cmd.TenantId, "tenant-id", "", "Tenant ID")
	flagVariables(&c, &variables)

	c.MarkFlagRequired("key")

	return &c
}
