package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func newEventCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "event",
		Short:       "Send and query messages and signals",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newEventBroadcastSignalCmd(cli))
	c.AddCommand(newEventQueryMessagesCmd(cli))
	c.AddCommand(newEventQuerySignalsCmd(cli))
	c.AddCommand(newEventSendMessageCmd(cli))

	return &c
}

func newEventBroadcastSignalCmd(cli *Cli) *cobra.Command {
	var (
		variables map[string]string

		cmd engine.BroadcastSignalCmd
	)

	c := cobra.Command{
		Use:   "broadcast-signal",
		Short: "Broadcast a signal to all subscribers",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.CreatedBy = cli.userId
			cmd.Variables = mapVariables(variables)

			signal, err := cli.e.BroadcastSignal(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(signal.SubscriberCount)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.Name, "name", "", "Signal name")
	flagVariables(&c, &variables)

	c.MarkFlagRequired("name")

	return &c
}

func newEventQueryMessagesCmd(cli *Cli) *cobra.Command {
	var (
		criteria engine.MessageCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query-messages",
		Short: "Query sent messages",
		RunE: func(c *cobra.Command, _ []string) error {
			q := cli.e.CreateQuery()
			q.SetOptions(options)

			results, err := q.QueryMessages(context.Background(), criteria)
			if err != nil {
				return err
			}

			table := newTable([]string{
				"ID",
				"NAME",
				"CORRELATION KEY",
				"UNIQUE KEY",
				"STATE",
				"DELIVERY COUNT",
				"CREATED AT",
				"CREATED BY",
			})

			for _, result := range results {
				table.addRow(
					formatId(result.Id),
					result.Name,
					result.CorrelationKey,
					result.UniqueKey,
					result.State.String(),
					strconv.Itoa(result.DeliveryCount),
					formatTime(result.CreatedAt),
					result.CreatedBy,
				)
			}

			c.Print(table.format())
			return nil
		},
	}

	c.Flags().Int64Var(&criteria.Id, "id", 0, "Message ID")
	c.Flags().StringVar(&criteria.Name, "name", "", "Message name")

	flagQueryOptions(&c, &options)

	return &c
}

func newEventQuerySignalsCmd(cli *Cli) *cobra.Command {
	var (
		criteria engine.SignalCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query-signals",
		Short: "Query broadcasted signals",
		RunE: func(c *cobra.Command, _ []string) error {
			q := cli.e.CreateQuery()
			q.SetOptions(options)

			results, err := q.QuerySignals(context.Background(), criteria)
			if err != nil {
				return err
			}

			table := newTable([]string{
				"ID",
				"NAME",
				"STATE",
				"SUBSCRIBER COUNT",
				"CREATED AT",
				"CREATED BY",
			})

			for _, result := range results {
				table.addRow(
					formatId(result.Id),
					result.Name,
					result.State.String(),
					strconv.Itoa(result.SubscriberCount),
					formatTime(result.CreatedAt),
					result.CreatedBy,
				)
			}

			c.Print(table.format())
			return nil
		},
	}

	c.Flags().Int64Var(&criteria.Id, "id", 0, "Signal ID")
	c.Flags().StringVar(&criteria.Name, "name", "", "Signal name")

	flagQueryOptions(&c, &options)

	return &c
}

func newEventSendMessageCmd(cli *Cli) *cobra.Command {
	var (
		variables map[string]string

		cmd engine.SendMessageCmd
	)

	c := cobra.Command{
		Use:   "send-message",
		Short: "Send a message to a subscriber",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.CreatedBy = cli.userId
			cmd.Variables = mapVariables(variables)

			message, err := cli.e.SendMessage(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(message.DeliveryCount)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.Name, "name", "", "Message name")
	c.Flags().StringVar(&cmd.CorrelationKey, "correlation-key", "", "Key, used to select the subscriber")
	c.Flags().StringVar(&cmd.UniqueKey, "unique-key", "", "Key that uniquely identifies the message")
	flagVariables(&c, &variables)

	c.MarkFlagRequired("name")

	return &c
}
