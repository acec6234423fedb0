package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/http/client"
	"github.com/zensgit/metasheet2-sub006/http/common"
)

const (
	envLookupAllowed = "envLookupAllowed" // flag level annotation that allows an environment variable lookup
	envPrefix        = "WORKFLOW_"
	noEngineRequired = "noEngineRequired" // annotation, indicating that no engine is required to run the command
	program          = "workflowctl"
)

func New(version string) *Cli {
	cli := Cli{version: version}

	cli.rootCmd = newRootCmd(&cli)

	return &cli
}

type Cli struct {
	version string

	rootCmd *cobra.Command

	e            engine.Engine
	debugEnabled bool
	userId       string
	workerId     string
}

func (c *Cli) Execute() int {
	if err := c.rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func (c *Cli) help(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

func newRootCmd(cli *Cli) *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)

	c := cobra.Command{
		Use:   program,
		Short: "A client for workflow engine HTTP servers",
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			c.SilenceUsage = true

			c.Flags().VisitAll(func(f *pflag.Flag) {
				if f.Changed {
					return
				}
				if _, ok := f.Annotations[envLookupAllowed]; !ok {
					return
				}

				// e.g. user-id -> WORKFLOW_USER_ID
				key := envPrefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")

				if value, ok := os.LookupEnv(key); ok {
					f.Value.Set(value)
				}
			})

			if _, ok := c.Annotations[noEngineRequired]; ok {
				return nil
			}

			if cli.e != nil {
				return nil // skip client creation when testing
			}

			e, err := client.New(url, func(o *client.Options) {
				o.Timeout = timeout

				if cli.debugEnabled {
					o.OnRequest = debugRequest
					o.OnResponse = debugResponse
				}
			})
			if err != nil {
				return fmt.Errorf("failed to create HTTP client: %v", err)
			}

			cli.e = e
			return nil
		},
		RunE: cli.help,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cli.e != nil {
				cli.e.Shutdown()
			}
		},
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.PersistentFlags().StringVar(&url, "url", "http://127.0.0.1:8080", "HTTP server URL")
	c.PersistentFlags().StringVar(&cli.userId, "user-id", program, "ID of the user, written to the audit fields")
	c.PersistentFlags().StringVar(&cli.workerId, "worker-id", program, "Worker ID, used to lock, complete and fail external tasks")
	c.PersistentFlags().DurationVar(&timeout, "timeout", 40*time.Second, "Time limit for requests made by the HTTP client")
	c.PersistentFlags().BoolVar(&cli.debugEnabled, "debug", false, "Log HTTP requests and responses")

	c.PersistentFlags().SetAnnotation("url", envLookupAllowed, nil)
	c.PersistentFlags().SetAnnotation("user-id", envLookupAllowed, nil)
	c.PersistentFlags().SetAnnotation("worker-id", envLookupAllowed, nil)
	c.PersistentFlags().SetAnnotation("timeout", envLookupAllowed, nil)
	c.PersistentFlags().SetAnnotation("debug", envLookupAllowed, nil)

	c.AddCommand(newActivityInstanceCmd(cli))
	c.AddCommand(newEventCmd(cli))
	c.AddCommand(newExternalTaskCmd(cli))
	c.AddCommand(newIncidentCmd(cli))
	c.AddCommand(newProcessCmd(cli))
	c.AddCommand(newProcessInstanceCmd(cli))
	c.AddCommand(newTimerCmd(cli))
	c.AddCommand(newUserTaskCmd(cli))
	c.AddCommand(newSetTimeCmd(cli))
	c.AddCommand(newVersionCmd(cli))

	return &c
}

func newSetTimeCmd(cli *Cli) *cobra.Command {
	var timeV timeValue

	c := cobra.Command{
		Use:   "set-time",
		Short: "Set the engine's time",
		RunE: func(c *cobra.Command, _ []string) error {
			return cli.e.SetTime(context.Background(), engine.SetTimeCmd{Time: time.Time(timeV)})
		},
	}

	c.Flags().Var(&timeV, "time", "A future point in time")

	c.MarkFlagRequired("time")

	return &c
}

func newVersionCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(c *cobra.Command, _ []string) {
			c.Println(cli.version)
		},
		Annotations: map[string]string{noEngineRequired: ""},
	}

	return &c
}

func debugRequest(req *http.Request) error {
	log.Printf("%s %s", req.Method, req.URL)

	if req.Body == nil {
		return nil
	}

	b, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	req.Body = io.NopCloser(bytes.NewReader(b)) // make body readable again

	log.Printf("request body:\n%s", indentJSON(b))
	return nil
}

func debugResponse(res *http.Response) error {
	log.Printf("status code: %d", res.StatusCode)

	log.Println("response headers:")
	for name, values := range res.Header {
		log.Printf("%s: %s", name, strings.Join(values, ", "))
	}

	b, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		log.Printf("failed to read response body: %v", err)
		return err
	}

	res.Body = io.NopCloser(bytes.NewReader(b)) // make body readable again

	if len(b) == 0 {
		return nil
	}

	contentType := res.Header.Get(common.HeaderContentType)
	if contentType == common.ContentTypeJson || contentType == common.ContentTypeProblemJson {
		log.Printf("response body:\n%s", indentJSON(b))
	} else {
		log.Printf("response body:\n%s", string(b))
	}
	return nil
}

func indentJSON(b []byte) string {
	buf := &bytes.Buffer{}
	if err := json.Indent(buf, b, "", "  "); err != nil {
		return string(b)
	}
	return buf.String()
}
