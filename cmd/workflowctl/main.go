/*
workflowctl is a CLI for interacting with a workflow engine via HTTP.

Usage:

	workflowctl [flags]
	workflowctl [command]

Available Commands:

	activity-instance Query activity instances
	completion        Generate the autocompletion script for the specified shell
	event             Send and query messages and signals
	external-task     Lock, complete, fail and query external tasks
	help              Help about any command
	incident          Resolve and query incidents
	process           Deploy, start and query processes
	process-instance  Manage and query process instances
	set-time          Set the engine's time
	timer             Execute and query timer jobs
	user-task         Claim, complete and query user tasks
	version           Show version

Flags:

	    --debug              Log HTTP requests and responses
	-h, --help               help for workflowctl
	    --timeout duration   Time limit for requests made by the HTTP client (default 40s)
	    --url string         HTTP server URL (default "http://127.0.0.1:8080")
	    --user-id string     ID of the user, written to the audit fields (default "workflowctl")
	    --worker-id string   Worker ID, used to lock, complete and fail external tasks (default "workflowctl")

Each flag can also be set via an environment variable - e.g. WORKFLOW_URL for --url.

Use "workflowctl [command] --help" for more information about a command.
*/
package main

import (
	"os"

	"github.com/zensgit/metasheet2-sub006/cli"
)

var (
	version = "unknown-version"
)

func main() {
	cli := cli.New(version)
	os.Exit(cli.Execute())
}
