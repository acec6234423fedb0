// Package client is used to interact with an engine via HTTP.
/*
client provides a full implementation of the [engine.Engine] interface.
Problem details, returned by the server, are converted back into an [engine.Error].

Create a Client

	client, err := client.New("http://localhost:8080", func(o *client.Options) {
		o.Timeout = 10 * time.Second
	})
	if err != nil {
		log.Fatalf("failed to create HTTP client: %v", err)
	}

	defer client.Shutdown()
*/
package client
