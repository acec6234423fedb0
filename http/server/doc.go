// Package server implements the engine's HTTP API.
/*
server implements handlers for each engine command and query, using a chi router.
Errors are written as problem details (RFC 9457).

Run a Server

A server requires an engine. By default, it is listening on "127.0.0.1:8080".
The TCP bind address as well as various timeouts can be configured by customizing the options.

	server, err := server.New(e, func(o *server.Options) {
		o.BindAddress = "0.0.0.0:8080"
	})
	if err != nil {
		log.Fatalf("failed to create HTTP server: %v", err)
	}

	if _, err := server.ListenAndServe(); err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)

	<-signalC

	server.Shutdown()
	e.Shutdown()
*/
package server
