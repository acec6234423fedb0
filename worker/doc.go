// Package worker executes external service tasks.
/*
A worker locks the external tasks of registered topics, calls the topic's handler and completes or fails each task.
The engine can be an embedded engine (pg, or mem for testing) or a remote engine (HTTP client).

Create a Worker

	w, err := worker.New(e, func(o *worker.Options) {
		o.WorkerId = "label-printer"
		o.OnTaskExecutionFailure = func(task engine.ExternalTask, err error) {
			log.Printf("failed to execute task %s: %v", task, err)
		}
	})
	if err != nil {
		log.Fatalf("failed to create worker: %v", err)
	}

Register a Handler

A handler reads the variable snapshot of a task and sets variables, which are merged into the process instance.
If a handler returns an error, the task is failed and an incident is created.

	err := w.Register("print-label", func(tc worker.TaskContext) error {
		var weight float64
		if err := tc.Variable("weight", &weight); err != nil {
			return err
		}

		tc.SetVariable("labelPrinted", true)
		return nil
	})

Run a Worker

	w.Start()

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)

	<-signalC

	w.Stop()
*/
package worker
