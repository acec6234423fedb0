package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/http/common"
)

func New(e engine.Engine, customizers ...func(*Options)) (*Server, error) {
	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	// server-wide context for incoming requests
	httpServerCtx, httpServerCancel := context.WithCancel(context.Background())

	server := Server{
		engine:           e,
		httpServerCtx:    httpServerCtx,
		httpServerCancel: httpServerCancel,
		logger:           options.Logger,
		options:          options,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(server.logRequest)

	// operations:start
	r.Post(common.PathActivityInstancesQuery, server.queryActivityInstances)

	r.Patch(common.PathExternalTasksComplete, server.completeExternalTask)
	r.Patch(common.PathExternalTasksFail, server.failExternalTask)
	r.Post(common.PathExternalTasksLock, server.lockExternalTasks)
	r.Post(common.PathExternalTasksQuery, server.queryExternalTasks)

	r.Post(common.PathIncidentsQuery, server.queryIncidents)
	r.Patch(common.PathIncidentsResolve, server.resolveIncident)

	r.Post(common.PathMessages, server.sendMessage)
	r.Post(common.PathMessagesQuery, server.queryMessages)

	r.Post(common.PathProcessDefinitions, server.deployProcess)
	r.Post(common.PathProcessDefinitionsQuery, server.queryProcessDefinitions)

	r.Post(common.PathProcessInstances, server.startProcess)
	r.Post(common.PathProcessInstancesQuery, server.queryProcessInstances)
	r.Patch(common.PathProcessInstancesResume, server.resumeProcessInstance)
	r.Patch(common.PathProcessInstancesSuspend, server.suspendProcessInstance)
	r.Patch(common.PathProcessInstancesTerminate, server.terminateProcessInstance)
	r.Get(common.PathProcessInstancesVariables, server.getProcessVariables)
	r.Put(common.PathProcessInstancesVariables, server.setProcessVariables)

	r.Post(common.PathSignals, server.broadcastSignal)
	r.Post(common.PathSignalsQuery, server.querySignals)

	r.Post(common.PathTimerJobsExecute, server.executeTimers)
	r.Post(common.PathTimerJobsQuery, server.queryTimerJobs)

	r.Patch(common.PathUserTasksClaim, server.claimUserTask)
	r.Patch(common.PathUserTasksComplete, server.completeUserTask)
	r.Post(common.PathUserTasksQuery, server.queryUserTasks)
	r.Patch(common.PathUserTasksUnclaim, server.unclaimUserTask)

	r.Get(common.PathReadiness, server.checkReadiness)
	r.Patch(common.PathTime, server.setTime)
	// operations:end

	httpServer := http.Server{
		Addr: options.BindAddress,
		BaseContext: func(_ net.Listener) context.Context {
			return httpServerCtx
		},
		Handler:      http.TimeoutHandler(r, options.HandlerTimeout, "handler timed out"),
		IdleTimeout:  options.IdleTimeout,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
	}

	if options.Configure != nil {
		options.Configure(&httpServer)
	}

	server.httpServer = &httpServer
	server.router = r

	return &server, nil
}

func NewOptions() Options {
	return Options{
		BindAddress: "127.0.0.1:8080",

		HandlerTimeout: 30 * time.Second,
		IdleTimeout:    60 * time.Second,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   35 * time.Second,

		ShutdownDelay:       5 * time.Second,
		ShutdownPeriod:      30 * time.Second,
		ShutdownForcePeriod: 5 * time.Second,

		Logger: hclog.Default().Named("http-server"),
	}
}

type Options struct {
	BindAddress string // TCP address for the server to listen on.

	HandlerTimeout time.Duration // Time limit for HTTP handler - when reached, the handler responds with HTTP 503.
	IdleTimeout    time.Duration // Maximum amount of time to wait for the next request, when keep-alives are enabled - see http.Server#IdleTimeout
	ReadTimeout    time.Duration // Maximum duration for reading the entire request - see http.Server#ReadTimeout
	WriteTimeout   time.Duration // Maximum duration before timing out writing the response - see http.Server#WriteTimeout

	ShutdownDelay       time.Duration // Delay between the shutdown signal and the actual shutdown, used to propagate readiness.
	ShutdownPeriod      time.Duration // Period for a graceful shutdown without interrupting ongoing requests.
	ShutdownForcePeriod time.Duration // Period for a forced shutdown, where ongoing requests are canceled.

	SetTimeEnabled bool // Determines if the set time operation is permitted.

	Logger hclog.Logger

	Configure func(*http.Server) // Optional function, used to configure the underlying HTTP server if needed.
}

func (o Options) Validate() error {
	if o.BindAddress == "" {
		return errors.New("bind address is empty")
	}
	if o.HandlerTimeout <= 0 {
		return errors.New("handler timeout must be greater than 0")
	}
	if o.ShutdownDelay < 0 || o.ShutdownPeriod < 0 || o.ShutdownForcePeriod < 0 {
		return errors.New("shutdown delay and periods must not be negative")
	}
	if o.Logger == nil {
		return errors.New("logger is nil")
	}
	return nil
}

type Server struct {
	engine           engine.Engine
	httpServer       *http.Server
	httpServerCtx    context.Context    // server-wide base context for incoming requests
	httpServerCancel context.CancelFunc // invoked after server shutdown to cancel ongoing requests
	isShuttingDown   atomic.Bool
	logger           hclog.Logger
	options          Options
	router           chi.Router
}

// Handler returns the router without the server's handler timeout.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe binds the TCP address and serves HTTP in a separate goroutine.
// It returns the listener's address, which differs from the bind address, if port 0 is used.
func (s *Server) ListenAndServe() (net.Addr, error) {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, err
	}

	s.logger.Info("server listening", "address", listener.Addr().String())
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("failed to serve HTTP", "err", err)
		}
	}()

	return listener.Addr(), nil
}

// Shutdown shuts the HTTP server down gracefully. The engine is not shut down.
func (s *Server) Shutdown() {
	s.isShuttingDown.Store(true)
	s.logger.Info("server is shutting down")

	time.Sleep(s.options.ShutdownDelay)
	s.logger.Info("server is shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.options.ShutdownPeriod)
	defer shutdownCancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.httpServerCancel()
	if err != nil {
		s.logger.Warn("failed to shutdown HTTP server", "err", err)
		time.Sleep(s.options.ShutdownForcePeriod)
	}

	s.logger.Info("server shut down")
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("request handled",
			"method", r.Method,
			"uri", r.RequestURI,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

// command handler

func (s *Server) broadcastSignal(w http.ResponseWriter, r *http.Request) {
	var cmd engine.BroadcastSignalCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	signal, err := s.engine.BroadcastSignal(r.Context(), cmd)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	s.encodeJSONResponseBody(w, r, signal, http.StatusCreated)
}

func (s *Server) claimUserTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.ClaimUserTaskCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.Id = id

	userTask, err := s.engine.ClaimUserTask(r.Context(), cmd)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	s.encodeJSONResponseBody(w, r, userTask, http.StatusOK)
}

func (s *Server) completeExternalTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.CompleteExternalTaskCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.Id = id

	externalTask, err := s.engine.CompleteExternalTask(r.Context(), cmd)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	s.encodeJSONResponseBody(w, r, externalTask, http.StatusOK)
}

func (s *Server) completeUserTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.CompleteUserTaskCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.Id = id

	if err := s.engine.CompleteUserTask(r.Context(), cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deployProcess(w http.ResponseWriter, r *http.Request) {
	var cmd engine.DeployProcessCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	processDefinition, err := s.engine.DeployProcess(r.Context(), cmd)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	s.encodeJSONResponseBody(w, r, processDefinition, http.StatusCreated)
}

func (s *Server) executeTimers(w http.ResponseWriter, r *http.Request) {
	var cmd engine.ExecuteTimersCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	completed, failed, err := s.engine.ExecuteTimers(r.Context(), cmd)
	if err != nil && completed == nil && failed == nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	if completed == nil {
		completed = make([]engine.TimerJob, 0)
	}
	if failed == nil {
		failed = make([]engine.TimerJob, 0)
	}

	resBody := common.ExecuteTimersRes{
		Locked:    len(completed) + len(failed),
		Completed: len(completed),
		Failed:    len(failed),

		CompletedTimerJobs: completed,
		FailedTimerJobs:    failed,
	}

	s.encodeJSONResponseBody(w, r, resBody, http.StatusOK)
}

func (s *Server) failExternalTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.FailExternalTaskCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.Id = id

	externalTask, err := s.engine.FailExternalTask(r.Context(), cmd)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	s.encodeJSONResponseBody(w, r, externalTask, http.StatusOK)
}

func (s *Server) getProcessVariables(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	variables, err := s.engine.GetProcessVariables(r.Context(), engine.GetProcessVariablesCmd{ProcessInstanceId: id})
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	if variables == nil {
		variables = make(map[string]any)
	}

	resBody := common.GetVariablesRes{
		Count:     len(variables),
		Variables: variables,
	}

	s.encodeJSONResponseBody(w, r, resBody, http.StatusOK)
}

func (s *Server) lockExternalTasks(w http.ResponseWriter, r *http.Request) {
	var cmd engine.LockExternalTasksCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	externalTasks, err := s.engine.LockExternalTasks(r.Context(), cmd)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	if externalTasks == nil {
		externalTasks = make([]engine.ExternalTask, 0)
	}

	resBody := common.LockExternalTasksRes{
		Count:         len(externalTasks),
		ExternalTasks: externalTasks,
	}

	s.encodeJSONResponseBody(w, r, resBody, http.StatusOK)
}

func (s *Server) resolveIncident(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.ResolveIncidentCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.Id = id

	if err := s.engine.ResolveIncident(r.Context(), cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resumeProcessInstance(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.ResumeProcessInstanceCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.Id = id

	if err := s.engine.ResumeProcessInstance(r.Context(), cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var cmd engine.SendMessageCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	message, err := s.engine.SendMessage(r.Context(), cmd)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	s.encodeJSONResponseBody(w, r, message, http.StatusCreated)
}

func (s *Server) setProcessVariables(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.SetProcessVariablesCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.ProcessInstanceId = id

	if err := s.engine.SetProcessVariables(r.Context(), cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setTime(w http.ResponseWriter, r *http.Request) {
	if !s.options.SetTimeEnabled {
		s.encodeJSONProblemResponseBody(w, r, engine.Error{
			Type:   engine.ErrorSecurity,
			Title:  "failed to set time",
			Detail: "set time operation is not enabled",
		})
		return
	}

	var cmd engine.SetTimeCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	if err := s.engine.SetTime(r.Context(), cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startProcess(w http.ResponseWriter, r *http.Request) {
	var cmd engine.StartProcessCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	processInstance, err := s.engine.StartProcess(r.Context(), cmd)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	s.encodeJSONResponseBody(w, r, processInstance, http.StatusCreated)
}

func (s *Server) suspendProcessInstance(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.SuspendProcessInstanceCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.Id = id

	if err := s.engine.SuspendProcessInstance(r.Context(), cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) terminateProcessInstance(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.TerminateProcessInstanceCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.Id = id

	if err := s.engine.TerminateProcessInstance(r.Context(), cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unclaimUserTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.UnclaimUserTaskCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.Id = id

	userTask, err := s.engine.UnclaimUserTask(r.Context(), cmd)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	s.encodeJSONResponseBody(w, r, userTask, http.StatusOK)
}

// query handler

func (s *Server) queryActivityInstances(w http.ResponseWriter, r *http.Request) {
	var criteria engine.ActivityInstanceCriteria
	handleQuery(s, w, r, &criteria, func(ctx context.Context, q engine.Query) ([]engine.ActivityInstance, error) {
		return q.QueryActivityInstances(ctx, criteria)
	})
}

func (s *Server) queryExternalTasks(w http.ResponseWriter, r *http.Request) {
	var criteria engine.ExternalTaskCriteria
	handleQuery(s, w, r, &criteria, func(ctx context.Context, q engine.Query) ([]engine.ExternalTask, error) {
		return q.QueryExternalTasks(ctx, criteria)
	})
}

func (s *Server) queryIncidents(w http.ResponseWriter, r *http.Request) {
	var criteria engine.IncidentCriteria
	handleQuery(s, w, r, &criteria, func(ctx context.Context, q engine.Query) ([]engine.Incident, error) {
		return q.QueryIncidents(ctx, criteria)
	})
}

func (s *Server) queryMessages(w http.ResponseWriter, r *http.Request) {
	var criteria engine.MessageCriteria
	handleQuery(s, w, r, &criteria, func(ctx context.Context, q engine.Query) ([]engine.MessageEvent, error) {
		return q.QueryMessages(ctx, criteria)
	})
}

func (s *Server) queryProcessDefinitions(w http.ResponseWriter, r *http.Request) {
	var criteria engine.ProcessDefinitionCriteria
	handleQuery(s, w, r, &criteria, func(ctx context.Context, q engine.Query) ([]engine.ProcessDefinition, error) {
		return q.QueryProcessDefinitions(ctx, criteria)
	})
}

func (s *Server) queryProcessInstances(w http.ResponseWriter, r *http.Request) {
	var criteria engine.ProcessInstanceCriteria
	handleQuery(s, w, r, &criteria, func(ctx context.Context, q engine.Query) ([]engine.ProcessInstance, error) {
		return q.QueryProcessInstances(ctx, criteria)
	})
}

func (s *Server) querySignals(w http.ResponseWriter, r *http.Request) {
	var criteria engine.SignalCriteria
	handleQuery(s, w, r, &criteria, func(ctx context.Context, q engine.Query) ([]engine.SignalEvent, error) {
		return q.QuerySignals(ctx, criteria)
	})
}

func (s *Server) queryTimerJobs(w http.ResponseWriter, r *http.Request) {
	var criteria engine.TimerJobCriteria
	handleQuery(s, w, r, &criteria, func(ctx context.Context, q engine.Query) ([]engine.TimerJob, error) {
		return q.QueryTimerJobs(ctx, criteria)
	})
}

func (s *Server) queryUserTasks(w http.ResponseWriter, r *http.Request) {
	var criteria engine.UserTaskCriteria
	handleQuery(s, w, r, &criteria, func(ctx context.Context, q engine.Query) ([]engine.UserTask, error) {
		return q.QueryUserTasks(ctx, criteria)
	})
}

// handleQuery decodes the criteria and query options, performs the query and encodes the results.
func handleQuery[T any](s *Server, w http.ResponseWriter, r *http.Request, criteria any, query func(context.Context, engine.Query) ([]T, error)) {
	options, err := parseQueryOptions(r)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	if err := decodeJSONRequestBody(w, r, criteria); err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	q := s.engine.CreateQuery()
	q.SetOptions(options)

	results, err := query(r.Context(), q)
	if err != nil {
		s.encodeJSONProblemResponseBody(w, r, err)
		return
	}

	s.encodeJSONResponseBody(w, r, common.NewQueryRes(results), http.StatusOK)
}

// other

func (s *Server) checkReadiness(w http.ResponseWriter, _ *http.Request) {
	if s.isShuttingDown.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}
