// Package server is gatewayd's composition root: it wires the
// authorization pipeline, prompt-guard mediator, MCP coordinator, flow
// tracker/broadcaster, cost accounting, and BYO-LLM adapter into the
// internal/chat.Engine, then exposes that single engine behind two client
// transports (WebSocket, SSE-over-HTTP) plus the admin observer/monitoring
// surface, following the same ctx/cancel/wg/mu/running lifecycle and
// net/http.ServeMux registration style used throughout this codebase's
// predecessor.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/kubilitics/gatewayd/internal/cache"
	"github.com/kubilitics/gatewayd/internal/chat"
	"github.com/kubilitics/gatewayd/internal/config"
	"github.com/kubilitics/gatewayd/internal/cost"
	"github.com/kubilitics/gatewayd/internal/db"
	"github.com/kubilitics/gatewayd/internal/flow"
	"github.com/kubilitics/gatewayd/internal/grpcadmin"
	"github.com/kubilitics/gatewayd/internal/llm/adapter"
	"github.com/kubilitics/gatewayd/internal/llm/budget"
	"github.com/kubilitics/gatewayd/internal/mcp"
	"github.com/kubilitics/gatewayd/internal/mcp/breaker"
	"github.com/kubilitics/gatewayd/internal/promptguard"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server is gatewayd's process composition root: one engine shared by
// every transport, plus the admin/monitoring surface and the background
// MCP health-probe loop.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	store       db.Store
	coordinator *mcp.Coordinator
	monitoring  *flow.MonitoringSet
	broadcaster *flow.Broadcaster
	tracker     *flow.Tracker
	mediator    *promptguard.Mediator
	guard       *promptguard.Guard
	budget      budget.BudgetTracker
	baseLLM     adapter.LLMAdapter
	engine      *chat.Engine
	costCalc    *cost.SessionCostCalculator

	httpServer *http.Server
	grpcServer *grpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// NewServer builds a Server from a fully loaded and validated
// configuration: the durable store, MCP coordinator, prompt-guard
// mediator, flow tracker/broadcaster, BYO-LLM adapter and the chat engine
// that composes them.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := srv.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return srv, nil
}

// initializeComponents wires every collaborator package into the engine,
// in the dependency order each constructor needs: store, then the
// flow/prompt-guard/mcp layers that the authz pipeline and engine both
// depend on, then the engine itself.
func (s *Server) initializeComponents() error {
	store, err := db.NewSQLiteStore(s.cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open sqlite store: %w", err)
	}
	s.store = store

	s.monitoring = flow.NewMonitoringSet()
	s.broadcaster = flow.NewBroadcaster(s.logger)
	flowStore := chat.NewFlowStore(store, nil)
	s.tracker = flow.NewTracker(flowStore, s.broadcaster, s.monitoring, s.logger)

	resultCache := cache.New(s.cfg.Cache.MaxEntries, time.Duration(s.cfg.Cache.TTLSeconds)*time.Second)
	breakerCfg := breaker.Config{
		FailureThreshold: s.cfg.Breaker.FailureThreshold,
		Cooldown:         time.Duration(s.cfg.Breaker.CooldownSeconds) * time.Second,
	}
	s.coordinator = mcp.New(resultCache, breakerCfg, s.logger,
		mcp.WithProbeInterval(time.Duration(s.cfg.Coordinator.HealthIntervalSeconds)*time.Second))
	for _, ep := range s.cfg.Coordinator.MCPs {
		s.coordinator.Register(mcp.Descriptor{ID: ep.ID, Name: ep.Name, BaseURL: ep.BaseURL})
	}

	scorer := promptguard.NewHTTPScorerClient(s.cfg.PromptGuard.ScorerBaseURL, nil)
	s.mediator = promptguard.NewMediator(scorer, time.Duration(s.cfg.PromptGuard.TimeoutMS)*time.Millisecond, s.logger)
	policy := promptguard.Policy{
		Window:  promptguard.Window(s.cfg.PromptGuard.Behavior.Window),
		WarnAt:  s.cfg.PromptGuard.Behavior.WarnAt,
		BlockAt: s.cfg.PromptGuard.Behavior.BlockAt,
	}
	s.guard = promptguard.NewGuard(s.mediator, policy, store, s.cfg.PromptGuard.BypassRoles, s.logger)

	s.budget = budget.NewBudgetTracker(store)

	llmAdapter, err := adapter.NewLLMAdapter(&adapter.Config{
		Provider: adapter.ProviderType(s.cfg.LLM.Provider),
		APIKey:   s.cfg.LLM.APIKey,
		BaseURL:  s.cfg.LLM.BaseURL,
		Model:    s.cfg.LLM.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize LLM adapter: %w", err)
	}
	s.baseLLM = llmAdapter

	perms := chat.NewRolePermissionProvider(chat.DefaultRolePermissions(), func() []string {
		out := make([]string, 0)
		for id := range s.coordinator.ListTools(context.Background()) {
			out = append(out, id)
		}
		return out
	})

	costCalc := cost.NewDefaultSessionCostCalculator()
	s.costCalc = costCalc
	engineCfg := chat.EngineConfig{
		MaxTurns:              s.cfg.LLM.ToolIterationCap,
		ParallelTools:         false,
		DefaultDailyBudgetUSD: s.cfg.LLM.DefaultDailyBudgetUSD,
	}
	s.engine = chat.NewEngine(store, s.tracker, s.guard, s.coordinator, perms, costCalc, engineCfg, s.logger)

	return nil
}

// llmAdapterFor returns the per-session budgeted adapter the engine should
// use: every session gets its own decorator instance so token recording
// attributes correctly to (userID, sessionID).
func (s *Server) llmAdapterFor(userID, sessionID string) adapter.LLMAdapter {
	return adapter.NewBudgetedAdapter(s.baseLLM, s.budget, userID, sessionID, s.cfg.LLM.Provider)
}

// Start brings up the HTTP listener (and the gRPC admin listener, if
// enabled) plus the MCP coordinator's background health-probe loop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.coordinator.StartHealthProbes(s.ctx)

	router := mux.NewRouter()
	s.registerHandlers(router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses (SSE, WS) must not be write-deadlined
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("starting http server", zap.Int("port", s.cfg.Server.Port))
		var err error
		if s.cfg.Server.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.cfg.Server.TLSCertPath, s.cfg.Server.TLSKeyPath)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	if s.cfg.GRPCAdmin.Enabled {
		if err := s.startGRPCAdmin(); err != nil {
			return fmt.Errorf("failed to start grpc admin server: %w", err)
		}
	}

	s.logger.Info("gatewayd started",
		zap.String("llm_provider", s.cfg.LLM.Provider),
		zap.Bool("prompt_guard_enabled", s.cfg.PromptGuard.Enabled),
		zap.Int("registered_mcps", len(s.cfg.Coordinator.MCPs)),
	)
	return nil
}

func (s *Server) startGRPCAdmin() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.GRPCAdmin.Port))
	if err != nil {
		return err
	}
	s.grpcServer = grpc.NewServer()
	grpcadmin.Register(s.grpcServer, grpcadmin.NewAdminService(s.monitoring, s.tracker, s.logger))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("starting grpc admin server", zap.Int("port", s.cfg.GRPCAdmin.Port))
		if err := s.grpcServer.Serve(lis); err != nil {
			s.logger.Error("grpc admin server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down every listener and the MCP health-probe loop.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping gatewayd")

	s.coordinator.Stop()
	s.mediator.Stop()

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error shutting down http server", zap.Error(err))
		}
	}
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}

	s.cancel()
	s.wg.Wait()

	if s.store != nil {
		_ = s.store.Close()
	}

	s.logger.Info("gatewayd stopped")
	return nil
}

// Wait blocks until the server's lifecycle context is cancelled.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// registerHandlers wires every route this composition root exposes:
// health/ready/info, the two chat transports, and the admin/monitoring
// surface.
func (s *Server) registerHandlers(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	r.HandleFunc("/ws/chat", s.handleWebSocket)
	r.HandleFunc("/ask/stream", s.handleAskStream).Methods(http.MethodPost)

	r.HandleFunc("/admin/observe", s.handleAdminObserve)

	r.HandleFunc("/monitoring/enable/{user}", s.handleMonitoringEnable).Methods(http.MethodPost)
	r.HandleFunc("/monitoring/disable/{user}", s.handleMonitoringDisable).Methods(http.MethodPost)
	r.HandleFunc("/monitoring/list", s.handleMonitoringList).Methods(http.MethodGet)
	r.HandleFunc("/monitoring/flows/session/{session}", s.handleMonitoringFlowsBySession).Methods(http.MethodGet)
	r.HandleFunc("/monitoring/flows/{user}", s.handleMonitoringFlowsByUser).Methods(http.MethodGet)
}
