// Command glove runs the human-in-the-loop authorization shell: agents
// propose actions, policy decides, and high-risk actions wait on a human PIN.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vrtxceo/glove/cmd/glove/internal/handlers"
	"github.com/vrtxceo/glove/cmd/glove/internal/middleware"
	"github.com/vrtxceo/glove/internal/approval"
	"github.com/vrtxceo/glove/internal/config"
	"github.com/vrtxceo/glove/internal/extension"
	"github.com/vrtxceo/glove/internal/notify"
	"github.com/vrtxceo/glove/internal/policy"
	"github.com/vrtxceo/glove/internal/security"
	"github.com/vrtxceo/glove/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	settings := config.Load()

	st, err := store.Open(settings.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer st.Close()

	agentKey := readOrCreateKey(st, "agent_key", settings.AgentKey, logger)
	adminKey := readOrCreateKey(st, "admin_key", settings.AdminKey, logger)

	policyEngine, err := policy.Load(settings.PolicyPath, logger)
	if err != nil {
		logger.Fatal("Failed to load policy", zap.Error(err))
	}

	notifier := notify.New(settings, logger)
	installer := extension.NewInstaller(
		settings.ClawhubExtensionsDir,
		settings.RequireExtensionSignatures,
		settings.ClawhubTrustStorePath,
		logger,
	)
	service := approval.NewService(st, policyEngine, notifier, settings, logger)

	// Handlers
	healthHandler := handlers.NewHealthHandler(service, settings, agentKey, adminKey, logger)
	agentHandler := handlers.NewAgentHandler(service, logger)
	adminHandler := handlers.NewAdminHandler(service, st, logger)
	extensionsHandler := handlers.NewExtensionsHandler(service, notifier, installer, st, settings.ClawhubExtensionsDir, logger)
	inboundHandler := handlers.NewInboundHandler(service, logger)

	// Middlewares
	auth := middleware.NewAuth(agentKey, adminKey, settings.InboundToken, logger)
	tracing := middleware.NewTracing(logger).Middleware
	pinLimiter := middleware.NewRateLimiter(5, 10, logger).Middleware

	mux := http.NewServeMux()

	// Unauthenticated surface
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Agent surface
	mux.Handle("POST /api/v1/agent/request",
		tracing(auth.RequireAgent(http.HandlerFunc(agentHandler.Request))))
	mux.Handle("GET /api/v1/agent/request-status",
		tracing(auth.RequireAgent(http.HandlerFunc(agentHandler.RequestStatus))))

	// Admin surface
	mux.Handle("GET /api/v1/admin/bootstrap",
		tracing(auth.RequireAdmin(http.HandlerFunc(adminHandler.Bootstrap))))
	mux.Handle("POST /api/v1/admin/setup-pin",
		tracing(auth.RequireAdmin(http.HandlerFunc(adminHandler.SetupPIN))))
	mux.Handle("GET /api/v1/admin/requests/pending",
		tracing(auth.RequireAdmin(http.HandlerFunc(adminHandler.ListPending))))
	mux.Handle("GET /api/v1/admin/audit/recent",
		tracing(auth.RequireAdmin(http.HandlerFunc(adminHandler.RecentAudit))))
	mux.Handle("GET /api/v1/admin/risk-keywords",
		tracing(auth.RequireAdmin(http.HandlerFunc(adminHandler.RiskKeywords))))
	mux.Handle("POST /api/v1/admin/risk-keywords/config",
		tracing(auth.RequireAdmin(http.HandlerFunc(adminHandler.SetRiskKeywords))))
	mux.Handle("POST /api/v1/admin/approve-pin",
		tracing(auth.RequireAdmin(pinLimiter(http.HandlerFunc(adminHandler.ApprovePIN)))))
	mux.Handle("POST /api/v1/admin/deny-request",
		tracing(auth.RequireAdmin(http.HandlerFunc(adminHandler.DenyRequest))))
	mux.Handle("POST /api/v1/admin/message-reply",
		tracing(auth.RequireAdmin(pinLimiter(http.HandlerFunc(adminHandler.MessageReply)))))

	// Extension management
	mux.Handle("GET /api/v1/admin/extensions",
		tracing(auth.RequireAdmin(http.HandlerFunc(extensionsHandler.List))))
	mux.Handle("POST /api/v1/admin/extensions/config",
		tracing(auth.RequireAdmin(http.HandlerFunc(extensionsHandler.SetConfig))))
	mux.Handle("POST /api/v1/admin/extensions/test",
		tracing(auth.RequireAdmin(http.HandlerFunc(extensionsHandler.Test))))
	mux.Handle("POST /api/v1/admin/extensions/install-url",
		tracing(auth.RequireAdmin(http.HandlerFunc(extensionsHandler.InstallFromURL))))
	mux.Handle("POST /api/v1/admin/extensions/install-upload",
		tracing(auth.RequireAdmin(http.HandlerFunc(extensionsHandler.InstallFromUpload))))

	// Inbound reply relay (token in query string)
	mux.Handle("POST /api/v1/inbound/reply",
		tracing(auth.RequireInboundToken(pinLimiter(http.HandlerFunc(inboundHandler.Reply)))))

	server := &http.Server{
		Addr:         net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port)),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	printStartupLine(agentKey, adminKey, service.PINConfigured())

	go func() {
		logger.Info("Glove starting",
			zap.String("addr", server.Addr),
			zap.String("notifier", settings.NotifierProvider),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Glove shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
	logger.Info("Glove stopped")
}

// readOrCreateKey resolves a bearer secret: environment wins, else the
// stored value, else a freshly minted key persisted for future runs.
func readOrCreateKey(st *store.Store, name, envValue string, logger *zap.Logger) string {
	if envValue != "" {
		return envValue
	}
	if existing, ok := st.GetSetting(name); ok && existing != "" {
		return existing
	}
	generated := security.NewBearerKey()
	if err := st.SetSetting(name, generated); err != nil {
		logger.Fatal("Failed to persist key", zap.String("name", name), zap.Error(err))
	}
	return generated
}

// printStartupLine emits the machine-readable startup record on stdout.
// Only key tails are printed so full secrets never land in logs.
func printStartupLine(agentKey, adminKey string, pinConfigured bool) {
	line, _ := json.Marshal(map[string]interface{}{
		"event":          "glove_startup",
		"admin_key_tail": security.KeyTail(adminKey),
		"agent_key_tail": security.KeyTail(agentKey),
		"pin_configured": pinConfigured,
	})
	fmt.Println(string(line))
}
