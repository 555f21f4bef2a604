package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Carbonfreezer/multiplayer/internal/v1/bus"
	"github.com/Carbonfreezer/multiplayer/internal/v1/config"
	"github.com/Carbonfreezer/multiplayer/internal/v1/handshake"
	"github.com/Carbonfreezer/multiplayer/internal/v1/health"
	"github.com/Carbonfreezer/multiplayer/internal/v1/lobby"
	"github.com/Carbonfreezer/multiplayer/internal/v1/logging"
	"github.com/Carbonfreezer/multiplayer/internal/v1/middleware"
	"github.com/Carbonfreezer/multiplayer/internal/v1/ratelimit"
	"github.com/Carbonfreezer/multiplayer/internal/v1/relay"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logging.Warn(nil, "no .env file found, relying on environment variables")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevMode); err != nil {
		panic(err)
	}
	defer logging.GetLogger().Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var lobbyBus *bus.Service
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		podID, _ := os.Hostname()
		lobbyBus, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword, podID)
		if err != nil {
			logging.Fatal(ctx, "failed to connect lobby bus", zap.Error(err))
		}
		redisClient = lobbyBus.Client()

		var wg sync.WaitGroup
		lobbyBus.Subscribe(ctx, &wg, func(ev bus.Event) {
			logging.Info(ctx, "lobby event from peer replica",
				zap.String("kind", string(ev.Kind)), zap.String("composite_key", ev.CompositeKey),
				zap.Int("player_count", ev.PlayerCount))
		})
	}

	state := lobby.NewAppState(cfg.BroadcastBufferLen, lobbyBus)
	if err := state.LoadCatalog(cfg.GameConfigPath); err != nil {
		logging.Fatal(ctx, "initial game catalog load failed", zap.Error(err))
	}

	go state.RunJanitor(ctx, cfg.JanitorInterval)

	limiter, err := ratelimit.NewRateLimiter(cfg, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to build rate limiter", zap.Error(err))
	}

	healthHandler := health.NewHandler(lobbyBus)

	allowedOrigins := splitOrigins(cfg.AllowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return originAllowed(r, allowedOrigins) },
	}

	if cfg.DevMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = allowedOrigins
	router.Use(cors.New(corsCfg))

	router.GET("/ws", limiter.MiddlewareForEndpoint("ws"), func(c *gin.Context) {
		serveWebSocket(c, &upgrader, state)
	})
	router.GET("/enlist", limiter.MiddlewareForEndpoint("admin"), func(c *gin.Context) {
		c.String(http.StatusOK, strings.Join(state.Enlist(), "\n"))
	})
	router.GET("/reload", limiter.MiddlewareForEndpoint("admin"), func(c *gin.Context) {
		if err := state.ReloadCatalog(cfg.GameConfigPath); err != nil {
			c.String(http.StatusInternalServerError, "Config reload failed: %s", err.Error())
			return
		}
		c.String(http.StatusOK, strings.Join(state.Catalog(), "\n"))
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "relay listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down relay")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RoomCleanupGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}
	if lobbyBus != nil {
		_ = lobbyBus.Close()
	}
	logging.Info(ctx, "relay exited")
}

// serveWebSocket upgrades the request, runs the handshake to completion and,
// on success, hands the connection off to the router for the rest of its
// life. A failed handshake has already told the client why over the socket;
// there is nothing further to do here but close it.
func serveWebSocket(c *gin.Context, upgrader *websocket.Upgrader, state *lobby.AppState) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	res, err := handshake.Perform(c.Request.Context(), conn, state)
	if err != nil {
		logging.Warn(c.Request.Context(), "handshake failed", zap.Error(err))
		_ = conn.Close()
		return
	}

	relay.Handle(c.Request.Context(), conn, res, state)
}

// splitOrigins turns the comma-separated ALLOWED_ORIGINS env value into a
// slice, trimming whitespace and dropping empty entries.
func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// originAllowed matches scheme and host only, the way browsers compare
// origins, rather than a literal string match against the Origin header.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients (load testers, bots, native games)
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		allowedURL, err := url.Parse(a)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}
