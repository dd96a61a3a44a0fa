package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ikahadi647-afk/authbridge/handlers"
	"github.com/ikahadi647-afk/authbridge/internal/authstate"
	"github.com/ikahadi647-afk/authbridge/internal/config"
	"github.com/ikahadi647-afk/authbridge/internal/directory"
	"github.com/ikahadi647-afk/authbridge/internal/oidc"
	"github.com/ikahadi647-afk/authbridge/internal/provider"
	"github.com/ikahadi647-afk/authbridge/internal/sessions"
	"github.com/ikahadi647-afk/authbridge/internal/storage"
	"github.com/ikahadi647-afk/authbridge/pkg/logger"
	"github.com/ikahadi647-afk/authbridge/pkg/metrics"
	"github.com/ikahadi647-afk/authbridge/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging first (controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: provider=%s redis=%v mongo=%v minio=%v",
		cfg.Provider.URL, cfg.Redis.Host != "", cfg.MongoDB.URI != "", cfg.MinIO.Endpoint != "")

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple; the agent normally serves a loopback UI.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Global middlewares: logging + recovery + request correlation
	r.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())

	// shared runtime vars used by handlers/readiness
	var verifier middleware.Verifier
	var mongoClient *mongo.Client
	var avatars *storage.AvatarCache

	// Connect to Redis early so the session store, revocation cache and
	// rate limiter can use it when configured
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			sessions.SetRevocationClient(redisClient)
			middleware.SetRevocationChecker(sessions.IsAccessTokenRevoked)
			logger.Infof("Connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint: 200 only when the agent can actually serve auth state
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		// bearer enforcement needs a working verifier
		if cfg.Auth.RequireBearer {
			deps["verifier"] = verifier != nil
			if verifier == nil {
				ready = false
			}
		} else {
			deps["verifier"] = true
		}

		// Redis readiness when configured for sessions/revocation
		if cfg.Redis.Host != "" {
			deps["redis"] = redisClient != nil
			if redisClient == nil {
				ready = false
			}
		} else {
			deps["redis"] = true
		}

		// informational: directory and avatar cache degrade gracefully
		deps["directory"] = cfg.MongoDB.URI == "" || mongoClient != nil
		deps["avatars"] = cfg.MinIO.Endpoint == "" || avatars != nil

		status := gin.H{"deps": deps, "uptime": time.Since(startTime).String()}
		if !ready {
			status["status"] = "not_ready"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["status"] = "ready"
		c.JSON(http.StatusOK, status)
	})

	// ID-token verifier via OIDC discovery, with an insecure fallback for
	// integration environments where the provider is not reachable over TLS
	ctx := context.Background()
	issuer := strings.TrimRight(cfg.Provider.URL, "/") + "/realms/" + cfg.Provider.Realm
	if ver, err := oidc.NewVerifier(ctx, issuer, cfg.Provider.ClientID); err != nil {
		logger.Warnf("failed to initialize OIDC verifier for %s: %v", issuer, err)
	} else {
		verifier = ver
	}
	if verifier == nil && cfg.Auth.AllowInsecureToken {
		logger.Warn("enabling insecure ID-token verifier (integration mode)")
		verifier = oidc.NewInsecureVerifier()
	}
	if verifier == nil {
		logger.Fatalf("no ID-token verifier available; set ALLOW_INSECURE_TOKEN=true only for integration runs")
	}

	// session store: Redis when available, process-local otherwise
	var store provider.SessionStore
	if redisClient != nil {
		store = sessions.NewRedisStore(redisClient, "", 0)
		logger.Infof("Using Redis for session persistence")
	} else {
		store = sessions.NewMemoryStore()
		logger.Infof("Using in-memory session store (sessions do not survive restarts)")
	}

	client, err := provider.NewKeycloakClient(provider.Options{
		URL:             cfg.Provider.URL,
		Realm:           cfg.Provider.Realm,
		ClientID:        cfg.Provider.ClientID,
		ClientSecret:    cfg.Provider.ClientSecret,
		Verifier:        verifier,
		AllowUnverified: cfg.Auth.AllowInsecureToken,
		Store:           store,
		RefreshSkew:     cfg.Provider.RefreshSkew,
	})
	if err != nil {
		logger.Fatalf("provider client: %v", err)
	}

	// the bridge restores the persisted session in the background; UI
	// consumers see loading=true until that first resolution
	bridge := authstate.New(client)
	bridge.Start(ctx)

	// user directory: MongoDB when configured, in-memory fallback otherwise.
	// Retry/backoff tolerates startup races with the database container.
	var repo directory.Repository
	if cfg.MongoDB.URI != "" {
		const maxAttempts = 5
		backoff := time.Second
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, errConn = directory.Connect(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts, using in-memory directory: %v", maxAttempts, errConn)
			mongoClient = nil
		} else {
			col := mongoClient.Database(cfg.MongoDB.Database).Collection("users")
			repo = directory.NewMongoRepository(col)
			logger.Infof("Connected to MongoDB: database=%s", cfg.MongoDB.Database)
		}
	}
	if repo == nil {
		repo = directory.NewMemoryRepository()
	}
	recorder := directory.NewRecorder(repo)
	recorder.Attach(bridge)

	// avatar cache: mirror provider avatars into MinIO when configured
	if cfg.MinIO.Endpoint != "" {
		st, err := storage.NewMinIOStorage(&storage.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
		})
		if err != nil {
			logger.Warnf("avatar cache disabled, MinIO unavailable: %v", err)
		} else {
			avatars = storage.NewAvatarCache(st)
			avatars.Attach(bridge)
			logger.Infof("Avatar cache enabled: bucket=%s", cfg.MinIO.Bucket)
		}
	}

	// the credential pass-through is rate limited so a misbehaving UI
	// cannot hammer the provider's token endpoint
	authGroup := r.Group("/")
	if redisClient != nil {
		authGroup.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window))
	} else {
		authGroup.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}

	h := handlers.NewAuthHandler(bridge, avatars)
	h.Register(authGroup)

	// the session surface: trusted loopback UI by default, bearer-checked
	// when the UI runs on another host
	api := r.Group("/api/v1")
	if cfg.Auth.RequireBearer {
		api.Use(middleware.AuthMiddleware(verifier))
	}
	h.RegisterAPI(api)

	handlers.RegisterSwagger(r)

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// no WriteTimeout: /api/v1/session/events holds the connection open
	}

	go func() {
		logger.Infof("Starting authbridge agent on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("server shutdown: %v", err)
	}

	// teardown order: state consumers release their subscriptions first,
	// then the bridge, then the provider client stops its refresh loop
	recorder.Close()
	if avatars != nil {
		avatars.Close()
	}
	bridge.Close()
	client.Close()
	if mongoClient != nil {
		_ = mongoClient.Disconnect(context.Background())
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Infof("agent stopped")
}
