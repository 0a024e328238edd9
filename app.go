package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/device-auth/handlers"
	"github.com/gogotex/gogotex/backend/device-auth/internal/config"
	"github.com/gogotex/gogotex/backend/device-auth/internal/database"
	"github.com/gogotex/gogotex/backend/device-auth/internal/deviceflow"
	"github.com/gogotex/gogotex/backend/device-auth/internal/provider"
	"github.com/gogotex/gogotex/backend/device-auth/internal/tokens"
	"github.com/gogotex/gogotex/backend/device-auth/internal/users"
	"github.com/gogotex/gogotex/backend/device-auth/pkg/logger"
	"github.com/gogotex/gogotex/backend/device-auth/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

const mongoConnectAttempts = 5

// app holds the long-lived dependencies shared by every command
type app struct {
	cfg    *config.Config
	redis  *redis.Client
	mongo  *mongo.Client
	store  deviceflow.Store
	users  *users.Service
	client provider.Client
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	if cfg.Redis.Host != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr(), err)
		}
		logger.Infof("connected to Redis: %s", cfg.Redis.Addr())
	}
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB, mongoConnectAttempts)
		if err != nil {
			return nil, err
		}
		a.mongo = client
		logger.Infof("connected to MongoDB database %s", cfg.MongoDB.Database)
	}

	store, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	if a.mongo != nil {
		a.users = users.NewService(users.NewMongoUserRepository(a.mongo.Database(cfg.MongoDB.Database).Collection("users")))
	} else {
		logger.Warn("MONGODB_URI not set: users are kept in memory and lost on restart")
		a.users = users.NewService(users.NewMemoryUserRepository())
	}

	client, err := newProvider(ctx, cfg.Provider)
	if err != nil {
		return nil, err
	}
	a.client = client
	ok = true
	return a, nil
}

func (a *app) newStore(ctx context.Context) (deviceflow.Store, error) {
	kind := a.cfg.StoreKind()
	logger.Infof("pending device flows stored in %s", kind)
	switch kind {
	case "redis":
		if a.redis == nil {
			return nil, errors.New("redis store selected but REDIS_HOST is not set")
		}
		return deviceflow.NewRedisStore(a.redis, "deviceflow:"), nil
	case "mongo":
		if a.mongo == nil {
			return nil, errors.New("mongo store selected but MONGODB_URI is not set")
		}
		return deviceflow.NewMongoStore(ctx, a.mongo.Database(a.cfg.MongoDB.Database))
	default:
		return deviceflow.NewMemoryStore(), nil
	}
}

func newProvider(ctx context.Context, pc config.ProviderConfig) (provider.Client, error) {
	base := provider.Config{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		Scopes:       pc.Scopes,
		Timeout:      pc.HTTPTimeout,
	}
	switch pc.Kind {
	case config.ProviderOIDC:
		return provider.NewOIDC(ctx, pc.Issuer, base)
	case config.ProviderGitHub, "":
		return provider.NewGitHub(base, provider.GitHubEndpoints{
			DeviceURL: pc.DeviceURL,
			TokenURL:  pc.TokenURL,
			UserURL:   pc.UserURL,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
	}
}

func (a *app) schedulerConfig() deviceflow.SchedulerConfig {
	d := a.cfg.DeviceFlow
	return deviceflow.SchedulerConfig{
		Interval:           d.SweepInterval,
		PollTimeout:        d.PollTimeout,
		MaxConcurrentPolls: d.MaxConcurrentPolls,
		CompletionTTL:      d.CompletionTTL,
		FailureThreshold:   d.FailureThreshold,
	}
}

func (a *app) close() {
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.mongo.Disconnect(ctx)
		cancel()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// router wires every HTTP route
func (a *app) router(issuer *tokens.Issuer) *gin.Engine {
	r := gin.New()

	// Lightweight CORS middleware: set common headers and respond to OPTIONS.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", a.ready)

	flows := deviceflow.NewService(a.store, a.client, a.users, issuer)
	h := handlers.NewDeviceAuthHandler(flows, a.users)
	h.Register(r.Group("/"), a.rateLimiter()...)
	h.RegisterAPI(r.Group("/api/v1"), middleware.AuthMiddleware(issuer))

	handlers.RegisterSwagger(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (a *app) rateLimiter() []gin.HandlerFunc {
	rl := a.cfg.RateLimit
	if !rl.Enabled {
		return nil
	}
	if rl.UseRedis && a.redis != nil {
		win := time.Duration(rl.WindowSeconds) * time.Second
		return []gin.HandlerFunc{middleware.RedisRateLimitMiddleware(a.redis, rl.RPS, rl.Burst, win)}
	}
	return []gin.HandlerFunc{middleware.RateLimitMiddleware(rl.RPS, rl.Burst)}
}

// ready returns 200 only when the flow store and user repository answer
func (a *app) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := map[string]bool{
		"store": a.store.Ping(ctx) == nil,
		"users": a.users.Ping(ctx) == nil,
	}
	ready := true
	for _, ok := range deps {
		ready = ready && ok
	}
	uptime := time.Since(startTime).String()
	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": uptime})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": uptime, "provider": a.client.Name()})
}
