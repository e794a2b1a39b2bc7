package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dgellow/idbroker/internal/browserauth"
	"github.com/dgellow/idbroker/internal/config"
	"github.com/dgellow/idbroker/internal/crypto"
	"github.com/dgellow/idbroker/internal/idp"
	"github.com/dgellow/idbroker/internal/log"
	"github.com/dgellow/idbroker/internal/metrics"
	"github.com/dgellow/idbroker/internal/oauth"
	"github.com/dgellow/idbroker/internal/server"
	"github.com/dgellow/idbroker/internal/storage"
	"github.com/ory/fosite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Broker is the assembled authorization broker
type Broker struct {
	config     config.Config
	httpServer *server.HTTPServer
	store      storage.Store
	cleanup    *storage.CleanupManager
	closers    []io.Closer
}

// Options overrides the production collaborators. Zero values select the
// defaults.
type Options struct {
	// Registerer receives the broker metrics, prometheus.DefaultRegisterer if nil
	Registerer prometheus.Registerer
	// Gatherer backs /metrics, prometheus.DefaultGatherer if nil
	Gatherer prometheus.Gatherer
	// IdentityProvider replaces the configured provider, for tests
	IdentityProvider idp.Provider
}

// NewBroker builds every component from cfg. Configuration problems are
// reported here, before the server accepts any request.
func NewBroker(ctx context.Context, cfg config.Config, opts Options) (*Broker, error) {
	config.ApplyDefaults(&cfg)
	log.LogInfoWithFields("broker", "Building authorization broker", map[string]any{
		"baseURL":  cfg.Broker.BaseURL,
		"provider": string(cfg.IDP.Provider),
		"storage":  string(cfg.Broker.Storage.Kind),
		"clients":  len(cfg.Clients),
	})

	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	identity, err := setupIdentityProvider(ctx, cfg, opts.IdentityProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to setup identity provider: %w", err)
	}

	b := &Broker{config: cfg}
	store, err := b.setupStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}
	b.store = store

	clients, provider, grants, err := setupAuthorizationServer(cfg)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("failed to setup authorization server: %w", err)
	}

	m := metrics.New(opts.Registerer)
	handler := buildHTTPHandler(cfg, handlerDeps{
		store:    store,
		identity: identity,
		sessions: browserauth.NewManager(store),
		provider: provider,
		clients:  clients,
		grants:   grants,
		metrics:  m,
		gatherer: opts.Gatherer,
	})
	b.httpServer = server.NewHTTPServer(handler, cfg.Broker.Addr)

	return b, nil
}

// setupIdentityProvider builds the provider client. Credentials and the
// allow-list are checked before any discovery request is made.
func setupIdentityProvider(ctx context.Context, cfg config.Config, override idp.Provider) (*idp.Client, error) {
	if override != nil {
		return idp.NewClientWithProvider(override, cfg.IDP.AllowedEmails, nil)
	}
	return idp.NewClient(ctx, cfg.IDP)
}

// setupStorage creates the ephemeral store for the configured backend
func (b *Broker) setupStorage(ctx context.Context) (storage.Store, error) {
	sc := b.config.Broker.Storage

	switch sc.Kind {
	case config.StorageRedis:
		log.LogInfoWithFields("storage", "Using Redis storage", nil)
		client, err := storage.NewRedisClient(ctx, string(sc.RedisURL))
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client)
		return storage.NewRedisStore(client), nil

	case config.StorageFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    sc.GCPProject,
			"database":   sc.FirestoreDatabase,
			"collection": sc.FirestoreCollection,
		})
		encryptor, err := crypto.NewEncryptor([]byte(b.config.Broker.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		fs, err := storage.NewFirestoreStore(ctx, sc.GCPProject, sc.FirestoreDatabase, sc.FirestoreCollection, encryptor)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, fs)
		b.cleanup = storage.NewCleanupManager(fs, sc.CleanupInterval)
		return fs, nil

	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", nil)
		mem := storage.NewMemoryStore()
		b.cleanup = storage.NewCleanupManager(mem, sc.CleanupInterval)
		return mem, nil
	}
}

func setupAuthorizationServer(cfg config.Config) (*oauth.ClientStore, fosite.OAuth2Provider, *oauth.FositeGrantService, error) {
	clients, err := oauth.NewClientStore(cfg.Clients)
	if err != nil {
		return nil, nil, nil, err
	}

	provider, err := oauth.NewOAuthProvider(oauth.ProviderConfig{
		Issuer:   cfg.Broker.Issuer,
		TokenTTL: cfg.Broker.TokenTTL,
		Secret:   []byte(cfg.Broker.JWTSecret),
	}, clients)
	if err != nil {
		return nil, nil, nil, err
	}

	grants, err := oauth.NewFositeGrantService(provider, cfg.Broker.Issuer)
	if err != nil {
		return nil, nil, nil, err
	}
	return clients, provider, grants, nil
}

type handlerDeps struct {
	store    storage.Store
	identity *idp.Client
	sessions *browserauth.Manager
	provider fosite.OAuth2Provider
	clients  *oauth.ClientStore
	grants   oauth.GrantService
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// buildHTTPHandler registers every route with its middleware chain
func buildHTTPHandler(cfg config.Config, deps handlerDeps) http.Handler {
	mux := http.NewServeMux()

	cors := server.NewCORSMiddleware(cfg.Broker.AllowedOrigins)
	browserHeaders := server.NewBrowserHeadersMiddleware()

	// innermost first
	apiMiddleware := []server.MiddlewareFunc{
		cors,
		server.NewRecoverMiddleware("oauth"),
		server.NewLoggerMiddleware("oauth"),
	}
	flowMiddleware := []server.MiddlewareFunc{
		browserHeaders,
		server.NewRecoverMiddleware("flow"),
		server.NewLoggerMiddleware("flow"),
	}

	var checker server.HealthChecker
	if hc, ok := deps.store.(server.HealthChecker); ok {
		checker = hc
	}
	mux.Handle("GET /health", server.NewHealthHandler(checker))
	mux.Handle("GET /metrics", promhttp.HandlerFor(deps.gatherer, promhttp.HandlerOpts{}))

	oauthHandlers := server.NewOAuthHandlers(deps.provider, deps.clients, cfg.Broker.Issuer)
	mux.Handle("/.well-known/oauth-authorization-server", server.ChainMiddleware(http.HandlerFunc(oauthHandlers.WellKnownHandler), apiMiddleware...))
	mux.Handle("/token", server.ChainMiddleware(http.HandlerFunc(oauthHandlers.TokenHandler), apiMiddleware...))
	mux.Handle("/register", server.ChainMiddleware(http.HandlerFunc(oauthHandlers.RegisterHandler), apiMiddleware...))
	mux.Handle("/clients/{client_id}", server.ChainMiddleware(http.HandlerFunc(oauthHandlers.ClientMetadataHandler), apiMiddleware...))

	authHandlers := server.NewAuthHandlers(deps.grants, deps.identity, deps.sessions, deps.store, deps.metrics, server.AuthHandlersConfig{
		AppName:    cfg.Broker.Name,
		IDPScope:   strings.Join(cfg.IDP.Scopes, " "),
		SigningKey: []byte(cfg.Broker.JWTSecret),
	})
	mux.Handle("GET /{$}", server.ChainMiddleware(http.HandlerFunc(authHandlers.HomeHandler), flowMiddleware...))
	mux.Handle("GET /authorize", server.ChainMiddleware(http.HandlerFunc(authHandlers.AuthorizeHandler), flowMiddleware...))
	mux.Handle("GET /callback", server.ChainMiddleware(http.HandlerFunc(authHandlers.CallbackHandler), flowMiddleware...))
	mux.Handle("POST /approve", server.ChainMiddleware(http.HandlerFunc(authHandlers.ApproveHandler), flowMiddleware...))
	mux.Handle("POST /logout", server.ChainMiddleware(http.HandlerFunc(authHandlers.LogoutHandler), flowMiddleware...))

	return mux
}

// Handler exposes the routed handler, mainly for tests
func (b *Broker) Handler() http.Handler {
	return b.httpServer.Handler()
}

// Run serves until SIGINT, SIGTERM or a component failure, then shuts down
// gracefully
func (b *Broker) Run() error {
	log.LogInfoWithFields("broker", "Starting authorization broker", map[string]any{
		"addr": b.config.Broker.Addr,
	})
	defer b.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if b.cleanup != nil {
		g.Go(func() error {
			return b.cleanup.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		reason := "signal"
		if ctx.Err() == nil {
			reason = "component failure"
		}
		log.LogInfoWithFields("broker", "Starting graceful shutdown", map[string]any{
			"reason":  reason,
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if b.cleanup != nil {
			b.cleanup.Stop()
		}
		return b.httpServer.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.LogErrorWithFields("broker", "Broker stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("broker", "Broker shutdown complete", nil)
	return nil
}

func (b *Broker) close() {
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			log.LogWarnWithFields("broker", "Failed to close backend", map[string]any{
				"error": err.Error(),
			})
		}
	}
	b.closers = nil
}
