// Package core owns the session state: which plex.tv account the app is
// signed into and which server connection it talks to. One Core is built
// at startup and handed to the layers that need it.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flixor/flixor/internal/cache"
	"github.com/flixor/flixor/internal/domain"
	"github.com/flixor/flixor/internal/provider/plex"
)

// authKey is where the encrypted auth record lives in the secure store.
const authKey = "auth:plex"

// probeTimeout bounds each connection probe during server selection.
const probeTimeout = 5 * time.Second

// AuthClient is the plex.tv surface Core depends on. *plex.AuthService
// satisfies it.
type AuthClient interface {
	CreatePin(ctx context.Context) (*domain.PlexPin, error)
	WaitForPin(ctx context.Context, id int, opts plex.PinPollOptions) (string, error)
	User(ctx context.Context, token string) (*domain.PlexUser, error)
	Servers(ctx context.Context, token string) ([]domain.PlexServer, error)
}

// SecureStore is the encrypted persistence Core needs for the auth record.
// *storage.SecureStore satisfies it.
type SecureStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Config assembles a Core.
type Config struct {
	Auth     AuthClient
	Store    SecureStore
	Cache    cache.Cache
	Identity plex.Identity
	Logger   *slog.Logger
}

// Core holds the {token, server, connection} session tuple. The tuple only
// changes as a whole: sign-in fills the token, ConnectToServer binds and
// persists all three, SignOut clears everything.
type Core struct {
	auth     AuthClient
	store    SecureStore
	cache    cache.Cache
	identity plex.Identity
	logger   *slog.Logger
	probe    func(ctx context.Context, identity plex.Identity, uri, token string, timeout time.Duration) error

	mu          sync.RWMutex
	token       string
	user        *domain.PlexUser
	server      *domain.PlexServer
	connection  *domain.PlexConnection
	serverSvc   *plex.ServerService
	discoverSvc *plex.DiscoverService
}

// New builds an unauthenticated Core.
func New(cfg Config) *Core {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := cfg.Cache
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return &Core{
		auth:     cfg.Auth,
		store:    cfg.Store,
		cache:    c,
		identity: cfg.Identity,
		logger:   logger,
		probe:    plex.Probe,
	}
}

// Initialize restores the persisted session and re-validates its token
// against plex.tv. A rejected token deletes the stored record and leaves
// the Core signed out; it is never silently retried. Transport failures
// surface instead, so a dead network cannot destroy a valid session.
// Returns whether a session was restored.
func (c *Core) Initialize(ctx context.Context) (bool, error) {
	data, err := c.store.Get(authKey)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		// Unreadable records (undecryptable, torn) are as dead as rejected
		// tokens.
		c.logger.Warn("dropping unreadable auth record", "error", err)
		_ = c.store.Delete(authKey)
		return false, nil
	}

	var rec domain.AuthRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn("dropping malformed auth record", "error", err)
		_ = c.store.Delete(authKey)
		return false, nil
	}

	user, err := c.auth.User(ctx, rec.Token)
	if err != nil {
		if errors.Is(err, domain.ErrAuthFailed) {
			c.logger.Info("stored token rejected, signing out")
			_ = c.store.Delete(authKey)
			return false, nil
		}
		return false, fmt.Errorf("validate stored token: %w", err)
	}

	c.mu.Lock()
	c.token = rec.Token
	c.user = user
	c.server = rec.Server
	c.connection = rec.Connection
	c.discoverSvc = plex.NewDiscoverService(rec.Token, c.identity, c.cache, c.logger)
	if rec.Server != nil && rec.Connection != nil {
		token := rec.Server.AccessToken
		if token == "" {
			token = rec.Token
		}
		c.serverSvc = plex.NewServerService(rec.Connection.URI, token, c.identity, c.cache, c.logger)
	}
	c.mu.Unlock()

	c.logger.Info("session restored", "username", user.Username)
	return true, nil
}

// CreatePin requests a device-link PIN from plex.tv.
func (c *Core) CreatePin(ctx context.Context) (*domain.PlexPin, error) {
	return c.auth.CreatePin(ctx)
}

// WaitForPin polls until the PIN is claimed and keeps the resulting token
// in memory. Nothing is persisted yet: the record is only written once a
// server connection is chosen, so storage always holds a complete tuple.
func (c *Core) WaitForPin(ctx context.Context, pinID int, opts plex.PinPollOptions) (string, error) {
	token, err := c.auth.WaitForPin(ctx, pinID, opts)
	if err != nil {
		return "", err
	}
	return token, c.adoptToken(ctx, token)
}

// SetToken installs an account token obtained out of band, validating it
// first.
func (c *Core) SetToken(ctx context.Context, token string) error {
	return c.adoptToken(ctx, token)
}

func (c *Core) adoptToken(ctx context.Context, token string) error {
	user, err := c.auth.User(ctx, token)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = token
	c.user = user
	c.discoverSvc = plex.NewDiscoverService(token, c.identity, c.cache, c.logger)
	c.mu.Unlock()
	c.logger.Info("signed in", "username", user.Username)
	return nil
}

// Servers lists the media servers the signed-in account can reach.
func (c *Core) Servers(ctx context.Context) ([]domain.PlexServer, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return nil, domain.ErrNotAuthenticated
	}
	return c.auth.Servers(ctx, token)
}

// ConnectToServer probes the server's connections in ranked order, local
// addresses first and relays last, and binds to the first one that answers
// its identity endpoint. The winning {token, server, connection} tuple is
// persisted so a later Initialize restores the same session.
func (c *Core) ConnectToServer(ctx context.Context, server domain.PlexServer) (*domain.PlexConnection, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return nil, domain.ErrNotAuthenticated
	}

	accessToken := server.AccessToken
	if accessToken == "" {
		accessToken = token
	}

	for _, conn := range plex.RankConnections(server.Connections) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := c.probe(ctx, c.identity, conn.URI, accessToken, probeTimeout); err != nil {
			c.logger.Debug("connection probe failed", "uri", conn.URI, "error", err)
			continue
		}
		chosen := conn

		c.mu.Lock()
		c.server = &server
		c.connection = &chosen
		c.serverSvc = plex.NewServerService(chosen.URI, accessToken, c.identity, c.cache, c.logger)
		c.mu.Unlock()

		if err := c.persist(); err != nil {
			// The connection is live; losing durability only costs a
			// re-setup on the next launch.
			c.logger.Warn("failed to persist auth record", "error", err)
		}

		c.logger.Info("connected to server",
			"server", server.Name,
			"uri", chosen.URI,
			"local", chosen.Local,
			"relay", chosen.Relay)
		return &chosen, nil
	}

	return nil, domain.ErrNoReachableServer
}

// SignOut clears the session: in-memory state, the persisted record, and
// every Plex-namespaced cache entry.
func (c *Core) SignOut() error {
	c.mu.Lock()
	c.token = ""
	c.user = nil
	c.server = nil
	c.connection = nil
	c.serverSvc = nil
	c.discoverSvc = nil
	c.mu.Unlock()

	if err := c.store.Delete(authKey); err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		return fmt.Errorf("delete auth record: %w", err)
	}

	removed := c.cache.DeletePattern("plex:*")
	removed += c.cache.DeletePattern("plextv:*")
	c.logger.Info("signed out", "cache_entries_removed", removed)
	return nil
}

// IsAuthenticated reports whether an account token is held.
func (c *Core) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// IsConnected reports whether a server connection is bound. Connected
// implies authenticated.
func (c *Core) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != "" && c.serverSvc != nil
}

// Token returns the account token, empty when signed out.
func (c *Core) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// User returns the signed-in account, nil when signed out.
func (c *Core) User() *domain.PlexUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Server returns the bound server, nil before ConnectToServer.
func (c *Core) Server() *domain.PlexServer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Connection returns the bound connection, nil before ConnectToServer.
func (c *Core) Connection() *domain.PlexConnection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connection
}

// ServerService returns the client for the bound connection, nil before
// ConnectToServer.
func (c *Core) ServerService() *plex.ServerService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverSvc
}

// Discover returns the plex.tv discover client for the signed-in account,
// nil when signed out. Unlike ServerService it needs no server connection.
func (c *Core) Discover() *plex.DiscoverService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.discoverSvc
}

func (c *Core) persist() error {
	c.mu.RLock()
	rec := domain.AuthRecord{Token: c.token, Server: c.server, Connection: c.connection}
	c.mu.RUnlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode auth record: %w", err)
	}
	return c.store.Set(authKey, data)
}
