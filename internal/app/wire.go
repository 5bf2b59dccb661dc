package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"axocore/internal/apprepo"
	"axocore/internal/domain"
	"axocore/internal/fanout"
	"axocore/internal/identity"
	"axocore/internal/provisioning"
	"axocore/internal/ratchet"
	"axocore/internal/store"
	"axocore/internal/transport/libp2pnet"
	"axocore/internal/x3dh"
)

const saltFileName = "store.salt"

// Wire bundles every concrete component the CLI (cmd/axo) drives: the
// encrypted store, identity manager, ratchet engine, session establisher,
// provisioning client, transport sink and the fan-out application facade
// that ties them together.
type Wire struct {
	Store        domain.Store
	Identity     *identity.Manager
	Engine       *ratchet.Engine
	Establisher  *x3dh.Establisher
	Provisioning domain.ProvisioningClient
	Sink         *libp2pnet.Sink
	AppRepo      *apprepo.Repo
	Fanout       *fanout.App
	Log          *slog.Logger
}

// NewWire constructs the dependency graph from cfg. listener receives
// inbound message/notification callbacks; callers not interested in
// inbound traffic (e.g. a one-shot `axo send`) may pass a nil listener.
func NewWire(cfg Config, log *slog.Logger, listener domain.InboundListener) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("app: create home dir: %w", err)
	}

	key, err := storeKey(cfg)
	if err != nil {
		return nil, err
	}
	dbPath := filepath.Join(cfg.Home, "store.db")
	st, err := store.Open(dbPath, key, log)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	idm := identity.New(st, log)

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	tokens := provisioning.NewHS256TokenSource([]byte(cfg.JWTSecret), domain.Username(cfg.Username), domain.DeviceID(cfg.Device), cfg.TokenTTL)
	prov := provisioning.New(cfg.RelayURL, httpClient, tokens)

	establisher := x3dh.New(st, idm, prov, log)
	engine := ratchet.NewEngine(st, establisher)

	listenAddr := cfg.ListenPeerAddr
	if listenAddr == "" {
		listenAddr = "/ip4/0.0.0.0/tcp/0"
	}
	sink, err := libp2pnet.New(listenAddr, nil, log)
	if err != nil {
		return nil, fmt.Errorf("app: create transport sink: %w", err)
	}

	repoPath := cfg.AppRepoSQLite
	if repoPath == "" {
		repoPath = filepath.Join(cfg.Home, "apprepo.db")
	}
	repo, err := apprepo.Open(repoPath)
	if err != nil {
		return nil, fmt.Errorf("app: open app repository: %w", err)
	}

	if listener == nil {
		listener = noopListener{}
	}
	faApp := fanout.New(st, engine, establisher, prov, sink, listener, domain.Username(cfg.Username), domain.DeviceID(cfg.Device), log)

	return &Wire{
		Store:        st,
		Identity:     idm,
		Engine:       engine,
		Establisher:  establisher,
		Provisioning: prov,
		Sink:         sink,
		AppRepo:      repo,
		Fanout:       faApp,
		Log:          log,
	}, nil
}

// Close releases every resource NewWire opened.
func (w *Wire) Close() error {
	var firstErr error
	if err := w.AppRepo.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.Sink.Host().Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// storeKey derives the encrypted store's page key from cfg.StorePassword,
// persisting a per-installation salt alongside the database the first time
// a store is created.
func storeKey(cfg Config) ([]byte, error) {
	saltPath := filepath.Join(cfg.Home, saltFileName)
	raw, err := os.ReadFile(saltPath)
	var salt []byte
	switch {
	case err == nil:
		salt, err = identity.ParseSalt(string(raw))
		if err != nil {
			return nil, fmt.Errorf("app: parse store salt: %w", err)
		}
	case os.IsNotExist(err):
		salt, err = identity.NewSalt()
		if err != nil {
			return nil, fmt.Errorf("app: generate store salt: %w", err)
		}
		if err := os.WriteFile(saltPath, []byte(identity.FormatSalt(salt)), 0o600); err != nil {
			return nil, fmt.Errorf("app: persist store salt: %w", err)
		}
	default:
		return nil, fmt.Errorf("app: read store salt: %w", err)
	}

	key, err := identity.DerivePageKey(cfg.StorePassword, salt)
	if err != nil {
		return nil, fmt.Errorf("app: derive store key: %w", err)
	}
	return key, nil
}

type noopListener struct{}

func (noopListener) NotifyCallback(action domain.NotifyAction, info string, device domain.DeviceID) {
}
func (noopListener) MessageReceived(msg domain.DecryptedMessage) {}
