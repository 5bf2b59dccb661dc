package app

import (
	"net/http"
	"time"
)

// Config holds runtime wiring options for building the app. Values
// normally come from internal/config.Load; this struct stays free of any
// viper/cobra dependency so it can be built directly in tests.
type Config struct {
	Home           string // config/data directory, e.g. $HOME/.axo
	RelayURL       string // provisioning base URL, e.g. http://127.0.0.1:8090
	Username       string
	Device         string
	StorePassword  string // passphrase protecting the encrypted store
	JWTSecret      string
	TokenTTL       time.Duration
	LogJSON        bool
	SkippedKeyTTL  time.Duration
	AppRepoSQLite  string
	ListenPeerAddr string
	HTTP           *http.Client // optional; defaults to http.DefaultClient
}
