package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pflag "github.com/spf13/pflag"

	"axocore/internal/app"
	"axocore/internal/config"
	"axocore/internal/logging"
)

var (
	// Flags shared across all commands, bound into viper by PersistentPreRunE.
	homeDir   string
	relayURL  string
	username  string
	device    string
	jwtSecret string
	logJSON   bool

	// appCtx holds the wired dependencies after PersistentPreRunE.
	appCtx *app.Wire
)

// Execute initialises the application context and runs the root cobra command.
func Execute() error {
	root := &cobra.Command{
		Use:   "axo",
		Short: "End-to-end encrypted multi-device messaging CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			bindFlag(v, "home", cmd.Flags().Lookup("home"))
			bindFlag(v, "relay_url", cmd.Flags().Lookup("relay"))
			bindFlag(v, "username", cmd.Flags().Lookup("username"))
			bindFlag(v, "device", cmd.Flags().Lookup("device"))
			bindFlag(v, "jwt_secret", cmd.Flags().Lookup("jwt-secret"))
			bindFlag(v, "log_json", cmd.Flags().Lookup("log-json"))

			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			log := logging.New(logging.Options{JSON: cfg.LogJSON})

			httpClient := &http.Client{
				Timeout: 15 * time.Second,
				Transport: &http.Transport{
					Proxy: http.ProxyFromEnvironment,
					DialContext: (&net.Dialer{
						Timeout:   5 * time.Second,
						KeepAlive: 30 * time.Second,
					}).DialContext,
					TLSHandshakeTimeout:   5 * time.Second,
					ExpectContinueTimeout: 1 * time.Second,
					IdleConnTimeout:       90 * time.Second,
					MaxIdleConns:          100,
					MaxIdleConnsPerHost:   10,
				},
			}

			appCfg := app.Config{
				Home:           cfg.Home,
				RelayURL:       cfg.RelayURL,
				Username:       cfg.Username,
				Device:         cfg.Device,
				StorePassword:  cfg.StorePassword,
				JWTSecret:      cfg.JWTSecret,
				TokenTTL:       cfg.TokenTTL,
				LogJSON:        cfg.LogJSON,
				SkippedKeyTTL:  cfg.SkippedKeyTTL,
				AppRepoSQLite:  cfg.AppRepoSQLite,
				ListenPeerAddr: cfg.ListenPeerAddr,
				HTTP:           httpClient,
			}

			appCtx, err = app.NewWire(appCfg, log, printingListener{})
			if err != nil {
				return fmt.Errorf("initialising application: %w", err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&homeDir, "home", "", "config/data directory (default: $HOME/.axo)")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "key server URL, e.g. http://127.0.0.1:8090")
	root.PersistentFlags().StringVarP(&username, "username", "u", "", "your registered username")
	root.PersistentFlags().StringVarP(&device, "device", "d", "", "this device's id")
	root.PersistentFlags().StringVar(&jwtSecret, "jwt-secret", "", "shared secret for signing provisioning bearer tokens")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit structured JSON logs instead of devlog output")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		registerCmd(),
		startSessionCmd(),
		sendCmd(),
		recvCmd(),
		adminCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	root.SetContext(ctx)

	return root.Execute()
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	_ = v.BindPFlag(key, flag)
}
