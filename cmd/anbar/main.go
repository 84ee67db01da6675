package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mehdy/anbar/internal/audit"
	"github.com/mehdy/anbar/internal/blobstore"
	"github.com/mehdy/anbar/internal/catalog"
	"github.com/mehdy/anbar/internal/config"
	"github.com/mehdy/anbar/internal/diag"
	"github.com/mehdy/anbar/internal/dispatch"
	"github.com/mehdy/anbar/internal/engine"
	"github.com/mehdy/anbar/internal/httpapi"
	"github.com/mehdy/anbar/internal/kvstore"
	"github.com/mehdy/anbar/internal/logging"
	"github.com/mehdy/anbar/internal/metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "anbar",
		Short:   "anbar - a minimal S3-compatible object store",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE:    runServe,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "data directory path")
	rootCmd.PersistentFlags().StringP("listen", "l", ":8080", "API listen address")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("kv-engine", "pebble", "catalog KV engine (pebble or badger)")
	rootCmd.PersistentFlags().Bool("allow-anonymous", false, "allow unsigned requests as a fixed anonymous user")
	rootCmd.PersistentFlags().String("anonymous-user-id", "", "user ID to use for anonymous requests")
	rootCmd.PersistentFlags().String("tls-cert", "", "TLS certificate file")
	rootCmd.PersistentFlags().String("tls-key", "", "TLS private key file")

	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Setup(cfg.LogLevel)
	logrus.WithFields(logrus.Fields{"version": version, "commit": commit}).Info("starting anbar")

	kvDir := cfg.DataDir + "/.anbar.db"
	kv, err := kvstore.Open(kvstore.Engine(cfg.KVEngine), kvDir, logrus.StandardLogger())
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	defer kv.Close()

	blobs, err := blobstore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	cat := catalog.New(kv)
	eng := engine.New(cat, blobs)

	ledger, err := audit.Open(kvDir + "/audit.sqlite")
	if err != nil {
		return fmt.Errorf("open audit ledger: %w", err)
	}
	defer ledger.Close()

	registry := metrics.New()

	stopDiskSampler := make(chan struct{})
	defer close(stopDiskSampler)
	go registry.SampleDisk(cfg.DataDir, 30*time.Second, stopDiskSampler)

	anon := dispatch.AnonymousConfig{Allow: cfg.AllowAnonymous, UserID: cfg.AnonymousUserID}
	disp := dispatch.New(eng, fanoutHooks(registry.Hooks(), ledger.Hooks()), anon)
	handler := httpapi.New(disp)

	var extra []httpapi.Route
	if cfg.Metrics.Enable {
		extra = append(extra, httpapi.Route{Path: cfg.Metrics.Path, Handler: registry.Handler()})
	}
	if cfg.Diag.Enable {
		diagHandler, err := buildDiagHandler(cfg.Diag, cat, cfg.DataDir)
		if err != nil {
			return fmt.Errorf("configure diagnostics endpoint: %w", err)
		}
		extra = append(extra, httpapi.Route{Path: "/_anbar/status", Handler: diagHandler})
	}
	router := handler.Router(extra...)

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logrus.Info("received shutdown signal")
		cancel()
	}()

	serveErr := make(chan error, 1)
	go func() {
		logrus.WithField("address", cfg.Listen).Info("listening")
		if cfg.EnableTLS {
			serveErr <- srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			serveErr <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logrus.Info("anbar stopped")
	return nil
}

func buildDiagHandler(cfg config.DiagConfig, cat *catalog.Catalog, dataDir string) (*diag.Handler, error) {
	if cfg.PasswordHashHex == "" || cfg.SessionSigningKey == "" {
		return nil, fmt.Errorf("diag.password_hash_hex and diag.session_signing_key must both be set")
	}
	hash, err := hex.DecodeString(cfg.PasswordHashHex)
	if err != nil {
		return nil, fmt.Errorf("decode password hash: %w", err)
	}
	build := diag.BuildInfo{Version: version, Commit: commit, Date: date}
	return diag.NewHandler(hash, []byte(cfg.SessionSigningKey), cat, dataDir, build), nil
}

func fanoutHooks(hooks ...dispatch.Hooks) dispatch.Hooks {
	return dispatch.Hooks{OnCall: func(record dispatch.CallRecord) {
		for _, h := range hooks {
			if h.OnCall != nil {
				h.OnCall(record)
			}
		}
	}}
}

func newUserCmd() *cobra.Command {
	var displayName, accessKey, secretKey string

	cmd := &cobra.Command{
		Use:   "new-user",
		Short: "create a user and print its access key / secret access key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			kv, err := kvstore.Open(kvstore.Engine(cfg.KVEngine), cfg.DataDir+"/.anbar.db", logrus.StandardLogger())
			if err != nil {
				return fmt.Errorf("open catalog store: %w", err)
			}
			defer kv.Close()

			if accessKey == "" {
				accessKey, err = randomHex(10)
				if err != nil {
					return err
				}
			}
			if secretKey == "" {
				secretKey, err = randomHex(20)
				if err != nil {
					return err
				}
			}

			cat := catalog.New(kv)
			user := catalog.User{
				ID:              uuid.NewString(),
				DisplayName:     displayName,
				AccessKey:       accessKey,
				SecretAccessKey: secretKey,
			}
			if err := cat.CreateUser(cmd.Context(), user); err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			fmt.Printf("user_id=%s access_key=%s secret_access_key=%s\n", user.ID, user.AccessKey, user.SecretAccessKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name for the new user")
	cmd.Flags().StringVar(&accessKey, "access-key", "", "access key (generated if omitted)")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "secret access key (generated if omitted)")
	return cmd
}

func adminCmd() *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "administrative commands"}

	var password string
	setPassword := &cobra.Command{
		Use:   "set-password",
		Short: "set the bcrypt password hash used by the diagnostics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("--password is required")
			}
			hash, err := diag.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			fmt.Printf("diag.password_hash_hex: %s\n", hex.EncodeToString(hash))
			return nil
		},
	}
	setPassword.Flags().StringVar(&password, "password", "", "diagnostics admin password")
	admin.AddCommand(setPassword)
	return admin
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
