package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/preupac/simulador/internal/auth"
	"github.com/preupac/simulador/internal/exam"
	"github.com/preupac/simulador/internal/handler"
	appI18n "github.com/preupac/simulador/internal/i18n"
	"github.com/preupac/simulador/internal/llm"
	"github.com/preupac/simulador/internal/model"
	"github.com/preupac/simulador/internal/sheet"
	"github.com/preupac/simulador/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "simulador",
		Short:        "Preu PAC mock exam simulator backed by a spreadsheet",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd(), initWorkbookCmd(), userCmd())

	// "serve" is the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addBackendFlags registers the flags every command needs to reach the
// spreadsheet.
func addBackendFlags(f *pflag.FlagSet) {
	f.String("backend", string(sheet.KindGoogle), "Spreadsheet backend (google, xlsx, sqlite, postgres)")
	f.String("spreadsheet-id", "", "Google Sheets document id")
	f.String("spreadsheet-name", "BaseDatos_Preu", "Google Sheets document name, used when no id is given")
	f.String("credentials-file", "", "Service account key file")
	f.String("credentials-json", "", "Service account key as JSON (or set SIMULADOR_CREDENTIALS_JSON)")
	f.String("xlsx", "BaseDatos_Preu.xlsx", "Workbook path for the xlsx backend")
	f.String("dsn", "", "Database for the sqlite and postgres backends")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	addBackendFlags(f)
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "es", "Default UI language (es, en)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /preu)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("session-secret", "", "HMAC key for session cookies (random when empty)")
	f.Duration("session-ttl", 12*time.Hour, "How long a login lasts")
	f.Duration("exam-ttl", 6*time.Hour, "Forget exam sessions idle for this long")
	f.Bool("shuffle", true, "Randomize questions in bank exams")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the exam API (repeatable)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the LLM")
	f.String("llm-model", "", "LLM model for question drafting (empty disables drafting)")
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags, the environment and an optional
// config file to a fresh viper instance. A .env file in the working
// directory is loaded into the environment first.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("error reading .env", "error", err)
	}

	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SIMULADOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("simulador")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/simulador")
	v.AddConfigPath("/etc/simulador")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// backendConfig maps the backend flags onto a sheet.Config.
func backendConfig(v *viper.Viper) sheet.Config {
	return sheet.Config{
		Kind: sheet.Kind(strings.ToLower(v.GetString("backend"))),
		Google: sheet.GoogleConfig{
			SpreadsheetID:   v.GetString("spreadsheet-id"),
			SpreadsheetName: v.GetString("spreadsheet-name"),
			CredentialsJSON: []byte(v.GetString("credentials-json")),
			CredentialsFile: v.GetString("credentials-file"),
		},
		Path: v.GetString("xlsx"),
		DSN:  v.GetString("dsn"),
	}
}

// source names the spreadsheet for logs and exports.
func source(cfg sheet.Config) string {
	switch cfg.Kind {
	case sheet.KindGoogle:
		if cfg.Google.SpreadsheetID != "" {
			return cfg.Google.SpreadsheetID
		}
		return cfg.Google.SpreadsheetName
	case sheet.KindXLSX:
		return cfg.Path
	}
	return string(cfg.Kind)
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	cfg := backendConfig(v)
	b, err := sheet.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	slog.Debug("opened spreadsheet", "backend", cfg.Kind, "source", source(cfg))
	return store.New(b), nil
}

// normalizeBasePath returns "" or a path with a leading and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	// A missing worksheet or column is reported on the pages too; here it
	// only warns so the server still starts.
	if n, err := db.QuestionCount(ctx); err != nil {
		slog.Warn("spreadsheet check failed", "error", err)
	} else {
		slog.Info("spreadsheet OK", "questions", n)
	}

	var drafter handler.Drafter
	if modelName := v.GetString("llm-model"); modelName != "" {
		client, err := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), modelName)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", modelName)
		drafter = client
	}

	sessions, err := auth.NewSessions(v.GetString("session-secret"), v.GetDuration("session-ttl"))
	if err != nil {
		return err
	}
	if v.GetString("session-secret") == "" {
		slog.Warn("no session secret configured; logins end when the server restarts")
	}

	exams := exam.NewRegistry(v.GetDuration("exam-ttl"), nil)
	go exams.Run(ctx, time.Minute)

	basePath := normalizeBasePath(v.GetString("base-path"))
	cfg := model.AppConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		DefaultLang:   lang,
		ShuffleBank:   v.GetBool("shuffle"),
	}
	h, err := handler.New(db, exams, sessions, drafter, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	corsOrigins := v.GetStringSlice("cors-origins")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub, corsOrigins)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r, corsOrigins)
	}

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", srv.Addr,
			"backend", v.GetString("backend"),
			"lang", lang,
			"base_path", basePath,
			"drafting", drafter != nil,
			"shuffle", cfg.ShuffleBank,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
