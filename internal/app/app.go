package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/tourbook/internal/audit"
	"github.com/hitoshi/tourbook/internal/config"
	"github.com/hitoshi/tourbook/internal/database"
	"github.com/hitoshi/tourbook/internal/gateway"
	"github.com/hitoshi/tourbook/internal/handler"
	"github.com/hitoshi/tourbook/internal/logger"
	"github.com/hitoshi/tourbook/internal/metrics"
	"github.com/hitoshi/tourbook/internal/middleware"
	"github.com/hitoshi/tourbook/internal/notify"
	"github.com/hitoshi/tourbook/internal/repository"
	"github.com/hitoshi/tourbook/internal/security"
	"github.com/hitoshi/tourbook/internal/session"
	"github.com/hitoshi/tourbook/internal/token"
	"github.com/hitoshi/tourbook/internal/worker/cleanup"
)

// errDatabaseRequired はDATABASE_URLが必要なコマンドで未設定だった場合のエラー。
var errDatabaseRequired = errors.New("DATABASE_URL is required for this command")

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再構成する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if cmd.RequiresDatabase() && !cfg.AuditEnabled() {
		return fmt.Errorf("%s: %w", cmd, errDatabaseRequired)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("audit_enabled", cfg.AuditEnabled()),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase は監査ログ用のDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database connection established")
	return db, nil
}

// newHTTPHandler は全依存関係をワイヤリングしたHTTPハンドラーと、終了時の後始末関数を返す。
// dbがnilの場合は監査ログを無効にする。
func newHTTPHandler(cfg *config.Config, log *slog.Logger, db *sql.DB) (http.Handler, func(), error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. トークンとゲートウェイ
	codec := token.NewCodec(cfg.TokenSharedSecret)
	var verifyKey []byte
	if cfg.TokenVerifyKey != "" {
		verifyKey = []byte(cfg.TokenVerifyKey)
	}
	parser := token.NewParser(verifyKey)

	gw := gateway.NewClient(
		&http.Client{Timeout: cfg.GatewayTimeout},
		log,
		gateway.Config{
			BaseURL:     cfg.GatewayURL,
			Mode:        cfg.GatewayMode,
			LoginPath:   cfg.GatewayLoginPath,
			GraphQLPath: cfg.GatewayGraphQLPath,
		},
		gateway.WithSanitizer(security.NewMessageSanitizer(security.DefaultMaxMessageLength)),
		gateway.WithLatencyRecorder(collector),
	)

	gatewayURL, err := url.Parse(cfg.GatewayURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid gateway url: %w", err)
	}

	// 3. ルートガード
	guard := middleware.NewRouteGuard(middleware.GuardConfig{
		ProtectedRoutes: cfg.ProtectedRoutes,
		AuthRoutes:      cfg.AuthRoutes,
		LoginRoute:      cfg.LoginRoute,
		LandingRoute:    cfg.LandingRoute,
	}, parser,
		middleware.WithGuardRecorder(collector),
		middleware.WithGuardLogger(log),
	)

	// 4. タブ間通知と監査ログ
	var origins []string
	if cfg.CORSAllowedOrigin != "" {
		origins = append(origins, cfg.CORSAllowedOrigin)
	}
	hub := notify.NewHub(log, origins...)

	authOpts := []handler.AuthHandlerOption{
		handler.WithSessionMetrics(collector),
		handler.WithSessionNotifier(hub),
		handler.WithAuthLogger(log),
	}
	var recorder *audit.Recorder
	var pinger handler.Pinger
	if db != nil {
		recorder = audit.NewRecorder(repository.NewPostgresAuthEventRepo(db), log)
		authOpts = append(authOpts, handler.WithAuditRecorder(recorder))
		pinger = db
	}

	authHandler := handler.NewAuthHandler(gw, handler.AuthHandlerConfig{
		Codec:  codec,
		Parser: parser,
		Cookie: session.CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
			MaxAge: cfg.CookieMaxAge,
		},
		LoginRoute:   cfg.LoginRoute,
		LandingRoute: cfg.LandingRoute,
	}, authOpts...)

	// 5. レート制限（設定はreq/min単位なのでreq/secに変換する）
	rlConfig := middleware.DefaultRateLimiterConfig()
	rlConfig.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlConfig.GeneralBurst = cfg.RateLimitGeneral
	rlConfig.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
	rlConfig.LoginBurst = cfg.RateLimitLogin
	rateLimiter := middleware.NewRateLimiter(rlConfig)

	// 6. ルーター
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		Guard:             guard,
		RateLimiter:       rateLimiter,
		StatusRecorder:    collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CookieSecure:      cfg.CookieSecure,
		CookieDomain:      cfg.CookieDomain,
		Auth:              authHandler,
		APIProxy:          gateway.NewAPIProxy(gatewayURL, "/api", guard.TokenFromRequest, log),
		MetricsHandler:    metrics.Handler(registry),
		Health:            handler.NewHealthHandler(pinger),
		Static:            os.DirFS(cfg.StaticDir),
	})

	closeFn := func() {
		rateLimiter.Stop()
		hub.Close()
		if recorder != nil {
			recorder.Close()
		}
	}
	return router, closeFn, nil
}

// runServe はサーバーモードで起動する。
// DATABASE_URLが設定されていれば監査ログを有効にする。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	var db *sql.DB
	if cfg.AuditEnabled() {
		var err error
		db, err = openDatabase(cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
	}

	router, closeFn, err := newHTTPHandler(cfg, slog.Default(), db)
	if err != nil {
		return err
	}
	defer closeFn()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 監査ログの保持期間を超えたイベントを日次で削除する。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(repository.NewPostgresAuthEventRepo(db), slog.Default())
	job.RetentionDays = cfg.AuditRetentionDays

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting", slog.Int("retention_days", job.RetentionDays))
	job.RunEvery(ctx, 24*time.Hour)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
