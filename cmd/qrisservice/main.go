package main

import (
	"context"
	stlog "log"
	"os/signal"
	"syscall"
	"time"

	"go-qris/config"
	"go-qris/payment/browser"
	"go-qris/payment/db"
	"go-qris/payment/events"
	"go-qris/payment/order"
	"go-qris/payment/qrcode"
	"go-qris/service"
	"go-qris/web/controllers"
	"go-qris/web/email"
	"go-qris/web/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		stlog.Fatalln("Error loading config:", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		stlog.Fatalln("Error creating logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Connect(cfg.DSN, logger)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	if err := db.Sync(conn); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	store := db.NewStore(conn)

	cookies := browser.NewCookieStore(cfg.CookiesPath)
	session := browser.NewSession(cfg.Browser, cookies, logger.Named("browser"))
	if err := session.Open(ctx); err != nil {
		logger.Fatal("failed to open browser session", zap.Error(err))
	}
	defer session.Close()

	mailer := email.NewMailer(cfg.SMTP)
	var alerter order.Alerter
	if mailer.Enabled() {
		alerter = mailer
	} else {
		logger.Warn("smtp or ALERT_TO not set, session alerts are disabled")
	}

	broker := events.NewBroker(32)
	gate := order.NewGate()
	extractor := order.NewTextExtractor(cfg.Extractor)
	fetcher := order.NewFetcher(cfg.Fetcher, gate, session, extractor, store, alerter, logger.Named("fetcher"))
	reconciler := order.NewReconciler(cfg.Reconciler, fetcher, store, broker, logger.Named("reconciler"))
	monitor := order.NewMonitor(cfg.Monitor, reconciler, store, broker, logger.Named("monitor"))

	auth, err := middleware.NewAdminAuth(cfg.Secret, cfg.AdminPassword, 24*time.Hour, !cfg.Development())
	if err != nil {
		logger.Fatal("failed to prepare admin auth", zap.Error(err))
	}

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Cache-Control", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	globalLimiter := middleware.NewRateLimiter(cfg.APIRateLimit, time.Minute)
	globalLimiter.StartCleanup(ctx, 10*time.Minute)

	logins := middleware.NewLoginLimiter(5, time.Minute, 5*time.Minute)
	logins.StartCleanup(ctx, 10*time.Minute)

	h := &controllers.Handler{
		Store:         store,
		Matcher:       fetcher,
		Checker:       reconciler,
		Images:        qrcode.NewStorage(cfg.StoragePath),
		Cookies:       cookies,
		Broker:        broker,
		Gate:          gate,
		Auth:          auth,
		Logins:        logins,
		ExpiryMinutes: cfg.ExpiryMinutes,
		Logger:        logger.Named("http"),
	}
	h.Register(r, globalLimiter.Middleware())

	go monitor.Run(ctx)

	if err := service.Start(ctx, "qrisservice", ":"+cfg.Port, r, logger); err != nil {
		logger.Error("service stopped", zap.Error(err))
	}
}
