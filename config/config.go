package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"go-qris/payment/browser"
	"go-qris/payment/order"
	"go-qris/utils"
	"go-qris/web/email"
)

type Config struct {
	Env           string
	Port          string
	DSN           string
	Secret        string
	AdminPassword string
	StoragePath   string
	CookiesPath   string
	APIRateLimit  int
	ExpiryMinutes int
	CORSOrigins   []string

	Browser    browser.Config
	Extractor  order.ExtractorConfig
	Fetcher    order.FetcherConfig
	Reconciler order.ReconcilerConfig
	Monitor    order.MonitorConfig
	SMTP       email.Config
}

func (c Config) Development() bool {
	return c.Env == "development"
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	utils.LoadEnv()

	cfg := Config{
		Env:           utils.GetEnv("APP_ENV", "production"),
		Port:          utils.GetEnv("GIN_PORT", "8080"),
		DSN:           utils.GetEnv("DB", ""),
		Secret:        utils.GetEnv("SECRET", ""),
		AdminPassword: utils.GetEnv("ADMIN_PASSWORD", ""),
		StoragePath:   utils.GetEnv("QRIS_STORAGE_PATH", "public/qris"),
		CookiesPath:   utils.GetEnv("COOKIES_PATH", "tokopedia-cookies.json"),
		APIRateLimit:  int(utils.GetEnvInt("API_RATE_LIMIT", 120)),
		ExpiryMinutes: int(utils.GetEnvInt("DEFAULT_EXPIRY_MINUTES", 15)),
	}
	for _, origin := range strings.Split(utils.GetEnv("CORS_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	b := browser.DefaultConfig()
	b.ExecPath = utils.GetEnv("CHROME_PATH", "")
	b.Headless = utils.GetEnvBool("BROWSER_HEADLESS", b.Headless)
	b.UserAgent = utils.GetEnv("BROWSER_USER_AGENT", b.UserAgent)
	b.SettleDelay = utils.GetEnvDuration("PAGE_SETTLE_DELAY", b.SettleDelay)
	cfg.Browser = b

	loc, err := time.LoadLocation(utils.GetEnv("SOURCE_TIMEZONE", "Asia/Jakarta"))
	if err != nil {
		return cfg, fmt.Errorf("SOURCE_TIMEZONE: %w", err)
	}
	e := order.DefaultExtractorConfig()
	e.Location = loc
	e.NoiseFloor = utils.GetEnvInt("AMOUNT_NOISE_FLOOR", e.NoiseFloor)
	e.Ceiling = utils.GetEnvInt("AMOUNT_CEILING", e.Ceiling)
	cfg.Extractor = e

	f := order.DefaultFetcherConfig()
	f.PendingURL = utils.GetEnv("PAYMENT_LIST_URL", f.PendingURL)
	f.ProcessedURL = utils.GetEnv("ORDER_LIST_URL", f.ProcessedURL)
	f.GateWait = utils.GetEnvDuration("GATE_WAIT", f.GateWait)
	f.MaxRetries = int(utils.GetEnvInt("FETCH_MAX_RETRIES", int64(f.MaxRetries)))
	f.RetryDelay = utils.GetEnvDuration("FETCH_RETRY_DELAY", f.RetryDelay)
	f.PageTimeout = utils.GetEnvDuration("PAGE_TIMEOUT", f.PageTimeout)
	f.MinInterval = utils.GetEnvDuration("FETCH_MIN_INTERVAL", f.MinInterval)
	f.AutoMatchTolerance = utils.GetEnvInt("AUTO_MATCH_TOLERANCE", f.AutoMatchTolerance)
	f.AlertInterval = utils.GetEnvDuration("ALERT_INTERVAL", f.AlertInterval)
	cfg.Fetcher = f

	r := order.DefaultReconcilerConfig()
	r.CheckDelay = utils.GetEnvDuration("CHECK_DELAY", r.CheckDelay)
	r.DeadlineTolerance = utils.GetEnvDuration("DEADLINE_TOLERANCE", r.DeadlineTolerance)
	cfg.Reconciler = r

	m := order.DefaultMonitorConfig()
	m.ReconcileInterval = utils.GetEnvDuration("RECONCILE_INTERVAL", m.ReconcileInterval)
	m.ExpiryInterval = utils.GetEnvDuration("EXPIRY_SWEEP_INTERVAL", m.ExpiryInterval)
	m.LogRetention = utils.GetEnvDuration("LOG_RETENTION", m.LogRetention)
	cfg.Monitor = m

	cfg.SMTP = email.Config{
		Server:   utils.GetEnv("SMTP_SERVER", ""),
		Port:     utils.GetEnv("SMTP_PORT", ""),
		User:     utils.GetEnv("SMTP_USER", ""),
		Pass:     utils.GetEnv("SMTP_PASS", ""),
		FromAddr: utils.GetEnv("FROM_ADDR", ""),
		FromName: utils.GetEnv("FROM_NAME", "QRIS Tracker"),
		AlertTo:  utils.GetEnv("ALERT_TO", ""),
	}

	if cfg.DSN == "" {
		return cfg, fmt.Errorf("DB is not set")
	}
	if cfg.Secret == "" {
		return cfg, fmt.Errorf("SECRET is not set")
	}
	if cfg.AdminPassword == "" {
		return cfg, fmt.Errorf("ADMIN_PASSWORD is not set")
	}
	return cfg, nil
}
