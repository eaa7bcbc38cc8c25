package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-qris/payment/order"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const mainContentJS = `(function() {
	const el = document.querySelector('[class*="content"], [class*="main"], main, [role="main"]');
	return el ? el.textContent : "";
})()`

type Config struct {
	ExecPath    string // empty: let chromedp find Chrome
	Headless    bool
	UserAgent   string
	SettleDelay time.Duration // after navigation, for client side rendering
}

func DefaultConfig() Config {
	return Config{
		Headless:    true,
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		SettleDelay: 3 * time.Second,
	}
}

// Session holds the browser allocator. Every RenderPage launches its own
// Chrome from it with the most recently stored cookies and shuts that Chrome
// down when the render ends, so a cookie upload takes effect on the next
// render without a restart.
type Session struct {
	cfg     Config
	cookies *CookieStore
	logger  *zap.Logger

	mu       sync.Mutex
	allocCtx context.Context
	cancel   context.CancelFunc
}

func NewSession(cfg Config, cookies *CookieStore, logger *zap.Logger) *Session {
	return &Session{cfg: cfg, cookies: cookies, logger: logger}
}

// Open prepares the browser allocator. No Chrome process runs until a render.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allocCtx != nil {
		return errors.New("browser session already open")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}
	s.allocCtx, s.cancel = chromedp.NewExecAllocator(ctx, opts...)
	return nil
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.allocCtx, s.cancel = nil, nil
}

func (s *Session) RenderPage(ctx context.Context, url string) (order.Page, error) {
	cookies, err := s.cookies.Load()
	if errors.Is(err, ErrNoCookies) {
		return order.Page{}, order.ErrNotAuthenticated
	}
	if err != nil {
		return order.Page{}, err
	}

	s.mu.Lock()
	allocCtx := s.allocCtx
	s.mu.Unlock()
	if allocCtx == nil {
		return order.Page{}, errors.New("browser session not open")
	}

	browserCtx, closeBrowser := chromedp.NewContext(allocCtx)
	defer closeBrowser()
	stop := context.AfterFunc(ctx, closeBrowser)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		browserCtx, cancel = context.WithDeadline(browserCtx, deadline)
		defer cancel()
	}

	var location, text, main string
	err = chromedp.Run(browserCtx,
		network.SetCookies(toCookieParams(cookies)),
		chromedp.Navigate(url),
		chromedp.Sleep(s.cfg.SettleDelay),
		chromedp.Location(&location),
	)
	if err != nil {
		return order.Page{}, fmt.Errorf("navigate %s: %w", url, err)
	}
	if isLoginURL(location) {
		s.logger.Warn("redirected to login", zap.String("url", url), zap.String("location", location))
		return order.Page{}, order.ErrNotAuthenticated
	}

	err = chromedp.Run(browserCtx,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
		chromedp.Evaluate(mainContentJS, &main),
	)
	if err != nil {
		return order.Page{}, fmt.Errorf("read %s: %w", url, err)
	}
	s.logger.Debug("rendered page", zap.String("url", location), zap.Int("chars", len(text)))
	return order.Page{URL: location, Text: text, MainContent: main}, nil
}

func isLoginURL(location string) bool {
	return strings.Contains(strings.ToLower(location), "login")
}
