// Package browser drives a headless Chromium session that renders search result pages.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"github.com/rossigee/slot-rank-tracker/internal/metrics"
	"github.com/rossigee/slot-rank-tracker/internal/retry"
)

// Browser identity presented to the target site
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "ko-KR,ko;q=0.9,en;q=0.8"
)

const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined })`

// Config holds browser session settings
type Config struct {
	Bin            string
	Headless       bool
	NoSandbox      bool
	UserAgent      string
	AcceptLanguage string
	NavTimeout     time.Duration
	// ReadySelector is awaited after each navigation; empty skips the wait
	ReadySelector string
	ReadyTimeout  time.Duration
	Launch        retry.Config
}

// DefaultConfig returns settings matching a desktop Chrome visitor
func DefaultConfig() Config {
	return Config{
		Headless:       true,
		UserAgent:      DefaultUserAgent,
		AcceptLanguage: DefaultAcceptLanguage,
		NavTimeout:     30 * time.Second,
		ReadyTimeout:   10 * time.Second,
		Launch: retry.Config{
			MaxAttempts: 3,
			Delays:      []time.Duration{time.Second, 3 * time.Second},
		},
	}
}

// Session is one browser with a single reusable tab
type Session struct {
	cfg     Config
	launch  *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
}

// Launch starts Chromium, retrying per cfg.Launch, and opens a prepared tab
func Launch(ctx context.Context, cfg Config) (*Session, error) {
	var session *Session
	err := retry.WithRetry(ctx, cfg.Launch, "launch browser", func() error {
		s, err := launch(ctx, cfg)
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithField("headless", cfg.Headless).Info("Browser session started")
	return session, nil
}

func launch(ctx context.Context, cfg Config) (*Session, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Set(flags.Flag("blink-settings"), "imagesEnabled=false").
		Set(flags.Flag("lang"), "ko-KR").
		Set(flags.Flag("window-size"), "1920,1080")
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch chrome: %w", err)
	}

	s := &Session{cfg: cfg, launch: l}

	s.browser = rod.New().ControlURL(controlURL).Context(ctx)
	if err := s.browser.Connect(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}

	s.page, err = s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := s.prepare(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) prepare() error {
	if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.cfg.UserAgent,
		AcceptLanguage: s.cfg.AcceptLanguage,
	}); err != nil {
		return fmt.Errorf("failed to set user agent: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(s.page); err != nil {
		logrus.WithError(err).Warn("Failed to set viewport")
	}

	if _, err := s.page.EvalOnNewDocument(hideWebdriver); err != nil {
		return fmt.Errorf("failed to install page script: %w", err)
	}
	return nil
}

// Fetch navigates to pageURL, waits until a result card selector matches or the ready
// timeout passes, and returns the rendered HTML. A page that never shows results is
// not an error; its HTML is returned as is.
func (s *Session) Fetch(ctx context.Context, pageURL string) (string, error) {
	page := s.page.Context(ctx)

	if err := page.Timeout(s.cfg.NavTimeout).Navigate(pageURL); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	metrics.PagesFetched.Inc()

	if s.cfg.ReadySelector != "" {
		if _, err := page.Timeout(s.cfg.ReadyTimeout).Element(s.cfg.ReadySelector); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("failed waiting for results on %s: %w", pageURL, err)
			}
			logrus.WithField("url", pageURL).Debug("No result cards before ready timeout")
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return html, nil
}

// Close releases the tab, the browser and its process
func (s *Session) Close() error {
	var errs []error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		s.browser = nil
	}
	s.cleanup()
	return errors.Join(errs...)
}

func (s *Session) cleanup() {
	if s.launch != nil {
		s.launch.Kill()
		s.launch.Cleanup()
		s.launch = nil
	}
}
