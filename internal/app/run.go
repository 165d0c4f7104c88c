package app

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/abhishek0908/curelink/internal/auth"
	"github.com/abhishek0908/curelink/internal/chat"
	"github.com/abhishek0908/curelink/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run is the CLI entrypoint for the chat view. It returns an error instead of
// calling os.Exit to keep defers effective.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	creds, err := auth.Load(cfg.ConfigDir)
	if err != nil {
		return fmt.Errorf("run `curelink login <email>` first: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	// The program handle is assigned after the session starts; guard the
	// unauthorized callback against the brief window in between.
	var (
		progMu sync.Mutex
		prog   *tea.Program
	)

	session, err := chat.NewSession(log, chat.Options{
		BaseURL:          cfg.BaseURL,
		Token:            creds.Token,
		UserID:           creds.User.UserID,
		PageLimit:        cfg.PageLimit,
		ReconnectDelay:   cfg.ReconnectDelay,
		HandshakeTimeout: cfg.HandshakeTimeout,
		SendTimeout:      cfg.SendTimeout,
		HistoryTimeout:   cfg.HistoryTimeout,
		OnUnauthorized: func() {
			log.Info("auth.credentials.rejected")
			if err := auth.Clear(cfg.ConfigDir); err != nil {
				log.Error("auth.credentials.clear.fail", "err", err)
			}
			progMu.Lock()
			p := prog
			progMu.Unlock()
			if p != nil {
				p.Send(tui.UnauthorizedMsg{})
			}
		},
	})
	if err != nil {
		return err
	}
	defer session.Close()

	p := tea.NewProgram(tui.NewModel(session, creds.User.UserEmail), tea.WithAltScreen())

	progMu.Lock()
	prog = p
	progMu.Unlock()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// serveMetrics exposes the prometheus registry on a local debug listener.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	// Listener failure is not fatal to the chat session.
	_ = http.ListenAndServe(addr, mux)
}
