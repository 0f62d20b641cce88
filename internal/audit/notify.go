// internal/audit/notify.go
package audit

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/config"
)

// SendMailFunc matches net/smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// NotifyReport records which channels a notification reached.
type NotifyReport struct {
	Logged       bool
	Emailed      bool
	Webhook      bool
	IncidentFile string
	RateLimited  bool
	Errors       []string
}

// Notifier fans a high-risk event out to the log, e-mail, a webhook, and an
// incident file. E-mail and webhook share one rate limit.
type Notifier struct {
	smtp        config.SMTPConfig
	recipient   string
	webhookURL  string
	incidentDir string
	httpClient  *http.Client
	limiter     *rate.Limiter
	sendMail    SendMailFunc
	logger      *zap.Logger
}

// NewNotifier configures the channels present in cfg.
func NewNotifier(cfg config.AuditConfig, logger *zap.Logger) *Notifier {
	interval := cfg.NotifyInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Notifier{
		smtp:        cfg.SMTP,
		recipient:   cfg.SecurityEmail,
		webhookURL:  cfg.WebhookURL,
		incidentDir: cfg.IncidentDir,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		sendMail:    smtp.SendMail,
		logger:      logger.Named("security_notifier"),
	}
}

// Notify delivers e on every configured channel. Channel failures are logged
// and reported, never returned.
func (n *Notifier) Notify(ctx context.Context, e schemas.SecurityEvent) NotifyReport {
	var rep NotifyReport
	n.logger.Error("High-risk security event",
		zap.String("event_id", e.ID),
		zap.String("event_type", e.EventType),
		zap.String("severity", string(e.Severity)),
		zap.Int("risk_score", e.RiskScore),
		zap.String("action", e.Action),
		zap.String("target", e.Target),
		zap.Strings("patterns", e.Patterns))
	rep.Logged = true

	if n.incidentDir != "" {
		path, err := n.writeIncident(e)
		if err != nil {
			rep.Errors = append(rep.Errors, err.Error())
		} else {
			rep.IncidentFile = path
		}
	}

	wantsRemote := n.emailConfigured() || n.webhookURL != ""
	if wantsRemote && !n.limiter.Allow() {
		rep.RateLimited = true
		n.logger.Debug("Remote notification suppressed by rate limit", zap.String("event_id", e.ID))
		return rep
	}
	if n.emailConfigured() {
		if err := n.email(e); err != nil {
			rep.Errors = append(rep.Errors, err.Error())
		} else {
			rep.Emailed = true
		}
	}
	if n.webhookURL != "" {
		if err := n.webhook(ctx, e); err != nil {
			rep.Errors = append(rep.Errors, err.Error())
		} else {
			rep.Webhook = true
		}
	}
	for _, msg := range rep.Errors {
		n.logger.Warn("Security notification channel failed", zap.String("event_id", e.ID), zap.String("error", msg))
	}
	return rep
}

func (n *Notifier) emailConfigured() bool {
	return n.smtp.Host != "" && n.recipient != ""
}

func (n *Notifier) email(e schemas.SecurityEvent) error {
	from := n.smtp.From
	if from == "" {
		from = n.smtp.User
	}
	port := n.smtp.Port
	if port == 0 {
		port = 587
	}
	var auth smtp.Auth
	if n.smtp.User != "" {
		auth = smtp.PlainAuth("", n.smtp.User, n.smtp.Password, n.smtp.Host)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\nTo: %s\r\n", from, n.recipient)
	fmt.Fprintf(&body, "Subject: [agent-s2] %s security event: %s\r\n", strings.ToUpper(string(e.Severity)), e.EventType)
	body.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&body, "Time: %s\r\nRisk: %d\r\nAction: %s\r\nTarget: %s\r\nPatterns: %s\r\nEvent: %s\r\n",
		e.Timestamp.Format(time.RFC3339), e.RiskScore, e.Action, e.Target, strings.Join(e.Patterns, ", "), e.ID)

	addr := net.JoinHostPort(n.smtp.Host, strconv.Itoa(port))
	if err := n.sendMail(addr, auth, from, []string{n.recipient}, []byte(body.String())); err != nil {
		return fmt.Errorf("sending security e-mail: %w", err)
	}
	return nil
}

func (n *Notifier) webhook(ctx context.Context, e schemas.SecurityEvent) error {
	payload, err := json.Marshal(map[string]any{
		"source": "agent-s2",
		"event":  e,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting security webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("security webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) writeIncident(e schemas.SecurityEvent) (string, error) {
	if err := os.MkdirAll(n.incidentDir, 0o750); err != nil {
		return "", fmt.Errorf("creating incident directory: %w", err)
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("incident-%s-%s.json", e.Timestamp.UTC().Format("20060102T150405Z"), e.ID)
	path := filepath.Join(n.incidentDir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("writing incident file: %w", err)
	}
	return path, nil
}
