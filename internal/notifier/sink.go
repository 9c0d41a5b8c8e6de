package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/habitual/internal/constants"
)

var (
	userConfigDirFunc = os.UserConfigDir
	findProcessFunc   = ps.FindProcess
)

// Sink delivers a fired reminder.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// TraySink posts reminders to the habitual-tray companion app over its
// local webhook.
type TraySink struct {
	Retries    int
	RetryDelay time.Duration
}

type WebhookPayload struct {
	Text       string `json:"text"`
	DurationMs uint32 `json:"duration_ms"`
}

func NewTraySink() *TraySink {
	return &TraySink{
		Retries:    constants.NotifyMaxRetries,
		RetryDelay: constants.NotifyRetryDelay,
	}
}

func (s *TraySink) Name() string { return string(constants.SinkTray) }

func (s *TraySink) Deliver(ctx context.Context, msg Message) error {
	port, secret, err := locateTray()
	if err != nil {
		return err
	}

	payload := WebhookPayload{
		Text:       msg.Text(),
		DurationMs: constants.NotificationDurationMs,
	}

	var lastErr error
	for attempt := 0; attempt < max(s.Retries, 1); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.RetryDelay):
			}
		}
		if lastErr = sendNotification(ctx, port, secret, payload); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func locateTray() (port, secret string, err error) {
	dir, err := GetTrayAppConfigDir()
	if err != nil {
		return "", "", err
	}
	return findAndValidateTrayProcess(filepath.Join(dir, constants.NotifierLockfileName))
}

// TrayStatus returns nil when the tray app is running and its lockfile is valid.
func TrayStatus() error {
	_, _, err := locateTray()
	return err
}

// GetTrayAppConfigDir returns the configuration directory used by the tray application.
func GetTrayAppConfigDir() (string, error) {
	configDir, err := userConfigDirFunc()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}

	trayConfigDir := filepath.Join(configDir, constants.TrayAppIdentifier)

	// settings.json may point the lockfile somewhere else
	data, err := os.ReadFile(filepath.Join(trayConfigDir, "settings.json"))
	if err == nil {
		var store struct {
			Settings struct {
				LockfileDir *string `json:"lockfile_dir"`
			} `json:"settings"`
		}
		if err := json.Unmarshal(data, &store); err == nil {
			if store.Settings.LockfileDir != nil && *store.Settings.LockfileDir != "" {
				return *store.Settings.LockfileDir, nil
			}
		}
	}

	return trayConfigDir, nil
}

// findAndValidateTrayProcess reads a "port|pid|secret" lockfile and checks
// that pid still belongs to the tray app.
func findAndValidateTrayProcess(lockfilePath string) (string, string, error) {
	content, err := os.ReadFile(lockfilePath)
	if err != nil {
		return "", "", errors.New(constants.TrayExecutablePrefix + " is not running")
	}

	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 3 {
		return "", "", errors.New("lockfile is malformed")
	}

	port := strings.TrimSpace(parts[0])
	if port == "" {
		return "", "", errors.New("port in lockfile is empty")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return "", "", errors.New("invalid port number in lockfile")
	}
	if portNum < 1 || portNum > 65535 {
		return "", "", fmt.Errorf("port number %d is outside valid range (1-65535)", portNum)
	}

	pid, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", "", errors.New("invalid process ID in lockfile")
	}
	secret := parts[2]
	if strings.TrimSpace(secret) == "" {
		return "", "", errors.New("secret in lockfile is empty")
	}

	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return "", "", errors.New(constants.TrayExecutablePrefix + " process not running")
	}

	if !strings.HasPrefix(process.Executable(), constants.TrayExecutablePrefix) {
		return "", "", fmt.Errorf("process with PID %d is not %s (is %s)", pid, constants.TrayExecutablePrefix, process.Executable())
	}

	return port, secret, nil
}

func sendNotification(ctx context.Context, port string, secret string, payload WebhookPayload) error {
	url := fmt.Sprintf("http://127.0.0.1:%s", port)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Habitual-Secret", secret)

	client := &http.Client{Timeout: 5 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(res.Body)
	return fmt.Errorf("notification failed with status %d: %s", res.StatusCode, string(body))
}

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	bodyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// StdoutSink prints reminders, for headless machines and --dry-run.
type StdoutSink struct {
	Out   io.Writer
	Plain bool
}

func NewStdoutSink(w io.Writer) *StdoutSink {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutSink{Out: w}
}

func (s *StdoutSink) Name() string { return string(constants.SinkStdout) }

func (s *StdoutSink) Deliver(_ context.Context, msg Message) error {
	if s.Plain {
		_, err := fmt.Fprintf(s.Out, "%s %s\n", msg.Title, msg.Body)
		return err
	}
	_, err := fmt.Fprintf(s.Out, "🔔 %s %s\n", titleStyle.Render(msg.Title), bodyStyle.Render(msg.Body))
	return err
}

// NewSink returns the sink configured by name.
func NewSink(name string, out io.Writer) (Sink, error) {
	switch constants.SinkType(name) {
	case constants.SinkTray:
		return NewTraySink(), nil
	case constants.SinkStdout:
		return NewStdoutSink(out), nil
	default:
		return nil, fmt.Errorf("unknown sink: %s", name)
	}
}
