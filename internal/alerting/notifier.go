package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wallet-x-search/internal/model"
)

// RunSummary describes a finished (or interrupted) search run.
type RunSummary struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Stats     model.RunStats
	Remaining int
	Complete  bool
	Err       error
}

// Notifier delivers run summaries.
type Notifier interface {
	Notify(ctx context.Context, summary RunSummary) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered summary.
func (n *TelegramNotifier) Notify(ctx context.Context, summary RunSummary) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(summary),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("run_id", summary.RunID).
		Int("processed", summary.Stats.Processed).
		Bool("complete", summary.Complete).
		Msg("run summary sent (Telegram)")
	return nil
}

func renderMessage(s RunSummary) string {
	builder := strings.Builder{}
	builder.WriteString("[Wallet X Search]\n")
	builder.WriteString(fmt.Sprintf("Run: %s\n", s.RunID))
	if !s.Finished.IsZero() {
		builder.WriteString(fmt.Sprintf("Finished: %s UTC (%s)\n", s.Finished.UTC().Format(time.RFC3339), s.Finished.Sub(s.Started).Round(time.Second)))
	}
	builder.WriteString(fmt.Sprintf("Processed: %d/%d\n", s.Stats.Processed, s.Stats.Total))
	builder.WriteString(fmt.Sprintf("Posts found: %d\n", s.Stats.PostsFound))
	builder.WriteString(fmt.Sprintf("Handles identified: %d (hit rate %s%%)\n", s.Stats.HandlesFound, s.Stats.HitRate().StringFixed(1)))
	builder.WriteString(fmt.Sprintf("Errors: %d\n", s.Stats.Errors))
	if s.Complete {
		builder.WriteString("Status: complete\n")
	} else {
		builder.WriteString(fmt.Sprintf("Status: %d wallets remaining\n", s.Remaining))
	}
	if s.Err != nil {
		builder.WriteString(fmt.Sprintf("Error: %v\n", s.Err))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
