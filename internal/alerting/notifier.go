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

	"energypulse/internal/model"
	"energypulse/internal/numeric"
)

// Notification 封装一次质量检查的告警上下文。
type Notification struct {
	RunID     string
	Location  string
	CheckedAt time.Time
	// Results holds only the verdicts at or above the alert threshold.
	Results []model.QualityCheckResult
	Total   int
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Triggering returns the verdicts whose severity reaches minStatus.
func Triggering(results []model.QualityCheckResult, minStatus model.QualityStatus) []model.QualityCheckResult {
	var out []model.QualityCheckResult
	for _, r := range results {
		if r.Status != model.StatusPass && r.Status.Severity() >= minStatus.Severity() {
			out = append(out, r)
		}
	}
	return out
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
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

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
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
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("run_id", note.RunID).
		Str("location", note.Location).
		Int("checks", len(note.Results)).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[EnergyPulse Quality Alert]\n")
	location := note.Location
	if location == "" {
		location = "all"
	}
	builder.WriteString(fmt.Sprintf("Location: %s\n", location))
	builder.WriteString(fmt.Sprintf("Checked: %s UTC\n", note.CheckedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Flagged: %d of %d checks\n", len(note.Results), note.Total))
	for _, r := range note.Results {
		builder.WriteString(fmt.Sprintf("- %s %s", strings.ToUpper(string(r.Status)), r.CheckName))
		if r.MetricValue != nil {
			builder.WriteString(fmt.Sprintf(" (value %s)", numeric.Fixed(*r.MetricValue, 2)))
		}
		builder.WriteString(": " + r.Message + "\n")
	}
	if note.RunID != "" {
		builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
