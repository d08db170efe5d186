// Package telegram processes webhook updates from the Telegram Bot API
// and sends replies back. Updates are deduplicated through the store
// ledger before any side effect runs.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/northhybrid/norte/internal/llm"
	"github.com/northhybrid/norte/internal/store"
)

const (
	sendRetries     = 3
	sendBackoffStep = 300 * time.Millisecond
	requestTimeout  = 15 * time.Second
	voiceMaxBytes   = 20 << 20
)

// ChatService is the conversational core the connector forwards
// messages to.
type ChatService interface {
	Chat(ctx context.Context, telegramID, message string) (string, error)
}

// UpdateLedger claims webhook deliveries so replays cause no side
// effects.
type UpdateLedger interface {
	MarkUpdateProcessed(ctx context.Context, input store.MarkUpdateProcessedInput) (bool, error)
}

type Connector struct {
	token       string
	apiBase     string
	chat        ChatService
	ledger      UpdateLedger
	transcriber llm.Transcriber
	httpClient  *http.Client
	logger      *slog.Logger
}

func New(token, apiBase string, chat ChatService, ledger UpdateLedger, transcriber llm.Transcriber, logger *slog.Logger) *Connector {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = "https://api.telegram.org"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		token:       strings.TrimSpace(token),
		apiBase:     strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		chat:        chat,
		ledger:      ledger,
		transcriber: transcriber,
		httpClient:  &http.Client{},
		logger:      logger.With("component", "telegram"),
	}
}

func (c *Connector) Name() string {
	return "telegram"
}

func (c *Connector) Enabled() bool {
	return c.token != ""
}

// HandleUpdate processes one webhook delivery end to end: claim the
// update id, resolve the text (transcribing voice notes when needed),
// run the chat and send the reply. A failed turn sends a best-effort
// error notice so the user is not left hanging.
func (c *Connector) HandleUpdate(ctx context.Context, update Update) error {
	if update.Message == nil {
		return nil
	}
	message := *update.Message
	chatID := message.Chat.ID
	telegramID := strconv.FormatInt(message.From.ID, 10)

	first, err := c.ledger.MarkUpdateProcessed(ctx, store.MarkUpdateProcessedInput{
		UpdateID:       update.UpdateID,
		TelegramUserID: telegramID,
		ChatID:         strconv.FormatInt(chatID, 10),
		MessageID:      message.MessageID,
	})
	if err != nil {
		return fmt.Errorf("claim update %d: %w", update.UpdateID, err)
	}
	if !first {
		c.logger.Info("update already processed, skipping", "update_id", update.UpdateID)
		return nil
	}

	text := strings.TrimSpace(message.Text)
	if text == "" && message.Voice != nil {
		text, err = c.transcribeVoice(ctx, *message.Voice)
		if err != nil {
			c.logger.Error("voice transcription failed", "error", err, "update_id", update.UpdateID)
			c.sendNotice(ctx, chatID, "❌ No pude entender el audio, ¿me lo escribes?")
			return nil
		}
	}
	if text == "" {
		return nil
	}

	// No command surface: /start becomes a greeting and any other
	// slash command is treated as plain conversation.
	if text == "/start" {
		text = "hola"
	}
	text = strings.TrimSpace(strings.TrimPrefix(text, "/"))
	if text == "" {
		return nil
	}

	c.sendTyping(ctx, chatID)

	reply, err := c.chat.Chat(ctx, telegramID, text)
	if err != nil {
		c.logger.Error("chat turn failed", "error", err, "telegram_id", telegramID)
		c.sendNotice(ctx, chatID, "❌ Algo ha fallado, inténtalo de nuevo en un momento.")
		return err
	}
	if strings.TrimSpace(reply) == "" {
		reply = "No pude generar una respuesta."
	}
	return c.SendMessage(ctx, chatID, reply)
}

// SetWebhook points the bot at the given public URL.
func (c *Connector) SetWebhook(ctx context.Context, webhookURL string) error {
	endpoint := fmt.Sprintf("%s/bot%s/setWebhook?url=%s", c.apiBase, c.token, url.QueryEscape(webhookURL))
	var response apiResponse
	if err := c.callWithRetry(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("telegram setWebhook failed: %s", response.Description)
	}
	return nil
}

func (c *Connector) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)
	var response apiResponse
	if err := c.callWithRetry(ctx, http.MethodPost, endpoint, payload, &response); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("telegram sendMessage failed: %s", response.Description)
	}
	return nil
}

func (c *Connector) sendTyping(ctx context.Context, chatID int64) {
	payload, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	})
	if err != nil {
		return
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendChatAction", c.apiBase, c.token)
	var response apiResponse
	if err := c.callWithRetry(ctx, http.MethodPost, endpoint, payload, &response); err != nil {
		c.logger.Debug("typing action failed", "error", err)
	}
}

func (c *Connector) sendNotice(ctx context.Context, chatID int64, text string) {
	if err := c.SendMessage(ctx, chatID, text); err != nil {
		c.logger.Warn("error notice delivery failed", "error", err, "chat_id", chatID)
	}
}

func (c *Connector) transcribeVoice(ctx context.Context, voice Voice) (string, error) {
	if c.transcriber == nil {
		return "", fmt.Errorf("transcriber not configured")
	}
	filePath, err := c.lookupFilePath(ctx, voice.FileID)
	if err != nil {
		return "", err
	}
	audio, err := c.downloadFile(ctx, filePath)
	if err != nil {
		return "", err
	}
	text, err := c.transcriber.Transcribe(ctx, audio, "voice.ogg")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Connector) lookupFilePath(ctx context.Context, fileID string) (string, error) {
	endpoint := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", c.apiBase, c.token, url.QueryEscape(fileID))
	var payload struct {
		OK     bool `json:"ok"`
		Result struct {
			FilePath string `json:"file_path"`
		} `json:"result"`
	}
	if err := c.callWithRetry(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	if !payload.OK || strings.TrimSpace(payload.Result.FilePath) == "" {
		return "", fmt.Errorf("telegram getFile failed")
	}
	return payload.Result.FilePath, nil
}

func (c *Connector) downloadFile(ctx context.Context, filePath string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/file/bot%s/%s", c.apiBase, c.token, strings.TrimLeft(filePath, "/"))

	attemptCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram file download failed with status %d", res.StatusCode)
	}
	return io.ReadAll(io.LimitReader(res.Body, voiceMaxBytes))
}

// callWithRetry issues a Bot API call with linear backoff. Each attempt
// gets its own timeout so a hung connection cannot block the webhook.
func (c *Connector) callWithRetry(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt < sendRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * sendBackoffStep):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.callOnce(ctx, method, endpoint, body, out)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Connector) callOnce(ctx context.Context, method, endpoint string, body []byte, out any) error {
	attemptCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	return nil
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      User   `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
	Voice     *Voice `json:"voice"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	MimeType string `json:"mime_type"`
}
