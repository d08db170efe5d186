package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/northhybrid/norte/internal/llm"
)

type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	ExtractorModel string
	Timeout        time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(cfg.ChatModel) == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if strings.TrimSpace(cfg.ExtractorModel) == "" {
		cfg.ExtractorModel = cfg.ChatModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

func (c *Client) Reply(ctx context.Context, input llm.ReplyInput) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" && requiresAPIKey(c.cfg.BaseURL) {
		return "", fmt.Errorf("%w: missing API key for %s", llm.ErrUnavailable, c.cfg.BaseURL)
	}
	if len(input.Messages) == 0 {
		return "", nil
	}

	messages := make([]map[string]string, 0, len(input.Messages))
	for _, m := range input.Messages {
		messages = append(messages, map[string]string{
			"role":    m.Role,
			"content": m.Content,
		})
	}

	payload := map[string]any{
		"model":    c.cfg.ChatModel,
		"messages": messages,
	}
	if input.Temperature > 0 {
		payload["temperature"] = input.Temperature
	}
	if input.MaxTokens > 0 {
		payload["max_tokens"] = input.MaxTokens
	}

	content, err := c.complete(ctx, payload)
	if err != nil {
		return "", err
	}
	return content, nil
}

const extractTrainingPrompt = `Eres un extractor de datos de entrenamiento. El usuario describe una o varias actividades físicas.
Devuelve SOLO un JSON con esta forma exacta:
{"exercises":[{"exercise":"...","sets":null,"reps":null,"weight":null,"time_seconds":null,"distance_km":null}]}
Reglas:
- "exercise" es obligatorio y en minúsculas (ej. "sentadilla", "press banca", "carrera").
- Usa null para cualquier métrica que el usuario no mencione. Nunca inventes números.
- "weight" en kilogramos, "time_seconds" en segundos totales, "distance_km" en kilómetros.
- Si el mensaje no describe entrenamiento, devuelve {"exercises":[]}.`

func (c *Client) ExtractTraining(ctx context.Context, text string) ([]llm.TrainingItem, error) {
	raw, err := c.completeJSON(ctx, c.cfg.ExtractorModel, extractTrainingPrompt, text)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Exercises []map[string]any `json:"exercises"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformedExtraction, err)
	}
	if parsed.Exercises == nil {
		return nil, fmt.Errorf("%w: missing exercises array", llm.ErrMalformedExtraction)
	}

	items := make([]llm.TrainingItem, 0, len(parsed.Exercises))
	for _, entry := range parsed.Exercises {
		name := strings.ToLower(strings.TrimSpace(stringField(entry, "exercise")))
		if name == "" {
			continue
		}
		items = append(items, llm.TrainingItem{
			Exercise:    name,
			Sets:        positiveInt(intField(entry, "sets")),
			Reps:        positiveInt(intField(entry, "reps")),
			Weight:      positiveFloat(floatField(entry, "weight")),
			TimeSeconds: positiveInt(intField(entry, "time_seconds")),
			DistanceKM:  positiveFloat(floatField(entry, "distance_km")),
		})
	}
	return items, nil
}

const extractProfilePrompt = `Eres un extractor de datos de perfil de un atleta. Recibes un JSON con "perfil_actual" (lo ya conocido) y "mensaje" (lo que acaba de decir).
Devuelve un JSON con un subconjunto de estas claves: "name", "goal", "level", "injuries", "availability", "preferences".
Incluye SOLO información nueva o corregida respecto a perfil_actual, con evidencia clara en el mensaje.
Omite cualquier clave sin información nueva. Si no hay nada, devuelve {}.`

func (c *Client) ExtractProfile(ctx context.Context, existing llm.ProfileFacts, text string) (llm.ProfileFacts, error) {
	request, err := json.Marshal(map[string]any{
		"perfil_actual": existing,
		"mensaje":       text,
	})
	if err != nil {
		return llm.ProfileFacts{}, fmt.Errorf("marshal profile request: %w", err)
	}

	raw, err := c.completeJSON(ctx, c.cfg.ExtractorModel, extractProfilePrompt, string(request))
	if err != nil {
		return llm.ProfileFacts{}, err
	}

	var facts llm.ProfileFacts
	if err := json.Unmarshal(raw, &facts); err != nil {
		return llm.ProfileFacts{}, fmt.Errorf("%w: %v", llm.ErrMalformedExtraction, err)
	}
	return facts, nil
}

const summarizePrompt = `Resume la conversación entre un atleta y su entrenador. Devuelve un JSON:
{"summary":"...","open_loops":["..."]}
"summary" son como máximo 10 líneas con los hechos y acuerdos importantes. "open_loops" son temas pendientes sin resolver (puede ser una lista vacía). Responde en español.`

func (c *Client) Summarize(ctx context.Context, transcript string) (llm.Summary, error) {
	raw, err := c.completeJSON(ctx, c.cfg.ExtractorModel, summarizePrompt, transcript)
	if err != nil {
		return llm.Summary{}, err
	}

	var parsed struct {
		Summary   string   `json:"summary"`
		OpenLoops []string `json:"open_loops"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return llm.Summary{}, fmt.Errorf("%w: %v", llm.ErrMalformedExtraction, err)
	}
	return llm.Summary{
		Summary:   strings.TrimSpace(parsed.Summary),
		OpenLoops: parsed.OpenLoops,
	}, nil
}

func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" && requiresAPIKey(c.cfg.BaseURL) {
		return "", fmt.Errorf("%w: missing API key for %s", llm.ErrUnavailable, c.cfg.BaseURL)
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("transcribe: empty audio payload")
	}
	if strings.TrimSpace(filename) == "" {
		filename = "voice.ogg"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}
	if err := writer.WriteField("model", "whisper-1"); err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	if apiKey := strings.TrimSpace(c.cfg.APIKey); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.logger.Error("openai transcription failed", "status", res.StatusCode, "body", strings.TrimSpace(string(respBody)))
		return "", fmt.Errorf("openai transcription failed with status %d", res.StatusCode)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}

// completeJSON runs a single system+user exchange with the JSON response
// format enabled and returns the raw JSON object the model produced.
func (c *Client) completeJSON(ctx context.Context, model, systemPrompt, userText string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" && requiresAPIKey(c.cfg.BaseURL) {
		return nil, fmt.Errorf("%w: missing API key for %s", llm.ErrUnavailable, c.cfg.BaseURL)
	}

	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userText},
		},
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	}

	content, err := c.complete(ctx, payload)
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

func (c *Client) complete(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	if apiKey := strings.TrimSpace(c.cfg.APIKey); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.logger.Error("openai chat completion failed", "status", res.StatusCode, "body", strings.TrimSpace(string(respBody)))
		return "", fmt.Errorf("openai completion failed with status %d", res.StatusCode)
	}

	var response chatCompletionResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("openai response returned no choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func requiresAPIKey(baseURL string) bool {
	lower := strings.ToLower(baseURL)
	if strings.Contains(lower, "localhost") || strings.Contains(lower, "127.0.0.1") || strings.Contains(lower, "ollama") {
		return false
	}
	return true
}

// Extractor payloads come back with numbers as JSON numbers, strings, or
// null depending on the model's mood, so field access is deliberately loose.
func stringField(entry map[string]any, key string) string {
	value, ok := entry[key]
	if !ok || value == nil {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return text
}

func floatField(entry map[string]any, key string) *float64 {
	value, ok := entry[key]
	if !ok || value == nil {
		return nil
	}
	switch typed := value.(type) {
	case float64:
		return &typed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

func intField(entry map[string]any, key string) *int {
	parsed := floatField(entry, key)
	if parsed == nil {
		return nil
	}
	rounded := int(math.Round(*parsed))
	return &rounded
}

// A metric at or below zero is noise, not data. Absent means "not
// reported" and a stored zero would win PR lookups.
func positiveFloat(value *float64) *float64 {
	if value == nil || *value <= 0 {
		return nil
	}
	return value
}

func positiveInt(value *int) *int {
	if value == nil || *value <= 0 {
		return nil
	}
	return value
}
