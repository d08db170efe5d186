// Package httpapi exposes the service over HTTP: the conversational
// endpoints, training capture, reports and the Telegram webhook.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/northhybrid/norte/internal/chat"
	"github.com/northhybrid/norte/internal/config"
	"github.com/northhybrid/norte/internal/connectors/telegram"
	"github.com/northhybrid/norte/internal/report"
	"github.com/northhybrid/norte/internal/store"
	"github.com/northhybrid/norte/internal/training"
)

const webhookTimeout = 90 * time.Second

type Dependencies struct {
	Config   config.Config
	Store    *store.Store
	Chat     *chat.Orchestrator
	Training *training.Service
	Reports  *report.Service
	Telegram *telegram.Connector
	Logger   *slog.Logger
}

type router struct {
	deps    Dependencies
	webhook sync.WaitGroup
}

func NewRouter(deps Dependencies) http.Handler {
	return newRouter(deps).handler()
}

func newRouter(deps Dependencies) *router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &router{deps: deps}
}

func (r *router) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/chat", r.handleChat)
	mux.HandleFunc("/chat/clear", r.handleChatClear)
	mux.HandleFunc("/save-training", r.handleSaveTraining)
	mux.HandleFunc("GET /weekly-report/{telegram_id}", r.handleWeeklyReport)
	mux.HandleFunc("GET /monthly-report/{telegram_id}", r.handleMonthlyReport)
	mux.HandleFunc("/webhook/telegram", r.handleTelegramWebhook)
	mux.HandleFunc("/webhook/telegram/setup", r.handleTelegramWebhookSetup)
	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type chatRequest struct {
	TelegramID string `json:"telegram_id"`
	Message    string `json:"message"`
}

func (r *router) handleChat(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload chatRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid payload"})
		return
	}
	telegramID := strings.TrimSpace(payload.TelegramID)
	message := strings.TrimSpace(payload.Message)
	if telegramID == "" || message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "telegram_id y message son requeridos"})
		return
	}

	reply, err := r.deps.Chat.Chat(req.Context(), telegramID, message)
	if err != nil {
		r.deps.Logger.Error("chat request failed", "error", err, "telegram_id", telegramID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": "Error al generar respuesta"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "reply": reply})
}

func (r *router) handleChatClear(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload chatRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid payload"})
		return
	}
	if telegramID := strings.TrimSpace(payload.TelegramID); telegramID != "" {
		if err := r.deps.Chat.ClearHistory(req.Context(), telegramID); err != nil {
			r.deps.Logger.Error("clear history failed", "error", err, "telegram_id", telegramID)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": "Error al limpiar historial"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleSaveTraining(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload chatRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid payload"})
		return
	}
	telegramID := strings.TrimSpace(payload.TelegramID)
	message := strings.TrimSpace(payload.Message)
	if telegramID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "telegram_id es requerido"})
		return
	}
	if message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "message es requerido"})
		return
	}

	user, err := r.deps.Store.GetOrCreateUser(req.Context(), telegramID, "")
	if err != nil {
		r.deps.Logger.Error("resolve user failed", "error", err, "telegram_id", telegramID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": "Error al guardar entrenamiento"})
		return
	}
	saved, err := r.deps.Training.Save(req.Context(), user.ID, message)
	if err != nil {
		r.deps.Logger.Error("save training failed", "error", err, "telegram_id", telegramID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": "Error al guardar entrenamiento"})
		return
	}

	names := make([]string, 0, len(saved))
	for _, entry := range saved {
		names = append(names, entry.Exercise)
	}
	savedExercise := strings.Join(names, ", ")
	if savedExercise == "" {
		savedExercise = "entrenamiento"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"saved_exercise": savedExercise,
		"saved_count":    len(saved),
	})
}

func (r *router) handleWeeklyReport(w http.ResponseWriter, req *http.Request) {
	r.handleReport(w, req, r.deps.Reports.Weekly)
}

func (r *router) handleMonthlyReport(w http.ResponseWriter, req *http.Request) {
	r.handleReport(w, req, r.deps.Reports.Monthly)
}

func (r *router) handleReport(w http.ResponseWriter, req *http.Request, build func(context.Context, string) (report.Report, error)) {
	telegramID := strings.TrimSpace(req.PathValue("telegram_id"))
	if telegramID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "telegram_id es requerido"})
		return
	}

	result, err := build(req.Context(), telegramID)
	if err != nil {
		r.deps.Logger.Error("report generation failed", "error", err, "telegram_id", telegramID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": "Error al generar informe"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"summary": result.Summary,
		"metrics": map[string]any{
			"sessions":  result.Sessions,
			"exercises": result.Exercises,
		},
	})
}

// handleTelegramWebhook acknowledges the delivery immediately and
// processes the update in the background. Telegram retries deliveries
// that do not get a fast 200, which would double-process slow turns.
func (r *router) handleTelegramWebhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var update telegram.Update
	if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
		r.deps.Logger.Warn("webhook payload unreadable", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)

	r.webhook.Add(1)
	go func() {
		defer r.webhook.Done()
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		if err := r.deps.Telegram.HandleUpdate(ctx, update); err != nil {
			r.deps.Logger.Error("webhook update failed", "error", err, "update_id", update.UpdateID)
		}
	}()
}

func (r *router) handleTelegramWebhookSetup(w http.ResponseWriter, req *http.Request) {
	if r.deps.Telegram == nil || !r.deps.Telegram.Enabled() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Falta NORTE_TELEGRAM_TOKEN en la configuración"})
		return
	}
	baseURL := strings.TrimSpace(req.URL.Query().Get("url"))
	if baseURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Pasa la URL en la query: /webhook/telegram/setup?url=https://tu-dominio"})
		return
	}

	webhookURL := strings.TrimRight(baseURL, "/") + "/webhook/telegram"
	if err := r.deps.Telegram.SetWebhook(req.Context(), webhookURL); err != nil {
		r.deps.Logger.Error("webhook setup failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "webhook_url": webhookURL})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
