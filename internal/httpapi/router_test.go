package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/northhybrid/norte/internal/chat"
	"github.com/northhybrid/norte/internal/clubinfo"
	"github.com/northhybrid/norte/internal/connectors/telegram"
	"github.com/northhybrid/norte/internal/llm"
	"github.com/northhybrid/norte/internal/memory"
	"github.com/northhybrid/norte/internal/report"
	"github.com/northhybrid/norte/internal/store"
	"github.com/northhybrid/norte/internal/training"
)

type fakeResponder struct {
	reply string
	err   error
}

func (f *fakeResponder) Reply(ctx context.Context, input llm.ReplyInput) (string, error) {
	return f.reply, f.err
}

type fakeTrainingExtractor struct {
	items []llm.TrainingItem
}

func (f *fakeTrainingExtractor) ExtractTraining(ctx context.Context, text string) ([]llm.TrainingItem, error) {
	return f.items, nil
}

type fakeProfileExtractor struct{}

func (fakeProfileExtractor) ExtractProfile(ctx context.Context, existing llm.ProfileFacts, text string) (llm.ProfileFacts, error) {
	return llm.ProfileFacts{}, nil
}

type noopSummarizer struct{}

func (noopSummarizer) Summarize(ctx context.Context, transcript string) (llm.Summary, error) {
	return llm.Summary{}, nil
}

type botAPIServer struct {
	*httptest.Server
	mu   sync.Mutex
	sent []string
}

func newBotAPIServer(t *testing.T) *botAPIServer {
	t.Helper()
	api := &botAPIServer{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()
		if strings.HasSuffix(req.URL.Path, "/sendMessage") {
			var body struct {
				Text string `json:"text"`
			}
			_ = json.NewDecoder(req.Body).Decode(&body)
			api.sent = append(api.sent, body.Text)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	t.Cleanup(api.Server.Close)
	return api
}

func (a *botAPIServer) sentMessages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

type testHarness struct {
	router *router
	store  *store.Store
	chat   *chat.Orchestrator
	botAPI *botAPIServer
}

func newTestRouter(t *testing.T, trainingItems []llm.TrainingItem) testHarness {
	t.Helper()
	sqlStore, err := store.New(filepath.Join(t.TempDir(), "norte_test.sqlite"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	memoryManager := memory.NewManager(sqlStore, noopSummarizer{}, memory.Config{}, logger)
	trainingService := training.NewService(sqlStore, &fakeTrainingExtractor{items: trainingItems}, training.Config{}, logger)
	clubService := clubinfo.NewService(clubinfo.Config{WebsiteURL: "http://127.0.0.1:0", FetchRetries: 0}, logger)
	orchestrator := chat.NewOrchestrator(sqlStore, memoryManager, trainingService, clubService, &fakeResponder{reply: "¡Vamos!"}, fakeProfileExtractor{}, chat.Config{}, logger)

	botAPI := newBotAPIServer(t)
	connector := telegram.New("test-token", botAPI.URL, orchestrator, sqlStore, nil, logger)

	r := newRouter(Dependencies{
		Store:    sqlStore,
		Chat:     orchestrator,
		Training: trainingService,
		Reports:  report.NewService(sqlStore, logger),
		Telegram: connector,
		Logger:   logger,
	})
	return testHarness{router: r, store: sqlStore, chat: orchestrator, botAPI: botAPI}
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	payload := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, payload
}

func TestHealthAndReady(t *testing.T) {
	h := newTestRouter(t, nil)
	handler := h.router.handler()

	rec, payload := doJSON(t, handler, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("healthz: %d %v", rec.Code, payload)
	}
	rec, payload = doJSON(t, handler, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK || payload["status"] != "ready" {
		t.Fatalf("readyz: %d %v", rec.Code, payload)
	}
}

func TestChatEndpointValidatesAndReplies(t *testing.T) {
	h := newTestRouter(t, nil)
	handler := h.router.handler()

	rec, _ := doJSON(t, handler, http.MethodPost, "/chat", `{"telegram_id":"","message":"hola"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without telegram_id, got %d", rec.Code)
	}

	rec, payload := doJSON(t, handler, http.MethodPost, "/chat", `{"telegram_id":"1000","message":"hola"}`)
	h.chat.Wait()
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", rec.Code, rec.Body.String())
	}
	if payload["status"] != "ok" || payload["reply"] != "¡Vamos!" {
		t.Fatalf("unexpected chat payload: %v", payload)
	}
}

func TestChatClearEndpoint(t *testing.T) {
	h := newTestRouter(t, nil)
	handler := h.router.handler()

	rec, payload := doJSON(t, handler, http.MethodPost, "/chat/clear", `{"telegram_id":"1000"}`)
	if rec.Code != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("chat clear: %d %v", rec.Code, payload)
	}
}

func TestSaveTrainingEndpoint(t *testing.T) {
	weight := 100.0
	h := newTestRouter(t, []llm.TrainingItem{{Exercise: "sentadilla", Weight: &weight}})
	handler := h.router.handler()

	rec, _ := doJSON(t, handler, http.MethodPost, "/save-training", `{"telegram_id":"1000"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without message, got %d", rec.Code)
	}

	rec, payload := doJSON(t, handler, http.MethodPost, "/save-training", `{"telegram_id":"1000","message":"sentadilla 5x5 100kg"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save training: %d %s", rec.Code, rec.Body.String())
	}
	if payload["saved_exercise"] != "sentadilla" || payload["saved_count"] != float64(1) {
		t.Fatalf("unexpected save payload: %v", payload)
	}
}

func TestWeeklyReportEndpoint(t *testing.T) {
	h := newTestRouter(t, nil)
	handler := h.router.handler()
	ctx := context.Background()

	user, err := h.store.GetOrCreateUser(ctx, "1000", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	reps, sets := 5, 5
	weight := 100.0
	if err := h.store.InsertTrainingEntries(ctx, []store.TrainingEntry{{
		UserID: user.ID, RawText: "sentadilla 5x5 100kg", Exercise: "sentadilla", Sets: &sets, Reps: &reps, Weight: &weight,
	}}); err != nil {
		t.Fatalf("insert entry: %v", err)
	}

	rec, payload := doJSON(t, handler, http.MethodGet, "/weekly-report/1000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("weekly report: %d %s", rec.Code, rec.Body.String())
	}
	summary, _ := payload["summary"].(string)
	if !strings.Contains(summary, "Sesiones registradas: 1") {
		t.Fatalf("unexpected summary: %q", summary)
	}
	metrics, _ := payload["metrics"].(map[string]any)
	if metrics["sessions"] != float64(1) {
		t.Fatalf("unexpected metrics: %v", metrics)
	}
}

func TestTelegramWebhookAcksAndProcessesAsync(t *testing.T) {
	h := newTestRouter(t, nil)
	handler := h.router.handler()

	body := `{"update_id":1,"message":{"message_id":10,"from":{"id":42},"chat":{"id":42,"type":"private"},"text":"hola"}}`
	rec, _ := doJSON(t, handler, http.MethodPost, "/webhook/telegram", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook must ack with 200, got %d", rec.Code)
	}
	h.router.webhook.Wait()
	h.chat.Wait()

	if got := h.botAPI.sentMessages(); len(got) != 1 || got[0] != "¡Vamos!" {
		t.Fatalf("expected reply sent through the bot api, got %v", got)
	}
}

func TestTelegramWebhookSetupRequiresURL(t *testing.T) {
	h := newTestRouter(t, nil)
	handler := h.router.handler()

	rec, payload := doJSON(t, handler, http.MethodGet, "/webhook/telegram/setup", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without url, got %d", rec.Code)
	}
	if msg, _ := payload["error"].(string); !strings.Contains(msg, "url=") {
		t.Fatalf("unexpected error payload: %v", payload)
	}

	rec, payload = doJSON(t, handler, http.MethodGet, "/webhook/telegram/setup?url=https://norte.example.com/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("setup: %d %s", rec.Code, rec.Body.String())
	}
	if payload["webhook_url"] != "https://norte.example.com/webhook/telegram" {
		t.Fatalf("unexpected webhook url: %v", payload["webhook_url"])
	}
}
