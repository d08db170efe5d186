// Package memory maintains the layered per-user memory: the persistent
// profile, the transient session state and the rolling conversation
// summary. Everything lives inside the profile JSON document so a
// single upsert persists the whole state.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/northhybrid/norte/internal/intent"
	"github.com/northhybrid/norte/internal/llm"
	"github.com/northhybrid/norte/internal/store"
)

const summaryMaxLines = 10

type Session struct {
	Topic     string `json:"topic,omitempty"`
	Next      string `json:"next,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Profile is the durable memory document. String fields follow a
// monotonic rule: merges only ever replace a value with a non-empty
// one, so an extractor that saw nothing cannot erase known facts.
type Profile struct {
	Name                    string  `json:"name,omitempty"`
	Goal                    string  `json:"goal,omitempty"`
	Level                   string  `json:"level,omitempty"`
	Injuries                string  `json:"injuries,omitempty"`
	Availability            string  `json:"availability,omitempty"`
	Preferences             string  `json:"preferences,omitempty"`
	Session                 Session `json:"session,omitzero"`
	ConversationSummary     string  `json:"conversation_summary,omitempty"`
	ConversationSummaryHash string  `json:"conversation_summary_hash,omitempty"`
	OpenLoops               string  `json:"open_loops,omitempty"`
}

// Facts returns the stable fields as the extractor sees them, so it
// can report only what a message adds to the record.
func (p Profile) Facts() llm.ProfileFacts {
	return llm.ProfileFacts{
		Name:         p.Name,
		Goal:         p.Goal,
		Level:        p.Level,
		Injuries:     p.Injuries,
		Availability: p.Availability,
		Preferences:  p.Preferences,
	}
}

type Config struct {
	SummaryMinChars    int
	SummaryWindowChars int
}

type Manager struct {
	store      *store.Store
	summarizer llm.Summarizer
	cfg        Config
	logger     *slog.Logger
}

func NewManager(sqlStore *store.Store, summarizer llm.Summarizer, cfg Config, logger *slog.Logger) *Manager {
	if cfg.SummaryMinChars <= 0 {
		cfg.SummaryMinChars = 1200
	}
	if cfg.SummaryWindowChars <= 0 {
		cfg.SummaryWindowChars = 6000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: sqlStore, summarizer: summarizer, cfg: cfg, logger: logger.With("component", "memory")}
}

func (m *Manager) Load(ctx context.Context, userID string) (Profile, error) {
	raw, err := m.store.LoadProfileJSON(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	var profile Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		// A corrupt document must not take the chat down. Start fresh
		// and let the next save overwrite it.
		m.logger.Warn("profile document unreadable, resetting", "user_id", userID, "error", err)
		return Profile{}, nil
	}
	return profile, nil
}

func (m *Manager) Save(ctx context.Context, userID string, profile Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := m.store.UpsertProfileJSON(ctx, userID, raw); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// MergeFacts folds extractor output into the profile. Empty incoming
// fields are skipped.
func MergeFacts(profile Profile, facts llm.ProfileFacts) Profile {
	setIfPresent(&profile.Name, facts.Name)
	setIfPresent(&profile.Goal, facts.Goal)
	setIfPresent(&profile.Level, facts.Level)
	setIfPresent(&profile.Injuries, facts.Injuries)
	setIfPresent(&profile.Availability, facts.Availability)
	setIfPresent(&profile.Preferences, facts.Preferences)
	return profile
}

func setIfPresent(target *string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*target = trimmed
	}
}

// UpdateSession refreshes the transient topic with keyword heuristics.
// No model call: this runs after every message and must stay free.
func UpdateSession(profile Profile, message string) Profile {
	m := strings.ToLower(message)

	topic := profile.Session.Topic
	switch {
	case strings.Contains(m, "horario") || strings.Contains(m, "precio") ||
		strings.Contains(m, "tarifa") || strings.Contains(m, "ubic"):
		topic = "info del club"
	case strings.Contains(m, "plan") || strings.Contains(m, "programa") ||
		strings.Contains(m, "rutina") || strings.Contains(m, "semana"):
		topic = "planificación"
	case strings.Contains(m, "progreso") || strings.Contains(m, "marca") ||
		strings.Contains(m, "mejora") || strings.Contains(m, "ayer"):
		topic = "análisis de entreno"
	case intent.LooksLikeTrainingLog(message):
		topic = "registro de entreno"
	}

	profile.Session.Topic = topic
	profile.Session.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return profile
}

// RefreshSummary re-summarizes the visible history tail when it grew
// enough to matter. The sha256 gate keeps the summarizer from running
// again on an unchanged window. Returns the updated profile and whether
// anything changed.
func (m *Manager) RefreshSummary(ctx context.Context, profile Profile, history []llm.Message) (Profile, bool, error) {
	window := historyWindow(history, m.cfg.SummaryWindowChars)
	if len(window) < m.cfg.SummaryMinChars {
		return profile, false, nil
	}

	hash := sha256Hex(window)
	if profile.ConversationSummaryHash == hash {
		return profile, false, nil
	}

	transcript := fmt.Sprintf("previous_summary: %s\n\nrecent_chat:\n%s", profile.ConversationSummary, window)
	result, err := m.summarizer.Summarize(ctx, transcript)
	if err != nil {
		return profile, false, fmt.Errorf("refresh summary: %w", err)
	}

	if summary := clampLines(result.Summary, summaryMaxLines); summary != "" {
		profile.ConversationSummary = summary
	}
	if loops := strings.TrimSpace(strings.Join(result.OpenLoops, "; ")); loops != "" {
		profile.OpenLoops = loops
	}
	profile.ConversationSummaryHash = hash
	return profile, true, nil
}

func historyWindow(history []llm.Message, maxChars int) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		speaker := "Norte"
		if turn.Role == "user" {
			speaker = "Usuario"
		}
		lines = append(lines, speaker+": "+turn.Content)
	}
	text := strings.Join(lines, "\n")
	runes := []rune(text)
	if len(runes) > maxChars {
		return string(runes[len(runes)-maxChars:])
	}
	return text
}

func clampLines(text string, maxLines int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n")
}

func sha256Hex(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
