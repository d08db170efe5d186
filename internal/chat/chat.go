// Package chat orchestrates a conversation turn: loads the layered
// memory, routes the message, assembles the model context, asks for a
// reply and schedules the persistence work in the background so the
// user never waits on it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/northhybrid/norte/internal/clubinfo"
	"github.com/northhybrid/norte/internal/intent"
	"github.com/northhybrid/norte/internal/llm"
	"github.com/northhybrid/norte/internal/memory"
	"github.com/northhybrid/norte/internal/prompt"
	"github.com/northhybrid/norte/internal/store"
	"github.com/northhybrid/norte/internal/training"
)

const (
	fallbackUnavailable = "Ahora mismo no puedo responder (falta configuración del servidor)."
	fallbackNoReply     = "No pude generar respuesta."
)

type Config struct {
	HistoryLimit      int
	ReplyMaxChars     int
	ReplyTemperature  float64
	ReplyMaxTokens    int
	LookbackDays      int
	RecentItems       int
	BackgroundTimeout time.Duration
}

type Orchestrator struct {
	store     *store.Store
	memory    *memory.Manager
	training  *training.Service
	club      *clubinfo.Service
	responder llm.Responder
	profiles  llm.ProfileExtractor
	cfg       Config
	logger    *slog.Logger

	background sync.WaitGroup
}

func NewOrchestrator(
	sqlStore *store.Store,
	memoryManager *memory.Manager,
	trainingService *training.Service,
	clubService *clubinfo.Service,
	responder llm.Responder,
	profiles llm.ProfileExtractor,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.ReplyMaxChars <= 0 {
		cfg.ReplyMaxChars = 4000
	}
	if cfg.ReplyTemperature <= 0 {
		cfg.ReplyTemperature = 0.6
	}
	if cfg.ReplyMaxTokens <= 0 {
		cfg.ReplyMaxTokens = 450
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 60
	}
	if cfg.RecentItems <= 0 {
		cfg.RecentItems = 10
	}
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     sqlStore,
		memory:    memoryManager,
		training:  trainingService,
		club:      clubService,
		responder: responder,
		profiles:  profiles,
		cfg:       cfg,
		logger:    logger.With("component", "chat"),
	}
}

// Chat handles one user message and returns the coach reply. Model
// failures degrade to a fixed Spanish notice instead of an error so the
// conversation never breaks; storage failures are returned.
func (o *Orchestrator) Chat(ctx context.Context, telegramID, message string) (string, error) {
	normalized := strings.TrimSpace(message)

	user, err := o.store.GetOrCreateUser(ctx, telegramID, "")
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}

	var (
		history []llm.Message
		profile memory.Profile
	)
	loads, loadCtx := errgroup.WithContext(ctx)
	loads.Go(func() error {
		stored, err := o.store.LoadRecentHistory(loadCtx, user.ID, o.cfg.HistoryLimit)
		if err != nil {
			return err
		}
		history = toModelHistory(stored)
		return nil
	})
	loads.Go(func() error {
		loaded, err := o.memory.Load(loadCtx, user.ID)
		if err != nil {
			return err
		}
		profile = loaded
		return nil
	})
	if err := loads.Wait(); err != nil {
		return "", fmt.Errorf("load conversation state: %w", err)
	}

	detected := intent.Detect(normalized)

	// Name capture is deterministic and never waits on a model. The
	// captured name rides along in the turn's profile copy and lands
	// with the single save in afterReply.
	if name := intent.ExtractName(normalized); name != "" && name != profile.Name {
		profile.Name = name
	}

	continuation := intent.ContinuationHint(normalized, history)

	shouldLoadTraining := detected == intent.LogTraining ||
		detected == intent.ProgressOrRecall ||
		detected == intent.RunLookup ||
		detected == intent.PRLookup ||
		intent.NeedsTrainingContext(normalized)

	// Context loads run in parallel and individually degrade to an
	// empty block. A slow club fetch must not take the chat down.
	var (
		clubBlock     string
		trainingBlock string
		factsBlock    string
	)
	contexts, contextCtx := errgroup.WithContext(ctx)
	contexts.Go(func() error {
		block, err := o.club.ContextIfNeeded(contextCtx, normalized)
		if err != nil {
			o.logger.Warn("club context failed", "error", err)
			return nil
		}
		clubBlock = block
		return nil
	})
	contexts.Go(func() error {
		if !shouldLoadTraining {
			return nil
		}
		entries, err := o.training.Lookback(contextCtx, user.ID)
		if err != nil {
			o.logger.Warn("training context failed", "user_id", user.ID, "error", err)
			return nil
		}
		trainingBlock = prompt.TrainingBlock(entries, o.cfg.LookbackDays, o.cfg.RecentItems)
		return nil
	})
	contexts.Go(func() error {
		factsBlock = o.buildFacts(contextCtx, user.ID, normalized, profile)
		return nil
	})
	_ = contexts.Wait()

	mentalState := prompt.MentalState(prompt.MentalStateInput{
		Intent:       detected,
		Profile:      prompt.ProfileBlock(profile),
		Session:      prompt.SessionBlock(profile.Session),
		Summary:      prompt.SummaryBlock(profile.ConversationSummary),
		Continuation: continuation,
		Facts:        factsBlock,
		Club:         clubBlock,
		Training:     trainingBlock,
	})

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: prompt.SystemPrompt + "\n\n" + mentalState})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: normalized})

	reply, err := o.responder.Reply(ctx, llm.ReplyInput{
		Messages:    messages,
		Temperature: o.cfg.ReplyTemperature,
		MaxTokens:   o.cfg.ReplyMaxTokens,
	})
	switch {
	case errors.Is(err, llm.ErrUnavailable):
		o.logger.Error("responder unavailable", "error", err)
		return fallbackUnavailable, nil
	case err != nil:
		o.logger.Error("responder failed", "error", err)
		return fallbackNoReply, nil
	case strings.TrimSpace(reply) == "":
		reply = fallbackNoReply
	}
	finalReply := clampRunes(reply, o.cfg.ReplyMaxChars)

	o.spawn(func(bgCtx context.Context) {
		o.afterReply(bgCtx, user.ID, normalized, finalReply, profile, history)
	})

	return finalReply, nil
}

// ClearHistory wipes the chat transcript only. Profile, summary and
// training logs survive.
func (o *Orchestrator) ClearHistory(ctx context.Context, telegramID string) error {
	user, err := o.store.GetOrCreateUser(ctx, telegramID, "")
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	if err := o.store.ClearHistory(ctx, user.ID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Wait blocks until pending background work drains. Called on shutdown
// and by tests.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

func (o *Orchestrator) spawn(fn func(ctx context.Context)) {
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), o.cfg.BackgroundTimeout)
		defer cancel()
		fn(bgCtx)
	}()
}

// afterReply does the deferred persistence for a turn: transcript,
// training capture and the memory document. The profile updates are
// applied to one copy and saved once, so concurrent writers cannot
// clobber each other within a turn.
func (o *Orchestrator) afterReply(ctx context.Context, userID, userMessage, reply string, profile memory.Profile, history []llm.Message) {
	if err := o.store.AppendMessage(ctx, userID, "user", userMessage); err != nil {
		o.logger.Warn("save user turn failed", "user_id", userID, "error", err)
	}
	if err := o.store.AppendMessage(ctx, userID, "assistant", reply); err != nil {
		o.logger.Warn("save assistant turn failed", "user_id", userID, "error", err)
	}

	if saved, err := o.training.TrySaveFromMessage(ctx, userID, userMessage); err != nil {
		o.logger.Warn("training capture failed", "user_id", userID, "error", err)
	} else if saved > 0 {
		o.logger.Info("training entries captured", "user_id", userID, "entries", saved)
	}

	profile = memory.UpdateSession(profile, userMessage)

	if intent.ShouldUpdateProfile(userMessage) {
		facts, err := o.profiles.ExtractProfile(ctx, profile.Facts(), userMessage)
		if err != nil {
			o.logger.Warn("profile extraction failed", "user_id", userID, "error", err)
		} else if !facts.Empty() {
			profile = memory.MergeFacts(profile, facts)
		}
	}

	updated, _, err := o.memory.RefreshSummary(ctx, profile, history)
	if err != nil {
		o.logger.Warn("summary refresh failed", "user_id", userID, "error", err)
	} else {
		profile = updated
	}

	if err := o.memory.Save(ctx, userID, profile); err != nil {
		o.logger.Warn("save memory failed", "user_id", userID, "error", err)
	}
}

// buildFacts loads only the facts the message asks about. Failures are
// logged and leave the block empty.
func (o *Orchestrator) buildFacts(ctx context.Context, userID, message string, profile memory.Profile) string {
	wantsMemory := intent.DetectProfileQuery(message) || intent.DetectRecallQuery(message)
	prQuery, wantsPR := intent.DetectPRQuery(message)
	wantsRuns := intent.DetectRunQuery(message)

	blocks := make([]string, 0, 3)

	if wantsMemory {
		hasEntries, err := o.training.HasAny(ctx, userID)
		if err != nil {
			o.logger.Warn("memory fact load failed", "user_id", userID, "error", err)
		}
		blocks = append(blocks, prompt.ProfileFactsBlock(profile, hasEntries))
	}

	if wantsPR {
		best, err := o.training.BestLift(ctx, userID, prQuery.Patterns)
		if err != nil {
			o.logger.Warn("pr fact load failed", "user_id", userID, "error", err)
		}
		blocks = append(blocks, prompt.PRFactBlock(prQuery.Label, best))
	}

	if wantsRuns {
		runs, err := o.training.RecentRuns(ctx, userID)
		if err != nil {
			o.logger.Warn("runs fact load failed", "user_id", userID, "error", err)
		}
		blocks = append(blocks, prompt.RunsFactBlock(runs))
	}

	return strings.Join(blocks, "\n")
}

func toModelHistory(stored []store.ChatMessage) []llm.Message {
	history := make([]llm.Message, 0, len(stored))
	for _, message := range stored {
		history = append(history, llm.Message{Role: message.Role, Content: message.Content})
	}
	return history
}

func clampRunes(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "…"
}
