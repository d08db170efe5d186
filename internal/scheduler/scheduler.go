// Package scheduler dispatches the periodic weekly reports to every
// user who trained recently.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/northhybrid/norte/internal/report"
	"github.com/northhybrid/norte/internal/store"
)

const dispatchTimeout = 2 * time.Minute

// UserLister selects the recipients of a report cycle.
type UserLister interface {
	ListUsersWithEntriesSince(ctx context.Context, cutoff time.Time) ([]store.User, error)
}

// Reporter builds a weekly report for one user.
type Reporter interface {
	Weekly(ctx context.Context, telegramID string) (report.Report, error)
}

// Sender delivers the rendered report.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type Service struct {
	users    UserLister
	reports  Reporter
	sender   Sender
	schedule cron.Schedule
	logger   *slog.Logger
}

// New parses the cron expression (standard five fields) and wires the
// dispatch dependencies.
func New(users UserLister, reports Reporter, sender Sender, cronExpr string, logger *slog.Logger) (*Service, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse report cron %q: %w", cronExpr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		reports:  reports,
		sender:   sender,
		schedule: schedule,
		logger:   logger.With("component", "scheduler"),
	}, nil
}

// Start blocks until the context is cancelled, firing a report cycle at
// every cron tick.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("report scheduler started", "next_run", s.schedule.Next(time.Now()).Format(time.RFC3339))
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("report scheduler stopped")
			return nil
		case <-timer.C:
		}
		s.RunCycle(ctx)
	}
}

// RunCycle sends the weekly report to every user with entries in the
// last 7 days. One failing user does not stop the rest.
func (s *Service) RunCycle(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -7)
	users, err := s.users.ListUsersWithEntriesSince(ctx, cutoff)
	if err != nil {
		s.logger.Error("list report recipients failed", "error", err)
		return
	}
	if len(users) == 0 {
		s.logger.Info("no report recipients this cycle")
		return
	}

	sent := 0
	for _, user := range users {
		if err := s.dispatchOne(ctx, user); err != nil {
			s.logger.Error("weekly report dispatch failed", "error", err, "telegram_id", user.TelegramID)
			continue
		}
		sent++
	}
	s.logger.Info("weekly report cycle completed", "recipients", len(users), "sent", sent)
}

func (s *Service) dispatchOne(ctx context.Context, user store.User) error {
	chatID, err := strconv.ParseInt(user.TelegramID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse telegram id %q: %w", user.TelegramID, err)
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	result, err := s.reports.Weekly(dispatchCtx, user.TelegramID)
	if err != nil {
		return fmt.Errorf("build weekly report: %w", err)
	}
	text := "📊 Tu informe semanal de NORTH Hybrid Club:\n\n" + result.Summary
	if err := s.sender.SendMessage(dispatchCtx, chatID, text); err != nil {
		return fmt.Errorf("send weekly report: %w", err)
	}
	return nil
}
