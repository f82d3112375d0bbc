package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

const maxSummaryOutliers = 5

// MessageSender is the part of the Telegram bot the notifier uses.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// RunSummary is what the notifier reports after a run.
type RunSummary struct {
	Run          *models.RunLog
	Uncorrelated []models.AverageCorrelation
	Outliers     []models.PriceDistanceRecord
}

// NotificationService posts run summaries to a Telegram chat.
type NotificationService struct {
	sender  MessageSender
	chatID  int64
	printer *message.Printer
	logger  *logrus.Logger
}

// NewNotificationService returns nil when token or chat id is missing, so
// callers can treat notifications as disabled.
func NewNotificationService(token string, chatID int64, logger *logrus.Logger) (*NotificationService, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewNotificationServiceWithSender(b, chatID, logger), nil
}

func NewNotificationServiceWithSender(sender MessageSender, chatID int64, logger *logrus.Logger) *NotificationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationService{
		sender:  sender,
		chatID:  chatID,
		printer: message.NewPrinter(language.English),
		logger:  logger,
	}
}

// NotifyRunSummary sends the summary. A nil service is a no-op.
func (ns *NotificationService) NotifyRunSummary(ctx context.Context, summary RunSummary) error {
	if ns == nil || ns.sender == nil {
		return nil
	}
	_, err := ns.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    ns.chatID,
		Text:      ns.formatRunSummary(summary),
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("failed to send run summary: %w", err)
	}
	ns.logger.WithField("chat_id", ns.chatID).Info("Run summary sent")
	return nil
}

func (ns *NotificationService) formatRunSummary(summary RunSummary) string {
	p := ns.printer
	run := summary.Run
	if run == nil {
		run = &models.RunLog{}
	}

	var sb strings.Builder
	if run.Status == models.RunStatusFailed {
		sb.WriteString("⚠️ *Correlation run failed*\n\n")
	} else {
		sb.WriteString("📊 *Correlation run completed*\n\n")
	}

	sb.WriteString(p.Sprintf("Coins analyzed: *%d* of %d requested\n", run.Analyzed, run.Requested))
	sb.WriteString(p.Sprintf("Fetched: %d, reused: %d, skipped: %d\n", run.Fetched, run.Reused, len(run.Skipped)))
	sb.WriteString(p.Sprintf("Uncorrelated (< %.2f): *%d*\n", run.CorrelationThreshold, run.UncorrelatedCount))
	sb.WriteString(p.Sprintf("Price-distance outliers (> %.0f%%): *%d*\n", run.DistanceThreshold*100, run.OutlierCount))

	if len(summary.Outliers) > 0 {
		sb.WriteString("\n*Top outliers*\n")
		for i, o := range summary.Outliers {
			if i == maxSummaryOutliers {
				sb.WriteString(p.Sprintf("...and %d more\n", len(summary.Outliers)-maxSummaryOutliers))
				break
			}
			sb.WriteString(p.Sprintf("%d. %s: %+.1f%% vs market\n", i+1, o.Symbol, o.SignedDistance*100))
		}
	}

	if len(summary.Uncorrelated) > 0 {
		n := len(summary.Uncorrelated)
		if n > maxSummaryOutliers {
			n = maxSummaryOutliers
		}
		symbols := make([]string, 0, n)
		for _, u := range summary.Uncorrelated[:n] {
			symbols = append(symbols, u.Symbol)
		}
		sb.WriteString("\n*Least correlated:* " + strings.Join(symbols, ", ") + "\n")
	}

	if run.Error != "" {
		sb.WriteString("\nError: " + run.Error + "\n")
	}
	return sb.String()
}
