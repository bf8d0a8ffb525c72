package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"alphafeed/internal/models"
)

type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// AlertNotifier forwards high-confidence chat signals to one Telegram chat.
// Sends run in the background; Notify never blocks the caller.
type AlertNotifier struct {
	Sender        MessageSender
	ChatID        string
	MinConfidence int
	Flags         *SystemSettingsService
	Logger        *zap.Logger
	Timeout       time.Duration

	wg sync.WaitGroup
}

func (n *AlertNotifier) Notify(ctx context.Context, sig models.Signal) {
	if n == nil || n.Sender == nil || strings.TrimSpace(n.ChatID) == "" {
		return
	}
	if sig.Confidence < n.MinConfidence {
		return
	}
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if n.Flags != nil && !n.Flags.IsEnabled(ctx, FeatureAlerts, false) {
			return
		}
		timeout := n.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := n.Sender.SendMessage(sendCtx, n.ChatID, FormatAlert(sig)); err != nil && n.Logger != nil {
			n.Logger.Warn("signal alert failed",
				zap.String("source_id", sig.SourceID),
				zap.Int64("message_id", sig.MessageID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until in-flight alerts finish. Used on shutdown.
func (n *AlertNotifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

func FormatAlert(sig models.Signal) string {
	token := "?"
	if sig.Token != nil {
		token = *sig.Token
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s, confidence %d", strings.ToUpper(sig.Action), token, sig.Confidence)
	if sig.Price.Valid {
		fmt.Fprintf(&sb, "\nentry %s", sig.Price.Decimal.String())
		if sig.Target.Valid {
			fmt.Fprintf(&sb, " target %s", sig.Target.Decimal.String())
		}
		if sig.StopLoss.Valid {
			fmt.Fprintf(&sb, " stop %s", sig.StopLoss.Decimal.String())
		}
	}
	fmt.Fprintf(&sb, "\nR:R %s", sig.RiskReward)
	if sig.RiskLevel != nil {
		fmt.Fprintf(&sb, ", %s risk", *sig.RiskLevel)
	}
	if sig.SourceName != "" {
		fmt.Fprintf(&sb, "\nvia %s", sig.SourceName)
	}
	return sb.String()
}
