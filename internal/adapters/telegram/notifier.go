package telegram

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/selivandex/regime-bot/internal/adapters/config"
	"github.com/selivandex/regime-bot/internal/regime"
	"github.com/selivandex/regime-bot/pkg/logger"
)

// Notifier sends regime detector alerts to a single operator chat
type Notifier struct {
	api *tgbotapi.BotAPI
	cfg *config.TelegramConfig
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{
		api: bot,
		cfg: cfg,
	}, nil
}

// SendRegimeChange notifies about a confirmed regime transition
func (n *Notifier) SendRegimeChange(symbol, timeframe string, from, to regime.Regime, state regime.State) error {
	if !n.cfg.AlertOnRegime {
		return nil
	}

	msg := fmt.Sprintf(
		"%s *Regime change* `%s` (%s)\n\n"+
			"%s → *%s*\n"+
			"Confidence: `%.4f`\n"+
			"Bias signal: `%+.4f`\n"+
			"Probabilities: 🐻 `%.2f` ⚖️ `%.2f` 🐂 `%.2f`\n"+
			"Time: %s",
		regimeEmoji(to),
		symbol, timeframe,
		from.String(), to.String(),
		state.Confidence,
		state.BiasSignal,
		state.Probabilities[regime.Bearish],
		state.Probabilities[regime.Ranging],
		state.Probabilities[regime.Bullish],
		time.Now().UTC().Format("15:04:05 MST"),
	)

	return n.sendMessageMarkdown(msg)
}

// SendRetrainCompleted notifies about a finished training run
func (n *Notifier) SendRetrainCompleted(symbol string, observations int, qualityTier string, took time.Duration) error {
	if !n.cfg.AlertOnRetrain {
		return nil
	}

	msg := fmt.Sprintf(
		"🧠 *Model retrained* `%s`\n\n"+
			"Observations: `%d`\n"+
			"Quality tier: `%s`\n"+
			"Duration: `%s`",
		symbol, observations, qualityTier, took.Round(time.Millisecond),
	)

	return n.sendMessageMarkdown(msg)
}

// SendFailureAlert notifies about a worker failure
func (n *Notifier) SendFailureAlert(component, errorMsg string) error {
	if !n.cfg.AlertOnFailures {
		return nil
	}

	msg := fmt.Sprintf(
		"🚨 *Failure* in `%s`\n\n%s",
		component, errorMsg,
	)

	return n.sendMessageMarkdown(msg)
}

func (n *Notifier) sendMessageMarkdown(text string) error {
	msg := tgbotapi.NewMessage(n.cfg.ChatID, text)
	msg.ParseMode = "Markdown"

	_, err := n.api.Send(msg)
	if err != nil {
		logger.Error("failed to send telegram message",
			zap.Int64("chat_id", n.cfg.ChatID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

func regimeEmoji(r regime.Regime) string {
	switch r {
	case regime.Bullish:
		return "🐂"
	case regime.Bearish:
		return "🐻"
	default:
		return "⚖️"
	}
}
