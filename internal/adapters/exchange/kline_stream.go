package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/selivandex/regime-bot/pkg/logger"
	"github.com/selivandex/regime-bot/pkg/models"
)

// KlineStream pushes confirmed candles over WebSocket so the detector
// does not have to poll between intervals. Uses the Bybit v5 public
// linear stream, which serves klines without authentication.
type KlineStream struct {
	conn           *websocket.Conn
	url            string
	symbols        []string
	timeframes     []string
	candleChan     chan models.Candle
	errorChan      chan error
	mu             sync.Mutex
	reconnectDelay time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
}

type wsMessage struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Ts    int64           `json:"ts"`
}

type klineData struct {
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Interval  string `json:"interval"`
	Open      string `json:"open"`
	Close     string `json:"close"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Volume    string `json:"volume"`
	Turnover  string `json:"turnover"`
	Confirm   bool   `json:"confirm"`
	Timestamp int64  `json:"timestamp"`
}

// intervalMap maps standard timeframes to stream intervals
var intervalMap = map[string]string{
	"1m":  "1",
	"5m":  "5",
	"15m": "15",
	"1h":  "60",
	"4h":  "240",
	"1d":  "D",
}

// NewKlineStream creates new kline stream for the given symbols and timeframes
func NewKlineStream(symbols []string, timeframes []string, testnet bool) *KlineStream {
	url := "wss://stream.bybit.com/v5/public/linear"
	if testnet {
		url = "wss://stream-testnet.bybit.com/v5/public/linear"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &KlineStream{
		url:            url,
		symbols:        symbols,
		timeframes:     timeframes,
		candleChan:     make(chan models.Candle, 1000),
		errorChan:      make(chan error, 10),
		reconnectDelay: 5 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Connect establishes WebSocket connection
func (ks *KlineStream) Connect() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(ks.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to kline stream: %w", err)
	}

	ks.conn = conn

	if err := ks.subscribe(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go ks.readMessages()
	go ks.pingHandler()

	logger.Info("kline stream connected",
		zap.String("url", ks.url),
		zap.Strings("symbols", ks.symbols),
		zap.Strings("timeframes", ks.timeframes),
	)

	return nil
}

// subscribe sends subscription messages
func (ks *KlineStream) subscribe() error {
	// Kline topic format: "kline.{interval}.{symbol}", e.g. "kline.5.BTCUSDT"
	topics := []string{}

	for _, symbol := range ks.symbols {
		streamSymbol := stripSymbolSeparator(symbol)

		for _, tf := range ks.timeframes {
			interval, ok := intervalMap[tf]
			if !ok {
				logger.Warn("unsupported timeframe for kline stream",
					zap.String("timeframe", tf),
				)
				continue
			}

			topics = append(topics, fmt.Sprintf("kline.%s.%s", interval, streamSymbol))
		}
	}

	if len(topics) == 0 {
		return fmt.Errorf("no valid topics to subscribe")
	}

	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": topics,
	}

	if err := ks.conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	logger.Info("subscribed to kline topics",
		zap.Strings("topics", topics),
	)

	return nil
}

// readMessages reads messages from WebSocket
func (ks *KlineStream) readMessages() {
	defer func() {
		ks.mu.Lock()
		if ks.conn != nil {
			ks.conn.Close()
		}
		ks.mu.Unlock()

		if ks.ctx.Err() == nil {
			logger.Info("attempting to reconnect kline stream...")
			time.Sleep(ks.reconnectDelay)
			if err := ks.Connect(); err != nil {
				logger.Error("failed to reconnect", zap.Error(err))
			}
		}
	}()

	for {
		select {
		case <-ks.ctx.Done():
			return
		default:
		}

		_, message, err := ks.conn.ReadMessage()
		if err != nil {
			logger.Error("WebSocket read error", zap.Error(err))
			ks.errorChan <- err
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("failed to parse WebSocket message", zap.Error(err))
			continue
		}

		if msg.Topic != "" && len(msg.Data) > 0 {
			ks.handleKlineMessage(msg)
		}
	}
}

// handleKlineMessage processes kline updates
func (ks *KlineStream) handleKlineMessage(msg wsMessage) {
	var klines []klineData
	if err := json.Unmarshal(msg.Data, &klines); err != nil {
		logger.Warn("failed to parse kline data", zap.Error(err))
		return
	}

	symbol, timeframe := parseKlineTopic(msg.Topic)
	if symbol == "" || timeframe == "" {
		return
	}

	for _, kline := range klines {
		// Only confirmed candles feed the detector
		if !kline.Confirm {
			continue
		}

		candle := models.Candle{
			Symbol:      symbol,
			Timeframe:   timeframe,
			Timestamp:   time.UnixMilli(kline.Start),
			Open:        models.NewDecimalFromString(kline.Open),
			High:        models.NewDecimalFromString(kline.High),
			Low:         models.NewDecimalFromString(kline.Low),
			Close:       models.NewDecimalFromString(kline.Close),
			Volume:      models.NewDecimalFromString(kline.Volume),
			QuoteVolume: models.NewDecimalFromString(kline.Turnover),
			Trades:      0, // Not provided in WebSocket
		}

		select {
		case ks.candleChan <- candle:
		default:
			logger.Warn("candle channel full, dropping candle")
		}
	}
}

// pingHandler sends periodic ping messages
func (ks *KlineStream) pingHandler() {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ks.ctx.Done():
			return
		case <-ticker.C:
			ks.mu.Lock()
			if ks.conn != nil {
				ping := map[string]interface{}{
					"op": "ping",
				}
				if err := ks.conn.WriteJSON(ping); err != nil {
					logger.Error("failed to send ping", zap.Error(err))
				}
			}
			ks.mu.Unlock()
		}
	}
}

// Candles returns channel for receiving candles
func (ks *KlineStream) Candles() <-chan models.Candle {
	return ks.candleChan
}

// Errors returns channel for receiving errors
func (ks *KlineStream) Errors() <-chan error {
	return ks.errorChan
}

// Close closes WebSocket connection
func (ks *KlineStream) Close() error {
	ks.cancel()

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.conn != nil {
		return ks.conn.Close()
	}

	return nil
}

// stripSymbolSeparator converts BTC/USDT to BTCUSDT
func stripSymbolSeparator(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// parseKlineTopic extracts symbol and timeframe from "kline.5.BTCUSDT"
func parseKlineTopic(topic string) (symbol, timeframe string) {
	parts := strings.Split(topic, ".")
	if len(parts) != 3 {
		return "", ""
	}

	streamSymbol := parts[2]
	if idx := strings.Index(streamSymbol, "USDT"); idx > 0 {
		symbol = streamSymbol[:idx] + "/" + streamSymbol[idx:]
	} else if len(streamSymbol) >= 6 {
		symbol = streamSymbol[:3] + "/" + streamSymbol[3:]
	}

	for tf, interval := range intervalMap {
		if interval == parts[1] {
			timeframe = tf
			break
		}
	}

	return symbol, timeframe
}
