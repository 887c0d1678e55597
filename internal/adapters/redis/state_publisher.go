package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/selivandex/regime-bot/internal/regime"
)

const (
	stateKeyTTL    = 24 * time.Hour
	updatesChannel = "regime:updates"
)

// StatePublisher pushes the latest regime state to Redis so downstream
// consumers (grid engines, dashboards) can read it without touching the
// detector process
type StatePublisher struct {
	client *Client
}

// NewStatePublisher creates new state publisher
func NewStatePublisher(client *Client) *StatePublisher {
	return &StatePublisher{client: client}
}

// statePayload is the wire format written to Redis
type statePayload struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	State     regime.State `json:"state"`
}

// Publish writes the state under regime:state:{symbol}:{timeframe} and
// notifies subscribers on the updates channel
func (p *StatePublisher) Publish(ctx context.Context, symbol, timeframe string, state regime.State) error {
	payload, err := json.Marshal(statePayload{
		Symbol:    symbol,
		Timeframe: timeframe,
		State:     state,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal regime state: %w", err)
	}

	key := stateKey(symbol, timeframe)
	if err := p.client.Set(ctx, key, payload, stateKeyTTL).Err(); err != nil {
		return fmt.Errorf("failed to store regime state: %w", err)
	}

	if err := p.client.Publish(ctx, updatesChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish regime update: %w", err)
	}

	return nil
}

// Load reads the last published state, returning false when none exists
func (p *StatePublisher) Load(ctx context.Context, symbol, timeframe string) (regime.State, bool, error) {
	raw, err := p.client.Get(ctx, stateKey(symbol, timeframe)).Bytes()
	if err != nil {
		// Treat missing key same as any read failure upstream cares about
		return regime.DefaultState(), false, nil
	}

	var payload statePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return regime.DefaultState(), false, fmt.Errorf("failed to unmarshal regime state: %w", err)
	}

	return payload.State, true, nil
}

func stateKey(symbol, timeframe string) string {
	return fmt.Sprintf("regime:state:%s:%s", symbol, timeframe)
}
