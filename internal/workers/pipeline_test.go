package workers

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/selivandex/regime-bot/internal/adapters/config"
	"github.com/selivandex/regime-bot/internal/regime"
	"github.com/selivandex/regime-bot/pkg/logger"
	"github.com/selivandex/regime-bot/pkg/models"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error", "console", ""); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testDetector() *regime.Detector {
	return regime.NewDetector(&config.HMMConfig{
		NStates:             3,
		NIter:               15,
		InferenceWindow:     50,
		ConfidenceThreshold: 0.15,
		RetrainIntervalSec:  86400,
		MinTrainSamples:     100,
		BiasGain:            1.0,
		BlendWithTrend:      0.5,
	})
}

// mixedSeries walks through a bearish, ranging and bullish stretch
func mixedSeries(n int) ([]float64, []float64) {
	closes := make([]float64, n)
	volumes := make([]float64, n)

	price := 40000.0
	for i := 0; i < n; i++ {
		phase := i * 3 / n
		switch phase {
		case 0:
			price -= 15 + 5*math.Sin(float64(i)*0.7)
		case 1:
			price += 8 * math.Sin(float64(i)*0.5)
		default:
			price += 15 + 5*math.Cos(float64(i)*0.7)
		}
		closes[i] = price
		volumes[i] = 1000 + 100*math.Sin(float64(i)*0.3)
	}

	return closes, volumes
}

type stubCandleSource struct {
	candles []models.Candle
}

func (s *stubCandleSource) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	if limit > len(s.candles) {
		limit = len(s.candles)
	}
	return s.candles[len(s.candles)-limit:], nil
}

type stubPublisher struct {
	calls int
	last  regime.State
}

func (s *stubPublisher) Publish(ctx context.Context, symbol, timeframe string, state regime.State) error {
	s.calls++
	s.last = state
	return nil
}

type stubRegimeSink struct {
	records []models.RegimeRecord
}

func (s *stubRegimeSink) AddRecord(record models.RegimeRecord) {
	s.records = append(s.records, record)
}

func candlesFromSeries(closes, volumes []float64) []models.Candle {
	base := time.Now().Add(-time.Duration(len(closes)) * 5 * time.Minute)
	out := make([]models.Candle, len(closes))
	for i := range closes {
		out[i] = models.Candle{
			Symbol:    "BTC/USDT",
			Timeframe: "5m",
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Close:     models.NewDecimal(closes[i]),
			Volume:    models.NewDecimal(volumes[i]),
		}
	}
	return out
}

func TestPipeline_UpdateUntrainedSkipsFanout(t *testing.T) {
	d := testDetector()
	d.RestoreSnapshot(map[string]interface{}{
		"_hmm_regime_state": map[string]interface{}{
			"regime":            2,
			"probabilities":     []float64{0.1, 0.2, 0.7},
			"confidence":        0.5,
			"observation_count": 50,
		},
		"_hmm_trained": false,
	})

	closes, volumes := mixedSeries(400)
	source := &stubCandleSource{candles: candlesFromSeries(closes, volumes)}
	pub := &stubPublisher{}
	sink := &stubRegimeSink{}

	p := NewPipeline("BTC/USDT", "5m", "primary", d, source, 2000, 200, PipelineOptions{
		Publisher:    pub,
		RegimeWriter: sink,
	})

	state, _, err := p.Update(context.Background())
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if state.Regime != regime.Bullish {
		t.Errorf("expected the restored state echoed back, got %v", state.Regime)
	}
	if pub.calls != 0 {
		t.Errorf("untrained pipeline must not publish, got %d calls", pub.calls)
	}
	if len(sink.records) != 0 {
		t.Errorf("untrained pipeline must not append history, got %d rows", len(sink.records))
	}
}

func TestPipeline_UpdateTrainedFansOut(t *testing.T) {
	d := testDetector()
	trainCloses, trainVolumes := mixedSeries(1200)
	trained, err := d.Train(trainCloses, trainVolumes)
	if err != nil || !trained {
		t.Fatalf("training failed: trained=%v err=%v", trained, err)
	}

	closes, volumes := mixedSeries(400)
	source := &stubCandleSource{candles: candlesFromSeries(closes, volumes)}
	pub := &stubPublisher{}
	sink := &stubRegimeSink{}

	p := NewPipeline("BTC/USDT", "5m", "primary", d, source, 2000, 200, PipelineOptions{
		Publisher:    pub,
		RegimeWriter: sink,
	})

	state, _, err := p.Update(context.Background())
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if state.ObservationCount == 0 {
		t.Fatal("expected fresh inference")
	}

	if pub.calls != 1 {
		t.Fatalf("expected one publish, got %d", pub.calls)
	}
	if pub.last.Regime != state.Regime {
		t.Errorf("published state mismatch: %v vs %v", pub.last.Regime, state.Regime)
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected one history row, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Symbol != "BTC/USDT" || rec.Timeframe != "5m" {
		t.Errorf("history row has wrong key: %s %s", rec.Symbol, rec.Timeframe)
	}
	if rec.QualityTier != "baseline" {
		t.Errorf("expected baseline tier at depth 1200, got %s", rec.QualityTier)
	}
}

func TestPipelineSet_All(t *testing.T) {
	primary := NewPipeline("BTC/USDT", "5m", "primary", testDetector(), nil, 2000, 200, PipelineOptions{})
	tertiary := NewPipeline("BTC/USDT", "1h", "tertiary", testDetector(), nil, 2000, 200, PipelineOptions{})

	ps := &PipelineSet{Primary: primary, Tertiary: tertiary}

	all := ps.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 pipelines, got %d", len(all))
	}
	if all[0].Timeframe != "5m" || all[1].Timeframe != "1h" {
		t.Errorf("unexpected pipeline order: %s, %s", all[0].Timeframe, all[1].Timeframe)
	}
}

func TestPipelineSet_Status(t *testing.T) {
	primary := NewPipeline("BTC/USDT", "5m", "primary", testDetector(), nil, 2000, 200, PipelineOptions{})
	ps := &PipelineSet{Primary: primary}

	statuses := ps.Status()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}

	st := statuses[0]
	if st.Role != "primary" {
		t.Errorf("expected role primary, got %s", st.Role)
	}
	if st.Timeframe != "5m" {
		t.Errorf("expected timeframe 5m, got %s", st.Timeframe)
	}
	if st.Trained {
		t.Error("fresh detector should not report trained")
	}
	if st.QualityTier != "shallow" {
		t.Errorf("expected shallow tier for untrained detector, got %s", st.QualityTier)
	}
}

func TestPipeline_NeedsRetrainFresh(t *testing.T) {
	p := NewPipeline("BTC/USDT", "5m", "primary", testDetector(), nil, 2000, 200, PipelineOptions{})

	if !p.NeedsRetrain() {
		t.Error("fresh pipeline should need training")
	}
	if p.TrainingDepth() != 0 {
		t.Errorf("expected zero depth, got %d", p.TrainingDepth())
	}
}

func TestPipelineSet_ConsensusModifier(t *testing.T) {
	primaryDet := testDetector()
	closes, volumes := mixedSeries(1200)
	trained, err := primaryDet.Train(closes, volumes)
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}
	if !trained {
		t.Fatal("expected training to run")
	}

	ps := &PipelineSet{
		Primary:   NewPipeline("BTC/USDT", "5m", "primary", primaryDet, nil, 2000, 200, PipelineOptions{}),
		Secondary: NewPipeline("BTC/USDT", "15m", "secondary", testDetector(), nil, 2000, 200, PipelineOptions{}),
	}

	t.Run("primary uses its own depth", func(t *testing.T) {
		got := ps.ConsensusModifier("primary")
		if got != 0.85 {
			t.Errorf("expected 0.85 for baseline-depth primary, got %v", got)
		}
	})

	t.Run("secondary untrained", func(t *testing.T) {
		got := ps.ConsensusModifier("secondary")
		if got != 0.70 {
			t.Errorf("expected 0.70 for untrained secondary, got %v", got)
		}
	})

	t.Run("consensus takes the weaker leg", func(t *testing.T) {
		got := ps.ConsensusModifier("consensus")
		if got != 0.70 {
			t.Errorf("expected 0.70, got %v", got)
		}
	})

	t.Run("missing tertiary is depth zero", func(t *testing.T) {
		got := ps.ConsensusModifier("tertiary")
		if got != 0.70 {
			t.Errorf("expected 0.70, got %v", got)
		}
	})
}
