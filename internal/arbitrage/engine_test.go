package arbitrage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arbscout/internal/fees"
	"arbscout/internal/metrics"
	"arbscout/internal/model"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) LogPriceTicks(ctx context.Context, ticks []model.PriceTick) error {
	args := m.Called(ctx, ticks)
	return args.Error(0)
}

func (m *MockRepository) LogScanSummary(ctx context.Context, summary model.ScanSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockRepository) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Report(ctx context.Context, opps []model.Opportunity) error {
	args := m.Called(ctx, opps)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishPrices(ctx context.Context, ticks []model.PriceTick) error {
	args := m.Called(ctx, ticks)
	return args.Error(0)
}

type staticSource struct {
	mu    sync.Mutex
	ticks []model.PriceTick
	calls int
	delay time.Duration
}

func (s *staticSource) Collect(ctx context.Context) []model.PriceTick {
	s.mu.Lock()
	s.calls++
	ticks, delay := s.ticks, s.delay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}
	return ticks
}

func (s *staticSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func alphaBetaTicks(alpha, beta float64) []model.PriceTick {
	return []model.PriceTick{
		{Exchange: "alpha", Symbol: xrpUSDT, Price: alpha},
		{Exchange: "beta", Symbol: xrpUSDT, Price: beta},
	}
}

func TestArbitrageEngine_RunCycle(t *testing.T) {
	scanner := newAlphaBetaScanner(t, 40, 0.5)

	t.Run("no opportunity", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockReporter := new(MockReporter)
		mockRepo.On("LogPriceTicks", mock.Anything, mock.Anything).Return(nil).Once()
		mockRepo.On("LogScanSummary", mock.Anything, mock.MatchedBy(func(s model.ScanSummary) bool {
			return s.Opportunities == 0 && s.PairsEvaluated == 2
		})).Return(nil).Once()

		engine := NewArbitrageEngine(discardLogger(), scanner, &staticSource{ticks: alphaBetaTicks(0.50, 0.50)}, mockReporter, WithRepository(mockRepo))
		res, err := engine.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Empty(t, res.Scan.Opportunities)
		mockReporter.AssertNotCalled(t, "Report")
		mockRepo.AssertExpectations(t)
	})

	t.Run("profitable opportunity", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockReporter := new(MockReporter)
		mockRepo.On("LogPriceTicks", mock.Anything, mock.Anything).Return(nil).Once()
		mockRepo.On("LogScanSummary", mock.Anything, mock.MatchedBy(func(s model.ScanSummary) bool {
			return s.Opportunities == 1 && s.BestSymbol == "XRP/USDT" && s.NotificationError == ""
		})).Return(nil).Once()
		mockReporter.On("Report", mock.Anything, mock.MatchedBy(func(opps []model.Opportunity) bool {
			return len(opps) == 1 && opps[0].BuyExchange == "alpha" && opps[0].SellExchange == "beta"
		})).Return(nil).Once()

		engine := NewArbitrageEngine(discardLogger(), scanner, &staticSource{ticks: alphaBetaTicks(0.50, 0.55)}, mockReporter, WithRepository(mockRepo))
		res, err := engine.RunCycle(context.Background())
		require.NoError(t, err)
		assert.NotEmpty(t, res.CycleID)
		assert.Len(t, res.Scan.Opportunities, 1)
		mockReporter.AssertExpectations(t)
		mockRepo.AssertExpectations(t)
	})

	t.Run("reporter failure does not fail the cycle", func(t *testing.T) {
		mockReporter := new(MockReporter)
		mockReporter.On("Report", mock.Anything, mock.Anything).Return(errors.New("webhook down")).Once()
		reg := metrics.NewRegistry()

		engine := NewArbitrageEngine(discardLogger(), scanner, &staticSource{ticks: alphaBetaTicks(0.50, 0.55)}, mockReporter, WithMetrics(reg))
		res, err := engine.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "webhook down", res.Summary.NotificationError)
		mockReporter.AssertExpectations(t)
	})

	t.Run("missing price degrades gracefully", func(t *testing.T) {
		mockReporter := new(MockReporter)
		engine := NewArbitrageEngine(discardLogger(), scanner, &staticSource{ticks: alphaBetaTicks(0.50, 0)}, mockReporter)
		res, err := engine.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Empty(t, res.Scan.Opportunities)
		assert.Len(t, res.Scan.Skipped, 2)
		assert.Equal(t, 1, res.Snapshot.Dropped())
		mockReporter.AssertNotCalled(t, "Report")
	})

	t.Run("invalid prices are not published or recorded", func(t *testing.T) {
		ticks := []model.PriceTick{
			{Exchange: "alpha", Symbol: xrpUSDT, Price: 0.5},
			{Exchange: "beta", Symbol: xrpUSDT, Price: math.NaN()},
			{Exchange: "gamma", Symbol: xrpUSDT, Price: 0},
		}
		valid := []model.PriceTick{ticks[0]}

		mockRepo := new(MockRepository)
		mockRepo.On("LogPriceTicks", mock.Anything, valid).Return(nil).Once()
		mockRepo.On("LogScanSummary", mock.Anything, mock.MatchedBy(func(s model.ScanSummary) bool {
			return s.PricesFetched == 1
		})).Return(nil).Once()
		mockPublisher := new(MockPublisher)
		mockPublisher.On("PublishPrices", mock.Anything, valid).Return(nil).Once()

		engine := NewArbitrageEngine(discardLogger(), scanner, &staticSource{ticks: ticks}, nil,
			WithRepository(mockRepo), WithPricePublisher(mockPublisher))
		res, err := engine.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, res.Snapshot.Dropped())
		mockRepo.AssertExpectations(t)
		mockPublisher.AssertExpectations(t)
	})

	t.Run("nothing usable publishes nothing", func(t *testing.T) {
		mockPublisher := new(MockPublisher)
		mockPublisher.On("PublishPrices", mock.Anything, mock.MatchedBy(func(ticks []model.PriceTick) bool {
			return len(ticks) == 0
		})).Return(nil).Once()

		engine := NewArbitrageEngine(discardLogger(), scanner, &staticSource{ticks: alphaBetaTicks(0, math.NaN())}, nil,
			WithPricePublisher(mockPublisher))
		res, err := engine.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, res.Snapshot.Len())
		assert.Equal(t, 2, res.Snapshot.Dropped())
		mockPublisher.AssertExpectations(t)
	})

	t.Run("repository failures are logged only", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("LogPriceTicks", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
		mockRepo.On("LogScanSummary", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

		engine := NewArbitrageEngine(discardLogger(), scanner, &staticSource{ticks: alphaBetaTicks(0.50, 0.55)}, nil, WithRepository(mockRepo))
		_, err := engine.RunCycle(context.Background())
		require.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})
}

type failingSchedule struct {
	fail atomic.Bool
}

func (f *failingSchedule) TradingFee(exchange string) (float64, error) {
	if f.fail.Load() {
		return 0, fees.ErrConfig
	}
	return 0.001, nil
}

func (f *failingSchedule) WithdrawalFee(string, string) float64 { return 0 }

func TestArbitrageEngine_ConfigErrorIsFatal(t *testing.T) {
	schedule := &failingSchedule{}
	scanner, err := NewScanner(schedule, ScannerConfig{
		Symbols:     []model.Symbol{xrpUSDT},
		Exchanges:   []string{"alpha", "beta"},
		TradeAmount: 40,
	})
	require.NoError(t, err)
	schedule.fail.Store(true)

	engine := NewArbitrageEngine(discardLogger(), scanner, &staticSource{ticks: alphaBetaTicks(0.5, 0.55)}, nil)

	_, err = engine.RunCycle(context.Background())
	assert.ErrorIs(t, err, fees.ErrConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = engine.Run(ctx, time.Hour)
	assert.ErrorIs(t, err, fees.ErrConfig)
}

func TestArbitrageEngine_Run(t *testing.T) {
	source := &staticSource{ticks: alphaBetaTicks(0.5, 0.5)}
	engine := NewArbitrageEngine(discardLogger(), newAlphaBetaScanner(t, 40, 0.5), source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx, 10*time.Millisecond) }()

	assert.Eventually(t, func() bool { return source.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.Error(t, engine.Run(context.Background(), 0))
}

func TestArbitrageEngine_Run_SkipsOverlappingTicks(t *testing.T) {
	source := &staticSource{ticks: alphaBetaTicks(0.5, 0.5), delay: 200 * time.Millisecond}
	reg := metrics.NewRegistry()
	engine := NewArbitrageEngine(discardLogger(), newAlphaBetaScanner(t, 40, 0.5), source, nil, WithMetrics(reg))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, engine.Run(ctx, 20*time.Millisecond))

	assert.Equal(t, 1, source.Calls())
	assert.Greater(t, testutil.ToFloat64(reg.CyclesSkipped), 0.0)
}
