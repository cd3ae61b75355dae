package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arbscout/internal/model"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, title, message string) error {
	args := m.Called(ctx, title, message)
	return args.Error(0)
}

func (m *MockSender) Name() string {
	return m.Called().String(0)
}

var sampleOpportunity = model.Opportunity{
	Symbol:       model.MustParseSymbol("XRP/USDT"),
	BuyExchange:  "binance",
	SellExchange: "kucoin",
	BuyPrice:     0.5,
	SellPrice:    0.52,
	NetProfit:    37.6,
	NetProfitPct: 3.76,
}

func TestFormatOpportunity(t *testing.T) {
	want := "Buy on binance at 0.5000\n" +
		"Sell on kucoin at 0.5200\n" +
		"Profit: 37.60 USDT (3.76%)\n" +
		"Pair: XRP/USDT"
	assert.Equal(t, want, FormatOpportunity(sampleOpportunity))
}

func TestTelegramSender_Send(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	sender := NewTelegramSender("123:abc", "42").WithAPIBase(srv.URL + "/")
	require.NoError(t, sender.Send(context.Background(), "Title", "body"))

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "Title\nbody", got["text"])
}

func TestTelegramSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"ok":false,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	err := NewTelegramSender("bad", "42").WithAPIBase(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 401")
}

func TestTelegramSender_RedactsToken(t *testing.T) {
	sender := NewTelegramSender("secret-token", "42").WithAPIBase("http://127.0.0.1:1")
	err := sender.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestTelegramSender_RedactedErrorKeepsCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := NewTelegramSender("secret-token", "42").WithAPIBase(srv.URL).Send(ctx, "t", "m")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func discordServer(t *testing.T, got *discordPayload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscordSender_Send(t *testing.T) {
	var got discordPayload
	d := NewDiscordSender(discordServer(t, &got).URL)
	d.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, d.Send(context.Background(), "Title", "body"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Title", got.Embeds[0].Title)
	assert.Equal(t, "body", got.Embeds[0].Description)
	assert.Equal(t, "2024-05-01T12:00:00Z", got.Embeds[0].Timestamp)
}

func TestDiscordSender_SendOpportunity(t *testing.T) {
	var got discordPayload
	d := NewDiscordSender(discordServer(t, &got).URL)

	require.NoError(t, d.SendOpportunity(context.Background(), sampleOpportunity))
	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	assert.Contains(t, embed.Title, "XRP/USDT")
	assert.Equal(t, discordColorProfit, embed.Color)
	assert.Equal(t, []discordField{
		{Name: "Buy", Value: "binance @ 0.5000", Inline: true},
		{Name: "Sell", Value: "kucoin @ 0.5200", Inline: true},
		{Name: "Net profit", Value: "37.60 USDT (3.76%)"},
	}, embed.Fields)
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Invalid Webhook Token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).SendOpportunity(context.Background(), sampleOpportunity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 401")
}

func TestNotifier_ContinuesAfterFailure(t *testing.T) {
	failing := new(MockSender)
	failing.On("Name").Return("telegram")
	failing.On("Send", mock.Anything, "t", "m").Return(errors.New("boom"))
	ok := new(MockSender)
	ok.On("Name").Return("discord")
	ok.On("Send", mock.Anything, "t", "m").Return(nil)

	n := NewNotifier([]Sender{failing, ok}, testLogger)
	err := n.Notify(context.Background(), "t", "m")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: boom")
	failing.AssertExpectations(t)
	ok.AssertExpectations(t)
}

func TestNotifier_NoSenders(t *testing.T) {
	n := NewNotifier(nil, testLogger)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), "t", "m"))
}

func TestReporter_Report(t *testing.T) {
	second := sampleOpportunity
	second.Symbol = model.MustParseSymbol("ADA/USDT")

	sender := new(MockSender)
	sender.On("Name").Return("telegram")
	sender.On("Send", mock.Anything, OpportunityTitle, FormatOpportunity(sampleOpportunity)).Return(errors.New("timeout")).Once()
	sender.On("Send", mock.Anything, OpportunityTitle, FormatOpportunity(second)).Return(nil).Once()

	r := NewReporter(NewNotifier([]Sender{sender}, testLogger))
	err := r.Report(context.Background(), []model.Opportunity{sampleOpportunity, second})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "XRP/USDT binance->kucoin")
	sender.AssertExpectations(t)
}

func TestReporter_UsesOpportunityLayoutWhenAvailable(t *testing.T) {
	var got discordPayload
	discord := NewDiscordSender(discordServer(t, &got).URL)

	text := new(MockSender)
	text.On("Name").Return("telegram")
	text.On("Send", mock.Anything, OpportunityTitle, FormatOpportunity(sampleOpportunity)).Return(nil).Once()

	r := NewReporter(NewNotifier([]Sender{text, discord}, testLogger))
	require.NoError(t, r.Report(context.Background(), []model.Opportunity{sampleOpportunity}))

	text.AssertExpectations(t)
	require.Len(t, got.Embeds, 1)
	assert.Len(t, got.Embeds[0].Fields, 3)
	assert.Empty(t, got.Embeds[0].Description)
}

func TestReporter_Empty(t *testing.T) {
	r := NewReporter(NewNotifier(nil, testLogger))
	assert.NoError(t, r.Report(context.Background(), nil))
}
