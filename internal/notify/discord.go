package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"arbscout/internal/model"
)

// Embed sidebar colours.
const (
	discordColorInfo   = 0x3498DB
	discordColorProfit = 0x2ECC71
)

// DiscordSender posts alerts to a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// Send posts a single embed with title and message as its description.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return d.post(ctx, discordEmbed{
		Title:       title,
		Description: message,
		Color:       discordColorInfo,
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	})
}

// SendOpportunity posts opp as an embed with one field per trade leg.
func (d *DiscordSender) SendOpportunity(ctx context.Context, opp model.Opportunity) error {
	return d.post(ctx, discordEmbed{
		Title: fmt.Sprintf("%s %s", OpportunityTitle, opp.Symbol),
		Color: discordColorProfit,
		Fields: []discordField{
			{Name: "Buy", Value: fmt.Sprintf("%s @ %.4f", opp.BuyExchange, opp.BuyPrice), Inline: true},
			{Name: "Sell", Value: fmt.Sprintf("%s @ %.4f", opp.SellExchange, opp.SellPrice), Inline: true},
			{Name: "Net profit", Value: fmt.Sprintf("%.2f %s (%.2f%%)", opp.NetProfit, opp.Symbol.Quote, opp.NetProfitPct)},
		},
		Timestamp: d.now().UTC().Format(time.RFC3339),
	})
}

func (d *DiscordSender) post(ctx context.Context, embed discordEmbed) error {
	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
