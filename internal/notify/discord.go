package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// Embed colors per event type.
var discordColors = map[model.EventType]int{
	model.EventRequested: 0x95a5a6,
	model.EventApproved:  0x2ecc71,
	model.EventReady:     0x3498db,
	model.EventCompleted: 0x1abc9c,
	model.EventConverted: 0x1abc9c,
	model.EventRejected:  0xe74c3c,
	model.EventCancelled: 0xe67e22,
	model.EventExpired:   0x7f8c8d,
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

// Discord posts events to a Discord webhook.
type Discord struct {
	URL    string
	Client *http.Client
}

// NewDiscord returns a webhook notifier with a bounded request timeout.
func NewDiscord(url string) *Discord {
	return &Discord{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (d *Discord) Notify(ctx context.Context, e model.Event) error {
	r := e.Reservation
	payload := discordPayload{
		Embeds: []discordEmbed{{
			Title:       fmt.Sprintf("Reservation %s", e.Type),
			Description: Message(e),
			Color:       discordColors[e.Type],
			Fields: []discordField{
				{Name: "Reservation", Value: r.ID},
				{Name: "Start", Value: r.StartTime.Format("2006-01-02 15:04"), Inline: true},
				{Name: "End", Value: r.EndTime.Format("15:04"), Inline: true},
			},
			Timestamp: e.At.UTC().Format(time.RFC3339),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting discord webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("discord webhook returned %s", resp.Status)
	}
	return nil
}
