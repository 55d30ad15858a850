package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mantisec/pkgwatch/monitor"
)

// DefaultMaxBodyChars is the fallback message body budget when none is
// configured. Matches the embed description limit of common chat services.
const DefaultMaxBodyChars = 4000

const alertColor = 0xF70606

type webhookEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []webhookField `json:"fields,omitempty"`
	Footer      *webhookFooter `json:"footer,omitempty"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type webhookFooter struct {
	Text string `json:"text"`
}

type webhookBody struct {
	Content string         `json:"content,omitempty"`
	Embeds  []webhookEmbed `json:"embeds"`
}

// WebhookChannel posts flagged-release alerts to a chat "incoming webhook".
// The webhook must be already configured in the chat workspace.
type WebhookChannel struct {
	URL string
	// Mention is prepended to the message content, e.g. a role ping.
	Mention string
	// MaxBodyChars caps the rendered rule list; longer lists are
	// truncated with an explicit "+N more rules" marker line.
	MaxBodyChars int
	Client       *http.Client
}

var _ Channel = (*WebhookChannel)(nil)

func NewWebhookChannel(url, mention string, maxBodyChars int, client *http.Client) *WebhookChannel {
	if maxBodyChars <= 0 {
		maxBodyChars = DefaultMaxBodyChars
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookChannel{
		URL:          url,
		Mention:      mention,
		MaxBodyChars: maxBodyChars,
		Client:       client,
	}
}

func (c *WebhookChannel) Name() string {
	return "chat"
}

func (c *WebhookChannel) Send(ctx context.Context, v *monitor.Verdict) error {
	// the code-fence wrapper counts against the body cap
	budget := c.MaxBodyChars - 6
	if budget < 0 {
		budget = 0
	}
	body, _ := RenderRuleBody(v, budget)
	desc := "```" + body + "```"

	embed := webhookEmbed{
		Title:       fmt.Sprintf("Malicious package found: %s v%s", v.Name, v.Version),
		Description: desc,
		Color:       alertColor,
		Footer:      &webhookFooter{Text: fmt.Sprintf("score %d", v.Score)},
	}
	if v.InspectorURL != "" {
		embed.Fields = append(embed.Fields, webhookField{
			Name:   "​",
			Value:  fmt.Sprintf("[Inspector](%s)", v.InspectorURL),
			Inline: true,
		})
	}
	if v.PackageURL != "" {
		embed.Fields = append(embed.Fields, webhookField{
			Name:   "​",
			Value:  fmt.Sprintf("[Package](%s)", v.PackageURL),
			Inline: true,
		})
	}

	return c.post(ctx, webhookBody{
		Content: c.Mention,
		Embeds:  []webhookEmbed{embed},
	})
}

// SendCycleSummary posts the list of releases scanned during one polling
// cycle, for operator visibility.
func (c *WebhookChannel) SendCycleSummary(ctx context.Context, scanned []string) error {
	var desc string
	if len(scanned) > 0 {
		body, omitted := fitLines(scanned, c.MaxBodyChars)
		if omitted > 0 {
			body = body + "\n" + fmt.Sprintf("+%d more", omitted)
		}
		desc = "Releases scanned:\n```" + body + "```"
	} else {
		desc = "_no new releases since last cycle_"
	}
	return c.post(ctx, webhookBody{
		Embeds: []webhookEmbed{{
			Title:       "pkgwatch cycle summary",
			Description: desc,
			Color:       alertColor,
		}},
	})
}

func (c *WebhookChannel) post(ctx context.Context, body webhookBody) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewBuffer(b))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("failed webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

// RenderRuleBody renders the verdict's rule hits as one line per rule,
// preserving the verdict's ordering, within the given character budget.
// When the full list does not fit, whole trailing lines are dropped and a
// final "+N more rules" marker line reports the omission count. Returns the
// body and the number of omitted rules.
func RenderRuleBody(v *monitor.Verdict, budget int) (string, int) {
	if len(v.Hits) == 0 {
		return "no rules matched", 0
	}
	lines := make([]string, len(v.Hits))
	for i, h := range v.Hits {
		if h.Description != "" {
			lines[i] = fmt.Sprintf("%s (%d): %s", h.ID, h.Weight, h.Description)
		} else {
			lines[i] = fmt.Sprintf("%s (%d)", h.ID, h.Weight)
		}
	}
	body, omitted := fitLines(lines, budget)
	if omitted > 0 {
		marker := fmt.Sprintf("+%d more rules", omitted)
		if body == "" {
			return marker, omitted
		}
		return body + "\n" + marker, omitted
	}
	return body, 0
}

// fitLines keeps the longest prefix of whole lines that fits the budget,
// reserving room for a trailing marker line when anything is dropped.
func fitLines(lines []string, budget int) (string, int) {
	full := strings.Join(lines, "\n")
	if len(full) <= budget {
		return full, 0
	}
	for keep := len(lines) - 1; keep > 0; keep-- {
		marker := fmt.Sprintf("+%d more rules", len(lines)-keep)
		candidate := strings.Join(lines[:keep], "\n")
		if len(candidate)+1+len(marker) <= budget {
			return candidate, len(lines) - keep
		}
	}
	return "", len(lines)
}
