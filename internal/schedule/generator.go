package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashita-ai/kehai/internal/preset"
)

// Generator produces the slot list for one calendar date. It may be slow
// (seconds) and is always invoked off the evaluation loop's critical path.
type Generator interface {
	GenerateDaily(ctx context.Context, date time.Time) ([]Slot, error)
}

// LLMConfig configures the chat-completions generator.
type LLMConfig struct {
	// BaseURL of an OpenAI-compatible API, without the /chat/completions
	// suffix.
	BaseURL string
	APIKey  string
	Model   string
	// Persona is prepended to the system prompt so generated schedules match
	// the agent's character.
	Persona string
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// LLMGenerator asks a chat-completions endpoint for a daily schedule. The
// prompt constrains the model to two slot shapes: a reference into the
// configured preset names, or custom text paired with a known icon name.
type LLMGenerator struct {
	cfg        LLMConfig
	presets    *preset.Set
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLLMGenerator builds the generator. Presets must not be nil: the preset
// and icon name lists are the model's only allowed vocabulary.
func NewLLMGenerator(cfg LLMConfig, presets *preset.Set, logger *slog.Logger) *LLMGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &LLMGenerator{
		cfg:        cfg,
		presets:    presets,
		httpClient: httpClient,
		logger:     logger.With("component", "schedule_generator"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "周一",
	time.Tuesday:   "周二",
	time.Wednesday: "周三",
	time.Thursday:  "周四",
	time.Friday:    "周五",
	time.Saturday:  "周六",
	time.Sunday:    "周日",
}

func (g *LLMGenerator) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You plan the daily presence schedule for a chat agent. ")
	b.WriteString("Produce a realistic full-day routine as a JSON array of time slots.")
	if g.cfg.Persona != "" {
		b.WriteString("\n\nAgent persona:\n")
		b.WriteString(g.cfg.Persona)
	}
	return b.String()
}

func (g *LLMGenerator) userPrompt(date time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s (%s). Generate today's schedule as JSON.\n\n", date.Format("2006-01-02"), weekdayNames[date.Weekday()])

	b.WriteString("Available preset names (for the status_name field, must match exactly):\n")
	for _, name := range g.presets.Names() {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	b.WriteString("\nAvailable icon names (for the face_name field only):\n[")
	b.WriteString(strings.Join(g.presets.IconNames(), ", "))
	b.WriteString("]\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("1. Preset slot: {\"start\": \"08:00\", \"end\": \"09:00\", \"status_name\": \"<preset>\"} with no other fields.\n")
	b.WriteString("2. Custom slot: no status_name; include \"text\" (at most 8 display characters), \"face_name\" from the icon list, and \"is_silent\" (true for sleep or do-not-disturb periods).\n")
	b.WriteString("Return only the JSON array, no markdown fences.")
	return b.String()
}

// GenerateDaily requests a schedule. The reply tolerates the usual model
// quirks: markdown fences around the JSON, and slots that fill both the
// preset and custom shapes at once (the caller's sanitization keeps the
// preset reference).
func (g *LLMGenerator) GenerateDaily(ctx context.Context, date time.Time) ([]Slot, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: g.systemPrompt()},
			{Role: "user", Content: g.userPrompt(date)},
		},
		Temperature: 0.8,
	})
	if err != nil {
		return nil, fmt.Errorf("schedule: marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("schedule: create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schedule: send chat request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("schedule: chat completion status %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("schedule: decode chat response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("schedule: chat completion returned no choices")
	}

	content := stripFences(result.Choices[0].Message.Content)

	var slots []Slot
	if err := json.Unmarshal([]byte(content), &slots); err != nil {
		g.logger.Error("generated schedule is not valid JSON", "date", date.Format("2006-01-02"), "error", err)
		return nil, fmt.Errorf("schedule: parse generated schedule: %w", err)
	}

	g.logger.Info("schedule generated", "date", date.Format("2006-01-02"), "slots", len(slots))
	return slots, nil
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// stripFences extracts JSON from a markdown code fence if the model wrapped
// its answer in one.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}
