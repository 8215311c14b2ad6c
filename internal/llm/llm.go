package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/preupac/simulador/internal/llm/prompts"
	"github.com/preupac/simulador/internal/model"
)

// ErrBadDraft is returned when the model's answer is not a usable question.
var ErrBadDraft = errors.New("unusable draft")

var languageNames = map[string]string{
	"es": "Spanish",
	"en": "English",
}

// DraftRequest describes the question a tutor wants drafted.
type DraftRequest struct {
	Subject    model.Subject
	Topic      string
	Difficulty prompts.Difficulty
	Lang       string // UI language tag, e.g. "es"
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client and loads the prompt templates.
func New(baseURL, apiKey, modelName string) (*Client, error) {
	if err := prompts.Load(prompts.Files); err != nil {
		return nil, err
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}, nil
}

// Ping checks that the endpoint answers and serves the configured model.
func (c *Client) Ping(ctx context.Context) error {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range list.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("model not listed by endpoint", "model", c.model, "available", len(list.Models))
	return nil
}

// DraftQuestion asks the model for a three-option question. The result is
// a suggestion for the tutor to edit; it is not stored.
func (c *Client) DraftQuestion(ctx context.Context, req DraftRequest) (model.Question, error) {
	if req.Difficulty == "" {
		req.Difficulty = prompts.DifficultyMedium
	}
	lang := languageNames[req.Lang]
	prompt, err := prompts.BuildDraftPrompt(req.Difficulty, prompts.DraftData{
		Subject:  string(req.Subject),
		Topic:    req.Topic,
		Language: lang,
	})
	if err != nil {
		return model.Question{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return model.Question{}, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.Question{}, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseDraft(raw)
}

func parseDraft(raw string) (model.Question, error) {
	var qi model.QuestionImport
	if err := json.Unmarshal([]byte(raw), &qi); err != nil {
		return model.Question{}, fmt.Errorf("%w: parse response: %w (raw: %s)", ErrBadDraft, err, raw)
	}
	q := model.Question{
		Text:    strings.TrimSpace(qi.Text),
		OptionA: strings.TrimSpace(qi.OptionA),
		OptionB: strings.TrimSpace(qi.OptionB),
		OptionC: strings.TrimSpace(qi.OptionC),
	}
	if q.Text == "" || q.OptionA == "" || q.OptionB == "" || q.OptionC == "" {
		return model.Question{}, fmt.Errorf("%w: missing text or options", ErrBadDraft)
	}
	correct, err := model.ParseOption(qi.Correct, model.QuestionOptions)
	if err != nil {
		return model.Question{}, fmt.Errorf("%w: %w", ErrBadDraft, err)
	}
	q.Correct = correct
	return q, nil
}
