package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var Files embed.FS

var (
	topicTagRegex = regexp.MustCompile(`(?i)</?\s*topic\b[^>]*>`)
	spaceRegex    = regexp.MustCompile(`\s+`)
)

const maxTopicRunes = 200

// Difficulty selects a drafting prompt variant.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the variants in display order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

var (
	loadOnce       sync.Once
	loadErr        error
	draftTemplates map[Difficulty]*template.Template
)

// IsValidDifficulty checks if a difficulty name is valid.
func IsValidDifficulty(d string) bool {
	for _, v := range Difficulties {
		if string(v) == d {
			return true
		}
	}
	return false
}

// DraftData holds template data for drafting prompts.
type DraftData struct {
	Subject  string
	Topic    string
	Language string
}

// Load loads prompt templates from fsys, once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		draftTemplates = make(map[Difficulty]*template.Template)
		for _, d := range Difficulties {
			name := "templates/draft_" + string(d) + ".txt"
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return
			}
			tmpl, err := template.New(string(d)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			draftTemplates[d] = tmpl
		}
	})
	return loadErr
}

// BuildDraftPrompt renders the drafting prompt for a difficulty.
func BuildDraftPrompt(d Difficulty, data DraftData) (string, error) {
	if draftTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := draftTemplates[d]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid difficulty: " + string(d))
	}

	data.Topic = SanitizeTopic(data.Topic)
	if data.Language == "" {
		data.Language = "Spanish"
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SanitizeTopic strips prompt delimiters, collapses whitespace and bounds the
// length of a tutor-supplied topic.
func SanitizeTopic(topic string) string {
	topic = topicTagRegex.ReplaceAllString(topic, "")
	topic = spaceRegex.ReplaceAllString(topic, " ")
	topic = strings.TrimSpace(topic)

	if topic == "" {
		return "[any topic of the subject]"
	}
	if utf8.RuneCountInString(topic) > maxTopicRunes {
		topic = string([]rune(topic)[:maxTopicRunes])
	}
	return topic
}
