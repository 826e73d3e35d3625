package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/intellinote/intellinote/internal/domain"
)

const (
	// classifyMinChars is the minimum sample length worth classifying.
	classifyMinChars = 10
	// classifyMaxChars bounds the sample sent to the model.
	classifyMaxChars = 2000
)

// ChatModel is the LLM surface the classifier needs.
type ChatModel interface {
	Enabled() bool
	Classify(ctx context.Context, prompt string) (string, error)
}

// Classifier assigns a taxonomy emoji to document content. It never fails:
// every error path degrades to the general bucket.
type Classifier struct {
	llm ChatModel
}

func NewClassifier(llm ChatModel) *Classifier {
	return &Classifier{llm: llm}
}

// EmojiFor classifies a text sample into the notebook taxonomy and returns
// the matching emoji.
func (c *Classifier) EmojiFor(ctx context.Context, text string) string {
	sample := strings.TrimSpace(text)
	if len([]rune(sample)) < classifyMinChars {
		return domain.UnknownEmoji
	}
	if runes := []rune(sample); len(runes) > classifyMaxChars {
		sample = string(runes[:classifyMaxChars])
	}

	if c.llm == nil || !c.llm.Enabled() {
		return domain.GeneralEmoji
	}

	raw, err := c.llm.Classify(ctx, classifyPrompt(sample))
	if err != nil {
		log.Printf("classifier: falling back to general: %v", err)
		return domain.GeneralEmoji
	}

	return domain.EmojiForCategory(cleanCategory(raw))
}

func classifyPrompt(sample string) string {
	categories := domain.TaxonomyCategories()
	sort.Strings(categories)
	return fmt.Sprintf(
		"Classify the following document excerpt into exactly one category.\n"+
			"Categories: %s\n"+
			"Answer with the category name only, nothing else.\n\n"+
			"Excerpt:\n%s",
		strings.Join(categories, ", "), sample)
}

// cleanCategory strips the decoration models tend to add around a bare label.
func cleanCategory(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "`\"' .")
	return strings.ToLower(strings.TrimSpace(s))
}
