package domain

// NotebookTaxonomy maps classifier categories to display emoji. The
// classifier collaborator returns one of these keys; unknown output falls
// back to "general".
var NotebookTaxonomy = map[string]string{
	// Academic
	"mathematics":       "📐",
	"physics":           "⚛️",
	"chemistry":         "🧪",
	"biology":           "🧬",
	"history":           "🏺",
	"literature":        "📚",
	"language_learning": "🗣️",
	"research_paper":    "🎓",

	// Technology
	"software_development":    "💻",
	"data_science":            "📊",
	"artificial_intelligence": "🤖",
	"cybersecurity":           "🛡️",
	"devops":                  "🏗️",

	// Business
	"finance":         "💰",
	"marketing":       "📢",
	"management":      "👔",
	"legal":           "⚖️",
	"meeting_minutes": "📝",
	"resume_cv":       "📄",

	// Personal
	"travel_planning": "✈️",
	"cooking_recipes": "🍳",
	"health_fitness":  "💪",
	"journal_diary":   "📔",
	"music_art":       "🎨",
	"gaming":          "🎮",
	"shopping_list":   "🛒",

	"general": "📁",
	"unknown": "❓",
}

// GeneralEmoji is the fallback tag for unclassifiable content.
const GeneralEmoji = "📁"

// UnknownEmoji tags content too short to classify.
const UnknownEmoji = "❓"

// EmojiForCategory resolves a classifier category to its emoji, defaulting to
// the general tag.
func EmojiForCategory(category string) string {
	if emoji, ok := NotebookTaxonomy[category]; ok {
		return emoji
	}
	return GeneralEmoji
}

// TaxonomyCategories lists the categories offered to the classifier prompt,
// excluding the fallback buckets.
func TaxonomyCategories() []string {
	out := make([]string, 0, len(NotebookTaxonomy))
	for k := range NotebookTaxonomy {
		if k == "general" || k == "unknown" {
			continue
		}
		out = append(out, k)
	}
	return out
}
