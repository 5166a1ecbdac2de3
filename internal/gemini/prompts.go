package gemini

import (
	"fmt"

	"wiki-explorer/internal/common/validation"
)

const disambiguationPrompt = `The user searched for %q. The term may be ambiguous. ` +
	`If it has several common, distinct meanings, return a list of at most %d of them. ` +
	`For each meaning give a "topic" (a more specific search term, in %s) and a "description" (a short explanation, in %s). ` +
	`If the term is not ambiguous or has one clear main meaning, return an empty list.`

const articlePrompt = `You are a comprehensive multilingual encyclopedia. Write a detailed, accurate article in %s about the following topic: %q. ` +
	`Mark key words and concepts the reader may want to learn more about by wrapping them in double brackets, like this: [[key concept]]. ` +
	`Use reliable sources and structure the article like a Wikipedia article.`

func buildDisambiguationPrompt(query, language string, limit int) string {
	return fmt.Sprintf(disambiguationPrompt, query, limit, language, language)
}

func buildArticlePrompt(query, language string) string {
	return fmt.Sprintf(articlePrompt, language, query)
}

// responseSchema is the disambiguation schema in the model's OpenAPI subset.
func responseSchema(language string) map[string]interface{} {
	return map[string]interface{}{
		"type": "ARRAY",
		"items": map[string]interface{}{
			"type": "OBJECT",
			"properties": map[string]interface{}{
				"topic": map[string]interface{}{
					"type":        "STRING",
					"description": fmt.Sprintf("A more specific search term in %s.", language),
				},
				"description": map[string]interface{}{
					"type":        "STRING",
					"description": fmt.Sprintf("A short description in %s.", language),
				},
			},
			"required": []string{"topic", "description"},
		},
	}
}

// choiceListSchema checks the model's answer before it reaches callers.
var choiceListSchema = validation.MustCompile(map[string]interface{}{
	"type": "array",
	"items": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"topic":       map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"topic", "description"},
	},
})
