// internal/models/article.go
package models

// Source is a grounding citation. URI is the identity key.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Label returns the title, falling back to the URI.
func (s Source) Label() string {
	if s.Title != "" {
		return s.Title
	}
	return s.URI
}

// Article is the document assembled from one stream.
type Article struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Sources []Source `json:"sources"`
}

// Clone returns a deep copy safe to hand to observers.
func (a *Article) Clone() *Article {
	if a == nil {
		return nil
	}
	out := &Article{Title: a.Title, Content: a.Content}
	if a.Sources != nil {
		out.Sources = append([]Source(nil), a.Sources...)
	}
	return out
}

// DisambiguationChoice is one possible specific meaning of an ambiguous query.
type DisambiguationChoice struct {
	Topic       string `json:"topic"`
	Description string `json:"description"`
}
