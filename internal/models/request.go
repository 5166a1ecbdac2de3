package models

// Operation selects what POST /api/generate does.
type Operation string

const (
	OperationDisambiguate  Operation = "disambiguate"
	OperationStreamArticle Operation = "streamArticle"
)

type GenerateRequest struct {
	Operation Operation `json:"operation"`
	Query     string    `json:"query"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
