package domain

// ToolSummary is the short catalog entry used in aggregate listings.
type ToolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ToolDetail carries the full input schema for one tool. The schema is an
// opaque JSON value; the gateway never interprets it.
type ToolDetail struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema,omitempty"`
}

// ServiceIndex is one row of the aggregate listing. Available reports
// whether the server's catalog could actually be fetched; a failing server
// shows up with Available=false instead of failing the listing.
type ServiceIndex struct {
	Name        string        `json:"name"`
	DisplayName string        `json:"displayName,omitempty"`
	Description string        `json:"description,omitempty"`
	Enabled     bool          `json:"enabled"`
	Available   bool          `json:"available"`
	HasSkillDoc bool          `json:"hasSkillDocument"`
	AISummary   string        `json:"aiSummary,omitempty"`
	Tools       []ToolSummary `json:"tools"`
}

// ServiceDetails is the single-server view with full tool schemas.
type ServiceDetails struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"displayName,omitempty"`
	Description string       `json:"description,omitempty"`
	Enabled     bool         `json:"enabled"`
	Available   bool         `json:"available"`
	HasSkillDoc bool         `json:"hasSkillDocument"`
	AISummary   string       `json:"aiSummary,omitempty"`
	Tools       []ToolDetail `json:"tools"`
}
