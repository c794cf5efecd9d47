package mcpserver

// Tool inputs. Text is the primary content form here; agents talking MCP do
// not juggle base64 payloads.

type CommitIn struct {
	Branch      string   `json:"branch" jsonschema:"description=Branch to commit to"`
	Message     string   `json:"message" jsonschema:"description=Commit message"`
	Text        string   `json:"text" jsonschema:"description=Content to remember"`
	ContentType string   `json:"content_type,omitempty" jsonschema:"description=MIME type, defaults to text/plain"`
	Author      string   `json:"author,omitempty" jsonschema:"description=Author identity"`
	Tags        []string `json:"tags,omitempty" jsonschema:"description=Tags to attach to the commit"`
	AgentID     string   `json:"agent_id,omitempty" jsonschema:"description=Agent lineage id"`
	RunID       string   `json:"run_id,omitempty" jsonschema:"description=Run lineage id"`
}

type SearchIn struct {
	Query  string `json:"query" jsonschema:"description=Search query"`
	Branch string `json:"branch,omitempty" jsonschema:"description=Restrict to one branch"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum results, default 10"`
}

type RecallIn struct {
	ID string `json:"id" jsonschema:"description=Content fingerprint or commit id"`
}

type LogIn struct {
	Branch string `json:"branch" jsonschema:"description=Branch to read"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum commits, default 20"`
}

type StageIn struct {
	Branch      string  `json:"branch" jsonschema:"description=Branch the candidate belongs to"`
	Text        string  `json:"text" jsonschema:"description=Candidate content"`
	ContentType string  `json:"content_type,omitempty" jsonschema:"description=MIME type, defaults to text/plain"`
	Salience    float64 `json:"salience" jsonschema:"description=Importance in [0,1]"`
	TTLHours    int     `json:"ttl_hours,omitempty" jsonschema:"description=Hours before the candidate expires"`
	ContextText string  `json:"context_text,omitempty" jsonschema:"description=Session context, embedded for replay checks"`
}

type LinkIn struct {
	Source    string  `json:"source" jsonschema:"description=Source fingerprint"`
	Target    string  `json:"target" jsonschema:"description=Target fingerprint"`
	LinkType  string  `json:"link_type" jsonschema:"description=resonance, causal, contradiction, elaboration, or application"`
	Weight    float64 `json:"weight,omitempty" jsonschema:"description=Link weight, default 0.5"`
	Reasoning string  `json:"reasoning,omitempty" jsonschema:"description=Why the link exists"`
}

type TrailPairIn struct {
	Source string `json:"source" jsonschema:"description=Source fingerprint"`
	Target string `json:"target" jsonschema:"description=Target fingerprint"`
}

type TrailEndpointIn struct {
	Fingerprint string `json:"fingerprint" jsonschema:"description=Content fingerprint"`
}

type LimitIn struct {
	Limit int `json:"limit,omitempty" jsonschema:"description=Maximum results, default 20"`
}

type ForecastIn struct {
	Hours float64 `json:"hours,omitempty" jsonschema:"description=Projection horizon in hours, default 24"`
	Limit int     `json:"limit,omitempty" jsonschema:"description=Maximum edges, default 50"`
}

type ValidateIn struct {
	Text   string `json:"text" jsonschema:"description=Content to route"`
	Branch string `json:"branch" jsonschema:"description=Declared destination branch"`
}

type CheckpointIn struct {
	ID         string `json:"id,omitempty" jsonschema:"description=Session id, generated when empty"`
	Agent      string `json:"agent,omitempty" jsonschema:"description=Agent identity"`
	Branch     string `json:"branch,omitempty" jsonschema:"description=Branch the session works on"`
	Checkpoint string `json:"checkpoint" jsonschema:"description=State to save for resume"`
}

type ResumeIn struct {
	ID string `json:"id" jsonschema:"description=Session id to resume"`
}

type EmptyIn struct{}
