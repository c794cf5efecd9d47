package store

// ContentUnit is an immutable, content-addressed blob. The fingerprint is the
// hex SHA-256 of the payload, so identical content always lands on the same
// row and writes are naturally idempotent. Units are never deleted; only
// their retrieval strength fades.
type ContentUnit struct {
	Fingerprint string    `json:"fingerprint"`
	Payload     []byte    `json:"payload,omitempty"`
	ContentType string    `json:"content_type"`
	ByteSize    int64     `json:"byte_size"`
	Embedding   []float32 `json:"-"`
	Quarantined bool      `json:"quarantined,omitempty"`
	CreatedAt   int64     `json:"created_at"`
}

// TreeEntry is one named slot in a snapshot.
type TreeEntry struct {
	TreeID      string `json:"tree_id"`
	Position    int    `json:"position"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	Mode        string `json:"mode,omitempty"`
}

// Commit is one node in a branch's linear history. ParentID is empty only on
// the root commit of a branch.
type Commit struct {
	ID        string `json:"id"`
	TreeID    string `json:"tree_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Branch    string `json:"branch"`
	Author    string `json:"author,omitempty"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"created_at"`

	// Multi-agent lineage, all optional.
	AgentID     string `json:"agent_id,omitempty"`
	ParentAgent string `json:"parent_agent,omitempty"`
	Depth       int    `json:"depth,omitempty"`
	RunID       string `json:"run_id,omitempty"`
}

// Branch is a named pointer into the commit graph. Head is empty until the
// first commit lands. Heads move only through the compare-and-swap inside
// CreateCommit.
type Branch struct {
	Name      string `json:"name"`
	Head      string `json:"head,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// BranchFingerprint is the running semantic profile of a branch: the
// incremental centroid of every committed embedding plus a health score
// tracking how well recent commits still fit it.
type BranchFingerprint struct {
	Branch      string    `json:"branch"`
	Centroid    []float32 `json:"-"`
	CommitCount int64     `json:"commit_count"`
	Health      float64   `json:"health"`
	UpdatedAt   int64     `json:"updated_at"`
}

// Candidate lifecycle states.
const (
	CandidateActive   = "active"
	CandidateCooling  = "cooling"
	CandidatePromoted = "promoted"
	CandidateExpired  = "expired"
)

// CandidateMemory is a working-memory entry awaiting consolidation. It either
// gets promoted into the commit graph or expires; nothing reaches a branch
// head without passing through here or an explicit commit.
type CandidateMemory struct {
	ID               string    `json:"id"`
	Branch           string    `json:"branch"`
	Payload          []byte    `json:"payload,omitempty"`
	ContentType      string    `json:"content_type"`
	ContentEmbedding []float32 `json:"-"`
	ContextEmbedding []float32 `json:"-"`
	Salience         float64   `json:"salience"`
	ReplayCount      int       `json:"replay_count"`
	Status           string    `json:"status"`
	CreatedAt        int64     `json:"created_at"`
	ExpiresAt        int64     `json:"expires_at"`
	PromotedCommitID string    `json:"promoted_commit_id,omitempty"`
}

// ReplayEvent records one replay comparison against a candidate. Near-misses
// are kept with Fired=false for threshold tuning.
type ReplayEvent struct {
	ID          int64
	CandidateID string
	SessionID   string
	Similarity  float64
	Threshold   float64
	Fired       bool
	CreatedAt   int64
}

// TrailEdge is a weighted association between two content units. The row
// carries only what must persist: traversal count, stability, and the last
// traversal time. Storage strength, retrieval strength, and the state band
// are derived from those at read time and filled in by the engine.
type TrailEdge struct {
	Source         string  `json:"source"`
	Target         string  `json:"target"`
	TraversalCount int64   `json:"traversal_count"`
	Stability      float64 `json:"stability"` // hours
	LastTraversed  int64   `json:"last_traversed"`
	CreatedAt      int64   `json:"created_at"`

	// Derived, not stored.
	StorageStrength   float64 `json:"storage_strength"`
	RetrievalStrength float64 `json:"retrieval_strength"`
	State             string  `json:"state"`
}

// Trail state bands, derived from current retrieval strength.
const (
	TrailActive   = "active"
	TrailFading   = "fading"
	TrailDormant  = "dormant"
	TrailArchived = "archived"
)

// TrailParams carries the stability knobs a backend needs to fold a
// traversal into an edge in one atomic statement.
type TrailParams struct {
	BaseStability float64 // hours, for new edges
	Gain          float64 // hours added per traversal, scaled by forgetting
	Cap           float64 // hours, hard ceiling
}

// Link types an annotation may carry.
var LinkTypes = map[string]bool{
	"resonance":     true,
	"causal":        true,
	"contradiction": true,
	"elaboration":   true,
	"application":   true,
}

// Link is an explicit typed association between two content units, distinct
// from the implicit trails laid down by traversal.
type Link struct {
	ID        int64   `json:"id"`
	Source    string  `json:"source"`
	Target    string  `json:"target"`
	LinkType  string  `json:"link_type"`
	Weight    float64 `json:"weight"`
	Reasoning string  `json:"reasoning,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// LinkDegree is a fingerprint with its total link count, used to surface
// highly connected units.
type LinkDegree struct {
	Fingerprint string
	Degree      int
}

// CommitTag is a named marker on a commit.
type CommitTag struct {
	Tag       string `json:"tag"`
	CommitID  string `json:"commit_id"`
	Branch    string `json:"branch"`
	CreatedAt int64  `json:"created_at"`
}

// ConsolidationRun is the audit record of one consolidation cycle. Failures
// are recorded here rather than raised to the caller.
type ConsolidationRun struct {
	RunID      string   `json:"run_id"`
	StartedAt  int64    `json:"started_at"`
	DurationMS int64    `json:"duration_ms"`
	Evaluated  int      `json:"evaluated"`
	Promoted   int      `json:"promoted"`
	Expired    int      `json:"expired"`
	Cooled     int      `json:"cooled"`
	Threshold  float64  `json:"threshold"`
	CommitIDs  []string `json:"commit_ids,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Session is an agent conversation checkpoint. Its context embedding feeds
// replay checks; the checkpoint text is what resume hands back.
type Session struct {
	ID               string    `json:"id"`
	Agent            string    `json:"agent,omitempty"`
	Branch           string    `json:"branch,omitempty"`
	Checkpoint       string    `json:"checkpoint"`
	ContextEmbedding []float32 `json:"-"`
	StartedAt        int64     `json:"started_at"`
	UpdatedAt        int64     `json:"updated_at"`
	ResumedAt        int64     `json:"resumed_at,omitempty"`
}

// PromoteMark asks CreateCommit to flip a candidate to promoted inside the
// same transaction as the commit itself, so promotion is exactly-once even
// across crashes.
type PromoteMark struct {
	CandidateID string
}

// SearchHit is one ranked retrieval primitive result. Score semantics differ
// per list (bm25 for lexical, cosine for vector); the engine only consumes
// the ordering.
type SearchHit struct {
	Fingerprint string
	Score       float64
	Branch      string
	CommitID    string
	ContentType string
	Excerpt     string
}

// Stats summarizes the store for health and graph endpoints.
type Stats struct {
	Blobs            int64 `json:"blobs"`
	Commits          int64 `json:"commits"`
	Branches         int64 `json:"branches"`
	ActiveCandidates int64 `json:"active_candidates"`
	TrailEdges       int64 `json:"trail_edges"`
	Links            int64 `json:"links"`
}
