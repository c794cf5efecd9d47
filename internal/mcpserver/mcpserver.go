// Package mcpserver exposes the engine as MCP tools over stdio, so agents
// can read and write memory without the HTTP API.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/mnemon-ai/mnemon/internal/engine"
	"github.com/mnemon-ai/mnemon/internal/store"
)

// Service adapts tool inputs to engine calls. Tool handlers stay closures
// over this so the logic is testable without a transport.
type Service struct {
	eng *engine.Engine
}

func NewService(eng *engine.Engine) *Service {
	return &Service{eng: eng}
}

func (s *Service) Commit(ctx context.Context, in CommitIn) (*engine.CommitResult, error) {
	if in.Text == "" {
		return nil, store.Invalid("text", "must not be empty")
	}
	entry := engine.CommitEntry{
		Name:        "note",
		Payload:     []byte(in.Text),
		ContentType: in.ContentType,
	}
	if entry.ContentType == "" {
		entry.ContentType = "text/plain"
	}
	return s.eng.Commit(ctx, engine.CommitInput{
		Branch:  in.Branch,
		Author:  in.Author,
		Message: in.Message,
		Tags:    in.Tags,
		Entries: []engine.CommitEntry{entry},
		Lineage: engine.Lineage{AgentID: in.AgentID, RunID: in.RunID},
	})
}

func (s *Service) Search(ctx context.Context, in SearchIn) ([]engine.SearchResult, error) {
	return s.eng.Search(ctx, in.Query, in.Branch, in.Limit)
}

func (s *Service) Recall(ctx context.Context, in RecallIn) (*engine.RecallResult, error) {
	return s.eng.Recall(ctx, in.ID)
}

func (s *Service) Log(ctx context.Context, in LogIn) ([]store.Commit, error) {
	if in.Branch == "" {
		return nil, store.Invalid("branch", "must not be empty")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	return s.eng.History(ctx, in.Branch, limit)
}

func (s *Service) Stage(ctx context.Context, in StageIn) (*store.CandidateMemory, error) {
	if in.Text == "" {
		return nil, store.Invalid("text", "must not be empty")
	}
	input := engine.StageInput{
		Branch:      in.Branch,
		Payload:     []byte(in.Text),
		ContentType: in.ContentType,
		Salience:    in.Salience,
		TTLHours:    in.TTLHours,
	}
	if input.ContentType == "" {
		input.ContentType = "text/plain"
	}
	if in.ContextText != "" && s.eng.Embedder != nil {
		vec, err := s.eng.Embedder.Embed(ctx, in.ContextText)
		if err != nil {
			return nil, err
		}
		input.ContextEmbedding = vec
	}
	return s.eng.Stage(ctx, input)
}

func (s *Service) Link(ctx context.Context, in LinkIn) (*store.Link, error) {
	return s.eng.Link(ctx, engine.LinkInput{
		Source:    in.Source,
		Target:    in.Target,
		LinkType:  in.LinkType,
		Weight:    in.Weight,
		Reasoning: in.Reasoning,
	})
}

func (s *Service) Record(ctx context.Context, in TrailPairIn) (*store.TrailEdge, error) {
	return s.eng.ReinforceTrail(ctx, in.Source, in.Target)
}

func (s *Service) Hot(ctx context.Context, in LimitIn) ([]store.TrailEdge, error) {
	return s.eng.HotTrails(ctx, in.Limit)
}

func (s *Service) From(ctx context.Context, in TrailEndpointIn) ([]store.TrailEdge, error) {
	return s.eng.TrailsFrom(ctx, in.Fingerprint)
}

func (s *Service) To(ctx context.Context, in TrailEndpointIn) ([]store.TrailEdge, error) {
	return s.eng.TrailsTo(ctx, in.Fingerprint)
}

func (s *Service) Health(ctx context.Context, _ EmptyIn) (map[string]int, error) {
	return s.eng.TrailHealth(ctx)
}

func (s *Service) Buried(ctx context.Context, in LimitIn) ([]store.TrailEdge, error) {
	return s.eng.BuriedTrails(ctx, in.Limit)
}

func (s *Service) Resurrect(ctx context.Context, in TrailPairIn) (*store.TrailEdge, error) {
	return s.eng.ResurrectTrail(ctx, in.Source, in.Target)
}

func (s *Service) Forecast(ctx context.Context, in ForecastIn) ([]engine.TrailForecast, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	return s.eng.ForecastDecay(ctx, in.Hours, limit)
}

func (s *Service) Validate(ctx context.Context, in ValidateIn) (*engine.RouteDecision, error) {
	return s.eng.ValidateRouting(ctx, in.Text, nil, in.Branch)
}

func (s *Service) Checkpoint(ctx context.Context, in CheckpointIn) (*store.Session, error) {
	return s.eng.Checkpoint(ctx, engine.CheckpointInput{
		ID:         in.ID,
		Agent:      in.Agent,
		Branch:     in.Branch,
		Checkpoint: in.Checkpoint,
	})
}

func (s *Service) Resume(ctx context.Context, in ResumeIn) (*engine.ResumeResult, error) {
	return s.eng.Resume(ctx, in.ID)
}

// Build assembles the MCP server around an engine.
func Build(eng *engine.Engine, version string) *mcp.Server {
	svc := NewService(eng)
	server := mcp.NewServer(&mcp.Implementation{Name: "mnemon", Version: version}, &mcp.ServerOptions{
		Instructions: "mnemon is a branching memory substrate. Read with memory.search and memory.recall, write with memory.commit, stage uncertain material with memory.stage, and record co-access with trails.record. session.checkpoint and session.resume carry context across conversations.",
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory.commit",
		Description: "Commit content onto a branch of the memory graph",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in CommitIn) (*mcp.CallToolResult, *engine.CommitResult, error) {
		out, err := svc.Commit(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory.search",
		Description: "Hybrid lexical and vector search over remembered content",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in SearchIn) (*mcp.CallToolResult, []engine.SearchResult, error) {
		out, err := svc.Search(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory.recall",
		Description: "Recall a content unit by fingerprint or a commit by id, with links and trails",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in RecallIn) (*mcp.CallToolResult, *engine.RecallResult, error) {
		out, err := svc.Recall(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory.log",
		Description: "Read a branch's commit history, newest first",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in LogIn) (*mcp.CallToolResult, []store.Commit, error) {
		out, err := svc.Log(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory.stage",
		Description: "Stage a candidate memory for consolidation instead of committing it directly",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in StageIn) (*mcp.CallToolResult, *store.CandidateMemory, error) {
		out, err := svc.Stage(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory.link",
		Description: "Create a typed association between two content units",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in LinkIn) (*mcp.CallToolResult, *store.Link, error) {
		out, err := svc.Link(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trails.record",
		Description: "Record a traversal between two units, strengthening their trail",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in TrailPairIn) (*mcp.CallToolResult, *store.TrailEdge, error) {
		out, err := svc.Record(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trails.hot",
		Description: "List the currently strongest trails",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in LimitIn) (*mcp.CallToolResult, []store.TrailEdge, error) {
		out, err := svc.Hot(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trails.from",
		Description: "List trails leading out of a unit",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in TrailEndpointIn) (*mcp.CallToolResult, []store.TrailEdge, error) {
		out, err := svc.From(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trails.to",
		Description: "List trails leading into a unit",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in TrailEndpointIn) (*mcp.CallToolResult, []store.TrailEdge, error) {
		out, err := svc.To(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trails.health",
		Description: "Count trails per decay band: active, fading, dormant, archived",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in EmptyIn) (*mcp.CallToolResult, map[string]int, error) {
		out, err := svc.Health(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trails.buried",
		Description: "Surface once well-trodden trails that have decayed",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in LimitIn) (*mcp.CallToolResult, []store.TrailEdge, error) {
		out, err := svc.Buried(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trails.resurrect",
		Description: "Revive a buried trail, doubling its stability and resetting it to active",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in TrailPairIn) (*mcp.CallToolResult, *store.TrailEdge, error) {
		out, err := svc.Resurrect(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "decay.forecast",
		Description: "Project trail strengths into the future, most at-risk first",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ForecastIn) (*mcp.CallToolResult, []engine.TrailForecast, error) {
		out, err := svc.Forecast(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "routing.validate",
		Description: "Check content against branch centroids before committing",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ValidateIn) (*mcp.CallToolResult, *engine.RouteDecision, error) {
		out, err := svc.Validate(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "session.checkpoint",
		Description: "Save session state so a later session can resume from it",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in CheckpointIn) (*mcp.CallToolResult, *store.Session, error) {
		out, err := svc.Checkpoint(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "session.resume",
		Description: "Resume a session, surfacing staged memories that resonate with its context",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ResumeIn) (*mcp.CallToolResult, *engine.ResumeResult, error) {
		out, err := svc.Resume(ctx, in)
		return nil, out, err
	})

	return server
}

// Run serves the tool surface over stdio until ctx ends. Logs go to stderr;
// stdout belongs to the transport.
func Run(ctx context.Context, eng *engine.Engine, version string, log zerolog.Logger) error {
	log.Info().Str("component", "mcp").Msg("serving tools over stdio")
	return Build(eng, version).Run(ctx, &mcp.StdioTransport{})
}
