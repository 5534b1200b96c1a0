package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/danielpatrickdp/deepresearch/internal/logging"
	"github.com/danielpatrickdp/deepresearch/internal/research"
)

// Researcher is the engine entry point the tools call.
type Researcher interface {
	RunDeepResearch(ctx context.Context, topic string) research.ResultEnvelope
}

// RunHistory lists recently finished runs.
type RunHistory interface {
	RecentRuns(limit int) ([]logging.RunEntry, error)
}

// Server wraps the MCP SDK server with the research tools.
type Server struct {
	MCPServer *sdkmcp.Server

	research Researcher
	history  RunHistory
	logger   *slog.Logger
}

// NewServer creates an MCP server exposing deep_research, and recent_runs
// when history is non-nil.
func NewServer(r Researcher, history RunHistory, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{research: r, history: history, logger: logging.New("mcp")}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "deepresearch", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves on transport until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context, transport sdkmcp.Transport) error {
	return s.MCPServer.Run(ctx, transport)
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "deep_research",
		Description: "Research a topic: plan sub-queries, gather evidence concurrently and return a cited report.",
	}, s.handleDeepResearch)

	if s.history != nil {
		sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
			Name:        "recent_runs",
			Description: "List recently finished research runs with their status and evidence counts.",
		}, s.handleRecentRuns)
	}
}

// --- Tool input/output types ---

type deepResearchInput struct {
	Topic string `json:"topic" jsonschema:"the topic to research"`
}

type deepResearchOutput struct {
	Report   *research.Report `json:"report,omitempty"`
	Markdown string           `json:"markdown"`
}

type recentRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs to return (default 10)"`
}

type runSummary struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	ErrorKind  string `json:"error_kind,omitempty"`
	SubQueries int    `json:"subqueries"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

type recentRunsOutput struct {
	Runs []runSummary `json:"runs"`
}

// --- Tool handlers ---

func (s *Server) handleDeepResearch(ctx context.Context, _ *sdkmcp.CallToolRequest, input deepResearchInput) (*sdkmcp.CallToolResult, deepResearchOutput, error) {
	env := s.research.RunDeepResearch(ctx, input.Topic)
	if !env.OK() {
		if env.Error == nil {
			return nil, deepResearchOutput{}, errors.New("research returned no result")
		}
		s.logger.Info("deep_research failed", "kind", env.Error.Kind)
		return nil, deepResearchOutput{}, fmt.Errorf("%s: %s", env.Error.Kind, env.Error.Message)
	}
	return nil, deepResearchOutput{Report: env.Report, Markdown: env.Report.Markdown()}, nil
}

func (s *Server) handleRecentRuns(_ context.Context, _ *sdkmcp.CallToolRequest, input recentRunsInput) (*sdkmcp.CallToolResult, recentRunsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}
	entries, err := s.history.RecentRuns(limit)
	if err != nil {
		return nil, recentRunsOutput{}, err
	}
	out := recentRunsOutput{Runs: make([]runSummary, 0, len(entries))}
	for _, e := range entries {
		out.Runs = append(out.Runs, runSummary{
			RunID:      e.RunID,
			Status:     e.Status,
			ErrorKind:  e.ErrorKind,
			SubQueries: e.SubQueries,
			Succeeded:  e.Succeeded,
			Failed:     e.Failed,
			DurationMS: e.Duration.Milliseconds(),
			CreatedAt:  e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return nil, out, nil
}
