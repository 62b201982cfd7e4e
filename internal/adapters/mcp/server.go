package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/ports"
)

const serverName = "dermafusion"

// Server exposes the diagnosis operations as MCP tools.
type Server struct {
	diagnosis     ports.DiagnosisService
	labels        ports.LabelMatcher
	classifier    ports.QueryClassifier
	matchMinScore int
}

func NewServer(diagnosis ports.DiagnosisService, labels ports.LabelMatcher, classifier ports.QueryClassifier, matchMinScore int) *Server {
	return &Server{
		diagnosis:     diagnosis,
		labels:        labels,
		classifier:    classifier,
		matchMinScore: matchMinScore,
	}
}

// MCPServer builds the tool registry.
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	srv.AddTool(mcp.NewTool("diagnosis_context",
		mcp.WithDescription("Rank candidate skin diseases for a description and/or images and return supporting evidence."),
		mcp.WithString("text", mcp.Description("Free-text symptom description.")),
		mcp.WithArray("images", mcp.Description("Base64 images or data URLs."), mcp.WithStringItems()),
	), s.handleContext)

	srv.AddTool(mcp.NewTool("diagnosis_analyze",
		mcp.WithDescription("Rank candidate skin diseases and produce a reasoned diagnosis narrative."),
		mcp.WithString("text", mcp.Description("Free-text symptom description.")),
		mcp.WithArray("images", mcp.Description("Base64 images or data URLs."), mcp.WithStringItems()),
	), s.handleAnalyze)

	srv.AddTool(mcp.NewTool("match_label",
		mcp.WithDescription("Resolve a free-form disease name to the closest canonical label."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Disease name to match.")),
		mcp.WithNumber("min_score", mcp.Description("Minimum similarity score in [0,100].")),
	), s.handleMatchLabel)

	srv.AddTool(mcp.NewTool("classify_query",
		mcp.WithDescription("Detect the intent of a dermatology question."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Question text.")),
	), s.handleClassify)

	return srv
}

func (s *Server) handleContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := diagnosisInput(req)
	if err != nil {
		return toolError("diagnosis_context", err), nil
	}
	result, err := s.diagnosis.GetContext(ctx, input)
	if err != nil {
		return toolError("diagnosis_context", err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := diagnosisInput(req)
	if err != nil {
		return toolError("diagnosis_analyze", err), nil
	}
	result, err := s.diagnosis.GetDiagnosis(ctx, input)
	if err != nil {
		return toolError("diagnosis_analyze", err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleMatchLabel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	minScore := int(req.GetFloat("min_score", 0))
	if minScore <= 0 {
		minScore = s.matchMinScore
	}
	match, ok, err := s.labels.MatchLabel(ctx, query, minScore)
	if err != nil {
		return toolError("match_label", err), nil
	}
	return jsonResult(struct {
		Matched bool `json:"matched"`
		domain.MatchResult
	}{Matched: ok, MatchResult: match})
}

func (s *Server) handleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.classifier.DetectQueryType(ctx, text)
	if err != nil {
		return toolError("classify_query", err), nil
	}
	return jsonResult(result)
}

func diagnosisInput(req mcp.CallToolRequest) (domain.DiagnosisInput, error) {
	input := domain.DiagnosisInput{Text: req.GetString("text", "")}
	for i, payload := range req.GetStringSlice("images", nil) {
		data, err := domain.DecodeImagePayload(payload)
		if err != nil {
			return domain.DiagnosisInput{}, domain.WrapError(domain.ErrInvalidInput, "decode image", fmt.Errorf("images[%d]: %w", i, err))
		}
		input.Images = append(input.Images, data)
	}
	return input, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// toolError reports failures in-band so the client model can see them.
// Backend exhaustion carries its masked per-backend failures.
func toolError(tool string, err error) *mcp.CallToolResult {
	slog.Warn("mcp_tool_failed", "tool", tool, "error", err)
	var exhausted *domain.AllBackendsFailedError
	if errors.As(err, &exhausted) {
		raw, marshalErr := json.Marshal(map[string]any{
			"error":    domain.ErrAllBackendsFailed.Error(),
			"failures": exhausted.Failures,
		})
		if marshalErr == nil {
			return mcp.NewToolResultError(string(raw))
		}
	}
	return mcp.NewToolResultError(err.Error())
}
