package mcp

import (
	"context"
	"errors"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/fracquest/internal/domain"
	"github.com/felixgeelhaar/fracquest/internal/progress"
)

// Server wraps the MCP server with FracQuest progression tools
type Server struct {
	mcpServer *server.Server
	engine    *progress.Engine
}

// Config contains configuration for the MCP server
type Config struct {
	Engine  *progress.Engine
	Version string
}

// NewServer creates a new MCP server for FracQuest
func NewServer(cfg Config) *Server {
	s := &Server{
		engine: cfg.Engine,
	}

	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "fracquest",
		Version: version,
	}, server.WithInstructions(`
FracQuest tracks a student's progress through the fraction quiz game.
Stages are grouped into level groups ("worlds"). Group 1 stage 1 is always open;
a correct answer on a stage opens the next one, and finishing the last stage of
a group opens stage 1 of the next group.

Available tools:
- fracquest_stages: List unlocked stages (one group or all)
- fracquest_complete: Record a finished quiz session on a stage
- fracquest_answer: Tally a single answer on a stage
- fracquest_stats: Overall accuracy and answer totals
- fracquest_completion: Completion percentage for a group or overall
- fracquest_reset: Reset one group or all progress

Pass user_id (a UUID) to act for a signed-in student; omit it for anonymous,
device-local play.
`))

	s.registerTools()

	return s
}

// registerTools registers all FracQuest MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("fracquest_stages").
		Description("List unlocked stages for one level group, or for every group when group is omitted.").
		Handler(s.handleStages)

	s.mcpServer.Tool("fracquest_complete").
		Description("Record the outcome of a quiz session on a stage and return the group's unlocked stages.").
		Handler(s.handleComplete)

	s.mcpServer.Tool("fracquest_answer").
		Description("Add one answer to a stage's correct/wrong tally.").
		Handler(s.handleAnswer)

	s.mcpServer.Tool("fracquest_stats").
		Description("Get overall accuracy and answer totals.").
		Handler(s.handleStats)

	s.mcpServer.Tool("fracquest_completion").
		Description("Get the completion percentage of a level group, or overall when group is omitted.").
		Handler(s.handleCompletion)

	s.mcpServer.Tool("fracquest_reset").
		Description("Reset one level group, or all progress when group is omitted.").
		Handler(s.handleReset)
}

// Input/Output types for tools

type StagesInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"description=Signed-in student UUID; omit for anonymous play"`
	Group  int    `json:"group,omitempty" jsonschema:"description=Level group number starting at 1; omit for all groups"`
}

type StagesOutput struct {
	Group  int              `json:"group,omitempty"`
	Stages []int            `json:"stages,omitempty"`
	Groups map[string][]int `json:"groups,omitempty"`
}

type CompleteInput struct {
	UserID        string  `json:"user_id,omitempty" jsonschema:"description=Signed-in student UUID; omit for anonymous play"`
	Group         int     `json:"group" jsonschema:"description=Level group number starting at 1"`
	Stage         int     `json:"stage" jsonschema:"description=Stage number within the group; out-of-range values are clamped"`
	IsCorrect     bool    `json:"is_correct" jsonschema:"description=Whether the session ended with a correct answer"`
	TimeRemaining float64 `json:"time_remaining,omitempty" jsonschema:"description=Seconds left on the timer"`
}

type CompleteOutput struct {
	Group     int    `json:"group"`
	Stage     int    `json:"stage"`
	Stages    []int  `json:"stages"`
	Persisted bool   `json:"persisted"`
	Message   string `json:"message"`
}

type AnswerInput struct {
	UserID    string `json:"user_id,omitempty" jsonschema:"description=Signed-in student UUID; omit for anonymous play"`
	Group     int    `json:"group" jsonschema:"description=Level group number starting at 1"`
	Stage     int    `json:"stage" jsonschema:"description=Stage number within the group"`
	IsCorrect bool   `json:"is_correct" jsonschema:"description=Whether the answer was correct"`
}

type AnswerOutput struct {
	Group   int `json:"group"`
	Stage   int `json:"stage"`
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
}

type StatsInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"description=Signed-in student UUID; omit for anonymous play"`
}

type CompletionInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"description=Signed-in student UUID; omit for anonymous play"`
	Group  int    `json:"group,omitempty" jsonschema:"description=Level group number; omit for overall completion"`
}

type CompletionOutput struct {
	Group      int `json:"group,omitempty"`
	Percentage int `json:"percentage"`
}

type ResetInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"description=Signed-in student UUID; omit for anonymous play"`
	Group  int    `json:"group,omitempty" jsonschema:"description=Level group to reset; omit to reset everything"`
}

type ResetOutput struct {
	Groups  map[string][]int `json:"groups"`
	Message string           `json:"message"`
}

// Tool handlers

func (s *Server) handleStages(ctx context.Context, input StagesInput) (StagesOutput, error) {
	ctx, err := withUser(ctx, input.UserID)
	if err != nil {
		return StagesOutput{}, err
	}

	if input.Group == 0 {
		return StagesOutput{Groups: keyed(s.engine.UnlockState(ctx))}, nil
	}

	g, err := s.group(input.Group)
	if err != nil {
		return StagesOutput{}, err
	}
	return StagesOutput{
		Group:  input.Group,
		Stages: ints(s.engine.UnlockedStages(ctx, g)),
	}, nil
}

func (s *Server) handleComplete(ctx context.Context, input CompleteInput) (CompleteOutput, error) {
	ctx, err := withUser(ctx, input.UserID)
	if err != nil {
		return CompleteOutput{}, err
	}
	g, err := s.group(input.Group)
	if err != nil {
		return CompleteOutput{}, err
	}

	stage := s.engine.Layout().ClampStage(g, input.Stage)
	ctx = progress.WithAttemptMetadata(ctx, "source", "mcp")
	set, err := s.engine.CompleteLevel(ctx, g, stage, input.IsCorrect, input.TimeRemaining)
	if errors.Is(err, domain.ErrInvalidLevelGroup) {
		return CompleteOutput{}, err
	}

	msg := fmt.Sprintf("Stage %d of group %d recorded.", stage, input.Group)
	if err != nil {
		msg = fmt.Sprintf("Stage %d of group %d could not be saved; unlocks are unchanged.", stage, input.Group)
	} else if marker := s.engine.Layout().Marker(g); set.Contains(marker) {
		msg += fmt.Sprintf(" Group %d is complete.", input.Group)
	}

	return CompleteOutput{
		Group:     input.Group,
		Stage:     stage,
		Stages:    ints(set),
		Persisted: err == nil,
		Message:   msg,
	}, nil
}

func (s *Server) handleAnswer(ctx context.Context, input AnswerInput) (AnswerOutput, error) {
	ctx, err := withUser(ctx, input.UserID)
	if err != nil {
		return AnswerOutput{}, err
	}
	g, err := s.group(input.Group)
	if err != nil {
		return AnswerOutput{}, err
	}

	stage := s.engine.Layout().ClampStage(g, input.Stage)
	if err := s.engine.RecordAnswer(ctx, g, stage, input.IsCorrect); err != nil {
		return AnswerOutput{}, fmt.Errorf("failed to record answer: %w", err)
	}

	stats := s.engine.AnswerStats(ctx, g, stage)
	return AnswerOutput{
		Group:   input.Group,
		Stage:   stage,
		Correct: stats.Correct,
		Wrong:   stats.Wrong,
	}, nil
}

func (s *Server) handleStats(ctx context.Context, input StatsInput) (domain.UserStats, error) {
	ctx, err := withUser(ctx, input.UserID)
	if err != nil {
		return domain.UserStats{}, err
	}
	return s.engine.UserStats(ctx), nil
}

func (s *Server) handleCompletion(ctx context.Context, input CompletionInput) (CompletionOutput, error) {
	ctx, err := withUser(ctx, input.UserID)
	if err != nil {
		return CompletionOutput{}, err
	}

	if input.Group == 0 {
		return CompletionOutput{Percentage: s.engine.CompletionPercentage(ctx, nil)}, nil
	}

	g, err := s.group(input.Group)
	if err != nil {
		return CompletionOutput{}, err
	}
	return CompletionOutput{
		Group:      input.Group,
		Percentage: s.engine.CompletionPercentage(ctx, &g),
	}, nil
}

func (s *Server) handleReset(ctx context.Context, input ResetInput) (ResetOutput, error) {
	ctx, err := withUser(ctx, input.UserID)
	if err != nil {
		return ResetOutput{}, err
	}

	if input.Group == 0 {
		return ResetOutput{
			Groups:  keyed(s.engine.ResetProgress(ctx, nil)),
			Message: "All progress reset.",
		}, nil
	}

	g, err := s.group(input.Group)
	if err != nil {
		return ResetOutput{}, err
	}
	return ResetOutput{
		Groups:  keyed(s.engine.ResetProgress(ctx, &g)),
		Message: fmt.Sprintf("Group %d reset.", input.Group),
	}, nil
}

// group checks n against the engine's layout
func (s *Server) group(n int) (domain.LevelGroup, error) {
	g := domain.LevelGroup(n)
	if !s.engine.Layout().Valid(g) {
		return 0, fmt.Errorf("%w: %d (have %d groups)", domain.ErrInvalidLevelGroup, n, s.engine.Layout().Groups())
	}
	return g, nil
}

func withUser(ctx context.Context, userID string) (context.Context, error) {
	if userID == "" {
		return ctx, nil
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return ctx, fmt.Errorf("%w: %q", domain.ErrInvalidUserID, userID)
	}
	return progress.WithUserID(ctx, id.String()), nil
}

func ints(set domain.UnlockSet) []int {
	return append([]int{}, set...)
}

func keyed(state domain.UnlockState) map[string][]int {
	out := make(map[string][]int, len(state))
	for k, set := range state.Keyed() {
		out[k] = ints(set)
	}
	return out
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
