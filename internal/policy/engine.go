// Package policy evaluates the Rego rules that turn a user's daily usage into
// wellbeing recommendations.
package policy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

//go:embed policies/*.rego
var defaultPolicies embed.FS

const suggestionsQuery = "data.socialtracker.recommendations.suggestions"

// PlatformUsage is the per-platform usage handed to the policy.
type PlatformUsage struct {
	Duration int `json:"duration"`
	Sessions int `json:"sessions"`
}

// Input is the document evaluated by the recommendation rules.
type Input struct {
	Usage        map[string]PlatformUsage `json:"usage"`
	Limits       map[string]int           `json:"limits"`
	TotalMinutes int                      `json:"total_minutes"`
}

// Suggestion is a single recommendation produced by the policy.
type Suggestion struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Platform string `json:"platform"`
}

// Engine wraps OPA rego engine for recommendation evaluation
type Engine struct {
	policyDir string
	logger    zerolog.Logger

	mu      sync.RWMutex
	query   rego.PreparedEvalQuery
	sources map[string]string
}

// NewEngine creates a new OPA engine. Policies are loaded from policyDir when
// it is set, otherwise the embedded default rules are used.
func NewEngine(policyDir string, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policyDir: policyDir,
		logger:    logger.With().Str("component", "opa").Logger(),
	}

	if err := e.Reload(); err != nil {
		return nil, err
	}

	source := policyDir
	if source == "" {
		source = "embedded"
	}
	e.logger.Info().Str("policy_source", source).Msg("OPA engine initialized")

	return e, nil
}

// Reload re-reads the policies and re-prepares the query.
func (e *Engine) Reload() error {
	sources, err := e.loadPolicies()
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	query, err := prepare(sources)
	if err != nil {
		return fmt.Errorf("failed to prepare recommendation query: %w", err)
	}

	e.mu.Lock()
	e.sources = sources
	e.query = query
	e.mu.Unlock()

	return nil
}

// loadPolicies reads and parses every .rego file from the configured source.
func (e *Engine) loadPolicies() (map[string]string, error) {
	sources := make(map[string]string)

	if e.policyDir == "" {
		entries, err := defaultPolicies.ReadDir("policies")
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded policies: %w", err)
		}
		for _, entry := range entries {
			name := "policies/" + entry.Name()
			content, err := defaultPolicies.ReadFile(name)
			if err != nil {
				return nil, fmt.Errorf("failed to read embedded policy %s: %w", name, err)
			}
			sources[name] = string(content)
		}
	} else {
		files, err := filepath.Glob(filepath.Join(e.policyDir, "*.rego"))
		if err != nil {
			return nil, fmt.Errorf("failed to glob policy files: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no policy files found in %s", e.policyDir)
		}
		for _, file := range files {
			content, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
			}
			sources[file] = string(content)
		}
	}

	for name, content := range sources {
		module, err := ast.ParseModule(name, content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", name, err)
		}
		e.logger.Debug().Str("file", name).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
	}

	return sources, nil
}

func prepare(sources map[string]string) (rego.PreparedEvalQuery, error) {
	opts := []func(*rego.Rego){rego.Query(suggestionsQuery)}
	for name, content := range sources {
		opts = append(opts, rego.Module(name, content))
	}
	return rego.New(opts...).PrepareForEval(context.Background())
}

// Recommend evaluates the rules against input.
// Suggestions are ordered by type then platform.
func (e *Engine) Recommend(ctx context.Context, input Input) ([]Suggestion, error) {
	doc, err := toDocument(input)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	startTime := time.Now()
	results, err := query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return nil, fmt.Errorf("recommendation query evaluation failed: %w", err)
	}
	e.logger.Debug().Dur("duration_ms", time.Since(startTime)).Msg("Recommendation query evaluated")

	// An undefined set means no rule matched.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	resultBytes, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal suggestions: %w", err)
	}

	var suggestions []Suggestion
	if err := json.Unmarshal(resultBytes, &suggestions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suggestions: %w", err)
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Type != suggestions[j].Type {
			return suggestions[i].Type < suggestions[j].Type
		}
		return suggestions[i].Platform < suggestions[j].Platform
	})

	return suggestions, nil
}

// toDocument converts input into the generic form rego expects.
func toDocument(input Input) (map[string]interface{}, error) {
	if input.Usage == nil {
		input.Usage = map[string]PlatformUsage{}
	}
	if input.Limits == nil {
		input.Limits = map[string]int{}
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy input: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy input: %w", err)
	}
	return doc, nil
}
