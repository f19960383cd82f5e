package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
	"github.com/TOSIT-IO/tdp-lib/internal/tdperrors"
)

// Engine compiles and evaluates Rego policies against deployment plans.
// A nil *Engine is a valid, always-allowing gate — see Gate.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	store    storage.Store
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy   *Policy
	compiled time.Time
}

// NewEngine returns an Engine preloaded with the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		store:    inmem.New(),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("loading built-in policies: %w", err)
	}
	return e, nil
}

// EvaluatePlan runs every enabled policy's deny rule set against d and
// pctx, returning the aggregate result.
func (e *Engine) EvaluatePlan(ctx context.Context, d *model.DeploymentModel, pctx *Context) (*Result, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	if pctx == nil {
		pctx = &Context{}
	}
	if pctx.Timestamp.IsZero() {
		pctx.Timestamp = time.Now()
	}
	input := &Input{Deployment: toDeploymentInput(d), Context: pctx}

	var violations, warnings []Violation
	evaluated := make([]string, 0, len(e.policies))

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		evaluated = append(evaluated, cp.policy.Name)

		found, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", cp.policy.Name).Msg("policy evaluation failed")
			warnings = append(warnings, Violation{Policy: cp.policy.Name, Severity: SeverityWarning,
				Message: fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err)})
			continue
		}
		for _, v := range found {
			if v.Severity.blocks() {
				violations = append(violations, v)
			} else {
				warnings = append(warnings, v)
			}
		}
	}

	return &Result{
		Allowed:           len(violations) == 0,
		Violations:        violations,
		Warnings:          warnings,
		EvaluatedPolicies: evaluated,
		EvaluatedAt:       time.Now(),
		Duration:          time.Since(start),
	}, nil
}

func toDeploymentInput(d *model.DeploymentModel) *DeploymentInput {
	di := &DeploymentInput{
		Type:       string(d.DeploymentType),
		Options:    d.Options,
		Operations: make([]OperationInput, len(d.Operations)),
	}
	for i, op := range d.Operations {
		oi := OperationInput{Order: op.OperationOrder, Operation: op.Operation}
		if op.Host != nil {
			oi.Host = string(*op.Host)
		}
		if parsed, err := model.ParseOperationName(op.Operation); err == nil {
			oi.Service = string(parsed.Entity.Service)
			oi.Component = string(parsed.Entity.Component)
			oi.Action = string(parsed.Action)
		}
		di.Operations[i] = oi
	}
	return di
}

// LoadPolicies compiles and stores policies loaded from paths, in
// addition to the built-ins.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("loading policies: %w", err)
	}
	for i := range policies {
		if err := e.compileAndStorePolicy(&policies[i]); err != nil {
			return fmt.Errorf("compiling policy %s: %w", policies[i].Name, err)
		}
	}
	e.logger.Info().Int("count", len(policies)).Msg("policies loaded")
	return nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	packageName := extractPackageName(cp.policy.Rego)
	query := fmt.Sprintf("data.%s.deny", packageName)

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)
	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluating policy %s: %w", cp.policy.Name, err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, e.toViolation(cp.policy, d))
		}
	}
	return violations, nil
}

func extractPackageName(regoSrc string) string {
	for _, line := range strings.Split(regoSrc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			if parts := strings.Fields(trimmed); len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "tdp.policies"
}

func (e *Engine) toViolation(policy *Policy, result interface{}) Violation {
	v := Violation{Policy: policy.Name, Severity: policy.Severity}
	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

func (e *Engine) compileAndStorePolicy(policy *Policy) error {
	if _, err := ast.ParseModule(policy.Name, policy.Rego); err != nil {
		return fmt.Errorf("parsing policy %s: %w", policy.Name, err)
	}
	e.policies[policy.Name] = &compiledPolicy{policy: policy, compiled: time.Now()}
	e.logger.Debug().Str("policy", policy.Name).Msg("policy compiled")
	return nil
}

func (e *Engine) loadBuiltinPolicies(_ context.Context) error {
	for i := range builtinPolicies {
		if err := e.compileAndStorePolicy(&builtinPolicies[i]); err != nil {
			return fmt.Errorf("compiling built-in policy %s: %w", builtinPolicies[i].Name, err)
		}
	}
	return nil
}

// ReplacePolicies discards every loaded policy (including built-ins)
// and compiles and stores policies in their place. It is the reload
// callback Loader.Watch expects.
func (e *Engine) ReplacePolicies(policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = make(map[string]*compiledPolicy)
	for i := range policies {
		if err := e.compileAndStorePolicy(&policies[i]); err != nil {
			return fmt.Errorf("compiling policy %s: %w", policies[i].Name, err)
		}
	}
	return nil
}

// GetPolicy returns a loaded policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cp, ok := e.policies[name]
	if !ok {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns every loaded policy.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, *cp.policy)
	}
	return out
}

// EnablePolicy toggles a loaded policy on.
func (e *Engine) EnablePolicy(name string) error { return e.setEnabled(name, true) }

// DisablePolicy toggles a loaded policy off.
func (e *Engine) DisablePolicy(name string) error { return e.setEnabled(name, false) }

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	return nil
}

// Gate evaluates d and returns a *tdperrors.PolicyDeniedError if any
// blocking violation is found. A nil Engine always allows.
func Gate(ctx context.Context, e *Engine, d *model.DeploymentModel, pctx *Context) error {
	if e == nil {
		return nil
	}
	result, err := e.EvaluatePlan(ctx, d, pctx)
	if err != nil {
		return err
	}
	if result.Allowed {
		return nil
	}
	messages := make([]string, len(result.Violations))
	for i, v := range result.Violations {
		messages[i] = fmt.Sprintf("%s: %s", v.Policy, v.Message)
	}
	return &tdperrors.PolicyDeniedError{Messages: messages}
}
