// Package policy provides an optional Open Policy Agent (OPA) gate in
// front of the deployment planner: before a planner factory's result is
// persisted as a PLANNED deployment, a loaded Rego policy bundle may
// veto it.
//
// # Disabled by default
//
// A nil *Engine always allows: wiring the gate into the planner never
// forces an operator to author Rego. Enabling it means constructing an
// Engine with NewEngine and loading a bundle with LoadPolicies.
//
// # Built-in policies
//
// NewEngine preloads a small set of built-in policies aimed at TDP's own
// domain (see builtin.go): they gate RECONFIGURE deployments against a
// maintenance window, require operator approval for destructive STOP
// operations when the context's environment is "production", and reject
// empty plans. Only the maintenance-window policy looks at the deployment
// type (RECONFIGURE); the other two apply to every type, RESUME included.
//
// # Evaluation
//
// Gate translates a model.DeploymentModel and a Context into a Rego
// input document and evaluates every enabled policy's "deny" rule set
// against it. Any violation at SeverityError or SeverityCritical blocks
// the deployment; SeverityWarning and SeverityInfo are reported but
// never block.
package policy
