package policy

import "time"

// builtinPolicies are preloaded into every new Engine. They are
// intentionally narrow: TDP-lib's own invariants (at most one RUNNING
// deployment, the HELD cascade) are enforced by internal/store and
// internal/runner regardless of policy, so these rules cover only the
// advisory/organizational concerns an operator would actually want a
// Rego gate for.
var builtinPolicies = []Policy{
	nonEmptyPlanPolicy(),
	maintenanceWindowPolicy(),
	productionStopApprovalPolicy(),
}

func nonEmptyPlanPolicy() Policy {
	now := time.Now()
	return Policy{
		Name:        "non-empty-plan",
		Description: "Rejects a deployment plan with no operations",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"sanity"},
		CreatedAt:   now,
		UpdatedAt:   now,
		Rego: `package tdp.policies.nonempty

import rego.v1

deny contains violation if {
	count(input.deployment.operations) == 0
	violation := {
		"message": "deployment plan has no operations",
		"severity": "error",
	}
}`,
	}
}

// maintenanceWindowPolicy denies RECONFIGURE deployments that touch a
// service tagged "protected" in input.context.metadata.protected_services
// unless the maintenance window is open. RESUME deployments are never
// matched by this rule, regardless of window state.
func maintenanceWindowPolicy() Policy {
	now := time.Now()
	return Policy{
		Name:        "maintenance-window",
		Description: "Requires an open maintenance window for RECONFIGURE deployments touching protected services",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"change-control"},
		CreatedAt:   now,
		UpdatedAt:   now,
		Rego: `package tdp.policies.maintenance

import rego.v1

deny contains violation if {
	input.deployment.type == "RECONFIGURE"
	not input.context.maintenance_window_open
	some op in input.deployment.operations
	protected := object.get(input.context.metadata, "protected_services", [])
	op.service in protected
	violation := {
		"message": sprintf("RECONFIGURE touching protected service %q requires an open maintenance window", [op.service]),
		"severity": "error",
	}
}`,
	}
}

// productionStopApprovalPolicy denies stop actions against production
// services unless input.context.metadata.approved is true.
func productionStopApprovalPolicy() Policy {
	now := time.Now()
	return Policy{
		Name:        "production-stop-approval",
		Description: "Requires explicit approval for stop operations in a production environment",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety", "production"},
		CreatedAt:   now,
		UpdatedAt:   now,
		Rego: `package tdp.policies.stopapproval

import rego.v1

deny contains violation if {
	input.context.environment == "production"
	some op in input.deployment.operations
	op.action == "stop"
	not object.get(input.context.metadata, "approved", false)
	violation := {
		"message": sprintf("stop of %q in production requires operator approval", [op.service]),
		"severity": "critical",
	}
}`,
	}
}
