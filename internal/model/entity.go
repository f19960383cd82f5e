// Package model defines the entities shared across the TDP-lib core:
// collections, operations, hosted entities, and the persisted deployment
// and status-log records.
package model

import (
	"fmt"
	"strings"
)

const (
	serviceNameMaxLength   = 20
	componentNameMaxLength = 30
	actionNameMaxLength    = 20
	operationNameMaxLength = 72
	hostNameMaxLength      = 255
	versionMaxLength       = 40
)

// ServiceName identifies a service cluster-wide.
type ServiceName string

// Validate checks the length and shape invariants from the data model.
func (s ServiceName) Validate() error {
	if s == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if len(s) > serviceNameMaxLength {
		return fmt.Errorf("service name %q exceeds %d characters", s, serviceNameMaxLength)
	}
	return nil
}

// ComponentName identifies a component within a service.
type ComponentName string

// Validate checks the length and shape invariants from the data model.
func (c ComponentName) Validate() error {
	if c == "" {
		return fmt.Errorf("component name cannot be empty")
	}
	if len(c) > componentNameMaxLength {
		return fmt.Errorf("component name %q exceeds %d characters", c, componentNameMaxLength)
	}
	return nil
}

// ActionName is the verb performed by an operation.
type ActionName string

// Canonical actions.
const (
	ActionInstall ActionName = "install"
	ActionConfig  ActionName = "config"
	ActionStart   ActionName = "start"
	ActionRestart ActionName = "restart"
	ActionStop    ActionName = "stop"
	ActionInit    ActionName = "init"
)

// Validate checks the length invariant from the data model.
func (a ActionName) Validate() error {
	if a == "" {
		return fmt.Errorf("action name cannot be empty")
	}
	if len(a) > actionNameMaxLength {
		return fmt.Errorf("action name %q exceeds %d characters", a, actionNameMaxLength)
	}
	return nil
}

// EntityName is the tagged variant spec.md §9 asks for in place of the
// source's on-demand string parsing: either a bare service or a
// service+component pair, resolved once at ingestion.
type EntityName struct {
	Service   ServiceName
	Component ComponentName // empty when this names a service-level entity
}

// IsService reports whether this entity name has no component part.
func (e EntityName) IsService() bool {
	return e.Component == ""
}

// String renders the entity name the way operation names embed it:
// "<service>" or "<service>_<component>".
func (e EntityName) String() string {
	if e.IsService() {
		return string(e.Service)
	}
	return string(e.Service) + "_" + string(e.Component)
}

// ParseEntityName mirrors ServiceComponentName.from_name: split on the
// FIRST underscore. This is deliberately not the same split operation
// names use (see OperationName, below) — spec.md §9 documents the two
// parsers as intentionally divergent and forbids "fixing" either one.
func ParseEntityName(name string) EntityName {
	if idx := strings.IndexByte(name, '_'); idx >= 0 {
		return EntityName{Service: ServiceName(name[:idx]), Component: ComponentName(name[idx+1:])}
	}
	return EntityName{Service: ServiceName(name)}
}

// OperationName is the tagged {Service|ServiceComponent}Name + Action
// variant spec.md §9 calls for, parsed once at ingestion time using the
// operation-name grammar, not EntityName's first-underscore split.
type OperationName struct {
	Entity EntityName
	Action ActionName
}

// String renders "<service>[_<component>]_<action>".
func (o OperationName) String() string {
	return o.Entity.String() + "_" + string(o.Action)
}

// Validate checks the composite length invariant for operation names.
func (o OperationName) Validate() error {
	if err := o.Entity.Service.Validate(); err != nil {
		return err
	}
	if !o.Entity.IsService() {
		if err := o.Entity.Component.Validate(); err != nil {
			return err
		}
	}
	if err := o.Action.Validate(); err != nil {
		return err
	}
	if s := o.String(); len(s) > operationNameMaxLength {
		return fmt.Errorf("operation name %q exceeds %d characters", s, operationNameMaxLength)
	}
	return nil
}

// canonicalActions is consulted by ParseOperationName right-to-left:
// an operation name's action is its longest canonical-action suffix
// found after a '_', never a naive single-split. This reproduces
// LegacyOperation's regex behavior (RE_GET_ACTION et al.) without
// depending on a regexp match against a fixed alternation at every call.
var canonicalActions = []ActionName{
	ActionInstall, ActionConfig, ActionRestart, ActionStart, ActionStop, ActionInit,
}

// ParseOperationName parses "<service>[_<component>]_<action>" using the
// operation grammar: the action is recognized as a canonical suffix, and
// everything before it is the entity name (itself parsed by
// ParseEntityName). This intentionally disagrees with
// ServiceComponentName.from_name on 3+-segment names — see spec.md §9.
func ParseOperationName(name string) (OperationName, error) {
	for _, action := range canonicalActions {
		suffix := "_" + string(action)
		if strings.HasSuffix(name, suffix) {
			prefix := strings.TrimSuffix(name, suffix)
			if prefix == "" {
				continue
			}
			return OperationName{Entity: ParseEntityName(prefix), Action: action}, nil
		}
	}
	return OperationName{}, fmt.Errorf("operation name %q has no recognizable action suffix", name)
}

// HostName identifies a host within the inventory.
type HostName string

// Validate checks the length invariant from the data model.
func (h HostName) Validate() error {
	if len(h) > hostNameMaxLength {
		return fmt.Errorf("host name %q exceeds %d characters", h, hostNameMaxLength)
	}
	return nil
}

// Version is an opaque version token supplied by the variables store.
type Version string

// Validate checks the length invariant from the data model.
func (v Version) Validate() error {
	if len(v) > versionMaxLength {
		return fmt.Errorf("version %q exceeds %d characters", v, versionMaxLength)
	}
	return nil
}

// HostedEntity is (service, component?, host?).
type HostedEntity struct {
	Entity EntityName
	Host   *HostName // nil for unplaced entities
}

// String renders a human-readable label for logs and error messages.
func (h HostedEntity) String() string {
	if h.Host == nil {
		return h.Entity.String()
	}
	return fmt.Sprintf("%s@%s", h.Entity, *h.Host)
}
