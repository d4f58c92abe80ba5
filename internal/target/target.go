// Package target implements spec.md §3's Target: a (project-scope, task-id)
// pair with canonical form "<scope>:<task>". Adapted from the teacher's
// "package#task" taskID convention in internal/util/task_id.go, generalized
// to the richer scope grammar spec.md calls for (explicit id, alias, ~, ^,
// #tag, :) instead of turbo's single implicit "current package" scope.
package target

import (
	"fmt"
	"strings"

	"github.com/moonshot/moonshot/internal/identifier"
)

// ScopeKind enumerates the project-scope forms from spec.md §3.
type ScopeKind int

const (
	// ScopeExplicit names a concrete project id or alias.
	ScopeExplicit ScopeKind = iota
	// ScopeSelf ("~") refers to the project owning the referencing task.
	ScopeSelf
	// ScopeParent ("^") refers to the dependencies of the owning project.
	ScopeParent
	// ScopeTag ("#tag") refers to every project carrying a tag.
	ScopeTag
	// ScopeAll (":") refers to every project in the graph.
	ScopeAll
)

// Scope is the project-selection half of a Target.
type Scope struct {
	Kind  ScopeKind
	Value identifier.ID // explicit id/alias, or tag name for ScopeTag; empty otherwise
}

// Target is a (project-scope, task-id) reference, spec.md §3.
type Target struct {
	Scope Scope
	Task  identifier.ID
}

// Resolved reports whether the scope is an explicit project id (spec.md:
// "A target is resolved when scope is an explicit id").
func (t Target) Resolved() bool {
	return t.Scope.Kind == ScopeExplicit
}

// String renders the canonical "<scope>:<task>" form.
func (t Target) String() string {
	var scope string
	switch t.Scope.Kind {
	case ScopeSelf:
		scope = "~"
	case ScopeParent:
		scope = "^"
	case ScopeTag:
		scope = "#" + t.Scope.Value.String()
	case ScopeAll:
		scope = ""
	default:
		scope = t.Scope.Value.String()
	}
	return fmt.Sprintf("%s:%s", scope, t.Task)
}

// WithProject returns a resolved Target naming the given project explicitly.
func (t Target) WithProject(projectID identifier.ID) Target {
	return Target{Scope: Scope{Kind: ScopeExplicit, Value: projectID}, Task: t.Task}
}

// ParseError reports a malformed target string.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid target %q: %s", e.Raw, e.Reason)
}

// Parse parses the canonical "<scope>:<task>" form into a Target.
func Parse(raw string) (Target, error) {
	idx := strings.LastIndex(raw, ":")
	if idx < 0 {
		return Target{}, &ParseError{Raw: raw, Reason: "missing ':' separator between scope and task"}
	}
	scopeRaw, taskRaw := raw[:idx], raw[idx+1:]
	task, err := identifier.New(taskRaw)
	if err != nil {
		return Target{}, &ParseError{Raw: raw, Reason: err.Error()}
	}

	var scope Scope
	switch {
	case scopeRaw == "":
		scope = Scope{Kind: ScopeAll}
	case scopeRaw == "~":
		scope = Scope{Kind: ScopeSelf}
	case scopeRaw == "^":
		scope = Scope{Kind: ScopeParent}
	case strings.HasPrefix(scopeRaw, "#"):
		tag, err := identifier.New(scopeRaw[1:])
		if err != nil {
			return Target{}, &ParseError{Raw: raw, Reason: err.Error()}
		}
		scope = Scope{Kind: ScopeTag, Value: tag}
	default:
		id, err := identifier.New(scopeRaw)
		if err != nil {
			return Target{}, &ParseError{Raw: raw, Reason: err.Error()}
		}
		scope = Scope{Kind: ScopeExplicit, Value: id}
	}

	return Target{Scope: scope, Task: task}, nil
}

// TopLevelError is returned when a target using a scope that is only
// meaningful inside task deps (^ or ~) is requested at the top level,
// per spec.md §4.6: "reject ^: and ~: at the top level".
type TopLevelError struct {
	Raw string
}

func (e *TopLevelError) Error() string {
	return fmt.Sprintf("scope in %q is only valid inside a task's deps, not as a top-level target", e.Raw)
}

// ValidateTopLevel rejects scopes that are only legal inside task deps.
func ValidateTopLevel(t Target, raw string) error {
	if t.Scope.Kind == ScopeSelf || t.Scope.Kind == ScopeParent {
		return &TopLevelError{Raw: raw}
	}
	return nil
}
