// Package token implements spec.md §4.2's TokenExpander: substituting
// "@func(group)" and "$var" references inside task fields, in one of three
// modes that gate which tokens are permitted.
//
// Adapted from the teacher's internal/context (token-ish $TURBO_ROOT$
// substitution) generalized to the richer function/variable grammar
// spec.md describes; design note §9 ("Token expansion context") calls for
// the mode to be an explicit enum parameter rather than inferred from which
// method was called, which is what Mode does here.
package token

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/moonshot/moonshot/internal/filegroup"
)

// Mode selects which tokens are valid in the field currently being expanded.
type Mode int

const (
	// ModeCommand permits everything, including @in/@out.
	ModeCommand Mode = iota
	// ModeArgsEnvScript permits everything, including @in/@out (args, env
	// values, and script fields share the command's token surface).
	ModeArgsEnvScript
	// ModeInputsOutputs forbids @in/@out (they'd be self-referential).
	ModeInputsOutputs
)

// Context supplies the variable bindings and file-group/task lookups a
// TokenExpander needs. One Context is bound per (project, task) pair.
type Context struct {
	Project        string
	ProjectAlias   string
	ProjectSource  string
	ProjectRoot    string
	ProjectType    string
	Language       string
	Target         string
	Task           string
	TaskType       string
	TaskPlatform   string
	WorkspaceRoot  string

	FileGroups map[string]filegroup.FileGroup
	Inputs     []string // current task's resolved inputs, for @in(i)
	Outputs    []string // current task's resolved outputs, for @out(i)
}

// Error kinds named in spec.md §4.2.
type (
	// UnknownTokenError is returned for an unrecognized @function name.
	UnknownTokenError struct{ Name string }
	// UnknownFileGroupError is returned when a function's group argument
	// doesn't exist.
	UnknownFileGroupError struct{ Name string }
	// InvalidTokenInContextError is returned when @in/@out is used outside
	// ModeCommand/ModeArgsEnvScript.
	InvalidTokenInContextError struct{ Token string }
	// OutOfRangeIndexError is returned when @in(i)/@out(i)'s index has no
	// corresponding input/output.
	OutOfRangeIndexError struct {
		Token string
		Index int
		Len   int
	}
)

func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("unknown token function @%s", e.Name)
}
func (e *UnknownFileGroupError) Error() string {
	return fmt.Sprintf("unknown file group %q", e.Name)
}
func (e *InvalidTokenInContextError) Error() string {
	return fmt.Sprintf("token %s is not permitted in this context", e.Token)
}
func (e *OutOfRangeIndexError) Error() string {
	return fmt.Sprintf("%s index %d out of range (have %d)", e.Token, e.Index, e.Len)
}

var funcPattern = regexp.MustCompile(`@(\w+)\(([^)]*)\)`)

// knownVariables lists every $var spec.md §4.2 recognizes. Anything else is
// left untouched, "to allow interop with shell."
var knownVariables = []string{
	"$projectAlias", "$projectSource", "$projectRoot", "$projectType",
	"$project", "$language", "$target", "$taskType", "$taskPlatform", "$task",
	"$workspaceRoot", "$datetime", "$timestamp", "$date", "$time",
}

// Expand substitutes every recognized @function and $variable in s against
// ctx, honoring which tokens mode permits.
func Expand(s string, ctx Context, mode Mode) (string, error) {
	expanded, err := expandFuncs(s, ctx, mode)
	if err != nil {
		return "", err
	}
	return expandVars(expanded, ctx), nil
}

// ExpandAll expands a slice of strings in place, returning a new slice.
func ExpandAll(values []string, ctx Context, mode Mode) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		expanded, err := Expand(v, ctx, mode)
		if err != nil {
			return nil, err
		}
		out[i] = expanded
	}
	return out, nil
}

func expandFuncs(s string, ctx Context, mode Mode) (string, error) {
	var outerErr error
	result := funcPattern.ReplaceAllStringFunc(s, func(match string) string {
		if outerErr != nil {
			return match
		}
		sub := funcPattern.FindStringSubmatch(match)
		name, arg := sub[1], sub[2]
		replacement, err := evalFunc(name, arg, ctx, mode)
		if err != nil {
			outerErr = err
			return match
		}
		return replacement
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}

func evalFunc(name string, arg string, ctx Context, mode Mode) (string, error) {
	switch name {
	case "files", "dirs", "globs", "root", "group":
		fg, ok := ctx.FileGroups[arg]
		if !ok {
			return "", &UnknownFileGroupError{Name: arg}
		}
		var members []string
		switch name {
		case "files":
			members = fg.Files(ctx.ProjectRoot)
		case "dirs":
			members = fg.Dirs(ctx.ProjectRoot)
		case "globs":
			members = fg.Globs()
		case "root":
			members = fg.DirPatterns(ctx.ProjectRoot)
		case "group":
			members = append(fg.Files(ctx.ProjectRoot), fg.Globs()...)
		}
		return strings.Join(members, " "), nil
	case "in", "out":
		if mode == ModeInputsOutputs {
			return "", &InvalidTokenInContextError{Token: "@" + name}
		}
		idx, err := strconv.Atoi(arg)
		if err != nil {
			return "", &OutOfRangeIndexError{Token: "@" + name, Index: -1, Len: 0}
		}
		list := ctx.Inputs
		if name == "out" {
			list = ctx.Outputs
		}
		if idx < 0 || idx >= len(list) {
			return "", &OutOfRangeIndexError{Token: "@" + name, Index: idx, Len: len(list)}
		}
		return list[idx], nil
	default:
		return "", &UnknownTokenError{Name: name}
	}
}

func expandVars(s string, ctx Context) string {
	now := time.Now()
	replacements := map[string]string{
		"$projectAlias":  ctx.ProjectAlias,
		"$projectSource": ctx.ProjectSource,
		"$projectRoot":   ctx.ProjectRoot,
		"$projectType":   ctx.ProjectType,
		"$project":       ctx.Project,
		"$language":      ctx.Language,
		"$target":        ctx.Target,
		"$task":          ctx.Task,
		"$taskType":      ctx.TaskType,
		"$taskPlatform":  ctx.TaskPlatform,
		"$workspaceRoot": ctx.WorkspaceRoot,
		"$date":          now.Format("2006-01-02"),
		"$time":          now.Format("15:04:05"),
		"$datetime":      now.Format("2006-01-02T15:04:05"),
		"$timestamp":     strconv.FormatInt(now.Unix(), 10),
	}
	// Longest-prefix-first so "$project" doesn't eat the start of
	// "$projectRoot" before it gets a chance to match.
	out := s
	for _, name := range knownVariables {
		out = strings.ReplaceAll(out, name, replacements[name])
	}
	return out
}
