package diag

import (
	"fmt"
	"strings"
)

// SyntaxError reports a document that could not be parsed.
type SyntaxError struct {
	Location YamlLocation
	Cause    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("in `%s`: syntax error: `%v`", e.Location, e.Cause)
}

func (e *SyntaxError) Unwrap() error { return e.Cause }

// DuplicateSymbolError reports two documents in the same namespace sharing a
// name. Kind is the namespace noun ("function", "artifact", "deploy"); the
// location is that of the second occurrence.
type DuplicateSymbolError struct {
	Location YamlLocation
	Kind     string
	Name     string
}

func (e *DuplicateSymbolError) Error() string {
	return fmt.Sprintf("in `%s`: duplicate `%s` `%s`", e.Location, e.Kind, e.Name)
}

// InvalidCharacterError reports an identifier outside [A-Za-z0-9_].
type InvalidCharacterError struct {
	Location YamlLocation
}

func (e *InvalidCharacterError) Error() string {
	return fmt.Sprintf("in `%s`: invalid character in identifier", e.Location)
}

// InvalidEnvironmentNameError reports an env-block name that did not split at
// exactly one `/` into two identifiers.
type InvalidEnvironmentNameError struct {
	Location YamlLocation
}

func (e *InvalidEnvironmentNameError) Error() string {
	return fmt.Sprintf("in `%s`: invalid environment name", e.Location)
}

// GenericInvalidError reports a structural violation not captured by a more
// specific error, such as a step that is neither an action nor an invocation.
type GenericInvalidError struct {
	Location YamlLocation
}

func (e *GenericInvalidError) Error() string {
	return fmt.Sprintf("in `%s`: invalid", e.Location)
}

// ImportNotFoundError reports a reference to a plugin, artifact, or function
// that does not exist. Suggestion, when non-empty, names a close match.
type ImportNotFoundError struct {
	Location   YamlLocation
	Name       string
	Suggestion string
}

func (e *ImportNotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("in `%s`: `%s` not found, did you mean `%s`?", e.Location, e.Name, e.Suggestion)
	}
	return fmt.Sprintf("in `%s`: `%s` not found", e.Location, e.Name)
}

// CircularDependencyError reports a cycle in the artifact graph. Cycle holds
// the offending path, first node repeated at the end.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Cycle, " → "))
}

// IoError wraps a file or cache I/O failure.
type IoError struct {
	Cause error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("error occurred while performing i/o: `%v`", e.Cause)
}

func (e *IoError) Unwrap() error { return e.Cause }

// LibLoadingError wraps a dynamic-library load failure.
type LibLoadingError struct {
	Path  string
	Cause error
}

func (e *LibLoadingError) Error() string {
	return fmt.Sprintf("error occurred while loading library `%s`: `%v`", e.Path, e.Cause)
}

func (e *LibLoadingError) Unwrap() error { return e.Cause }

// InvalidVersionError reports a plugin whose manifest version does not match
// the host's compiled-in plugin version.
type InvalidVersionError struct {
	Expected uint32
	Actual   uint32
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version, expected `%d` but found `%d`", e.Expected, e.Actual)
}

// PluginError surfaces an error string returned from a plugin call verbatim.
type PluginError struct {
	Plugin  string
	Message string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin `%s`: %s", e.Plugin, e.Message)
}

// ValidateIdentifier checks that s contains only characters in [A-Za-z0-9_].
// The location is cloned into the error so callers may keep mutating it.
func ValidateIdentifier(s string, loc YamlLocation) error {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return &InvalidCharacterError{Location: loc.Clone()}
		}
	}
	return nil
}
