// Package validation classifies command names, arguments, and paths as safe
// to execute. All checks are pure string inspection plus an on-disk lookup of
// the executable; nothing here ever runs a command.
package validation

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Category identifies why a command specification was rejected.
type Category string

const (
	// CategoryDisallowedCommand indicates the executable is not on the allowlist.
	CategoryDisallowedCommand Category = "disallowed-command"
	// CategoryDisallowedPattern indicates a shell metacharacter sequence was found.
	CategoryDisallowedPattern Category = "disallowed-pattern"
	// CategoryUnsafePath indicates a path contains traversal or metacharacters.
	CategoryUnsafePath Category = "unsafe-path"
	// CategoryCommandNotFound indicates the executable does not exist on disk.
	CategoryCommandNotFound Category = "command-not-found"
)

// Result is the verdict for one command specification. Reason and Category
// are only populated when Valid is false.
type Result struct {
	Valid    bool     `json:"valid"`
	Reason   string   `json:"reason,omitempty"`
	Category Category `json:"category,omitempty"`
}

// shellMetachars are the sequences that chain commands or redirect streams
// when a string reaches a shell. Arguments are always passed as an argv
// array so these are never interpreted, but their presence means the caller
// is trying to smuggle shell syntax, and the whole command is rejected.
var shellMetachars = []string{";", "&&", "||", "|", ">", "<", "`", "$("}

// defaultAllowlist is the fixed set of executables the engine will spawn:
// the OpenStudio CLI, its companion tools, and a few diagnostic utilities.
var defaultAllowlist = []string{
	"openstudio",
	"energyplus",
	"ruby",
	"echo",
	"cat",
	"ls",
	"dir",
	"pwd",
	"sleep",
	"which",
	"where",
}

// Validator checks command specifications against an executable allowlist.
// It is stateless after construction and safe for concurrent use.
type Validator struct {
	allowed map[string]bool
}

// New returns a Validator accepting the default allowlist plus any extra
// executable names from configuration.
func New(extra ...string) *Validator {
	allowed := make(map[string]bool, len(defaultAllowlist)+len(extra))
	for _, name := range defaultAllowlist {
		allowed[name] = true
	}
	for _, name := range extra {
		if name = strings.TrimSpace(name); name != "" {
			allowed[strings.ToLower(name)] = true
		}
	}
	return &Validator{allowed: allowed}
}

// ValidateCommand checks an executable name and its argument list. The name
// may be a bare name or a path; the allowlist match is on the base name so
// the same binary can be referenced in either form. An empty argument list
// is always valid, subject to the name check.
func (v *Validator) ValidateCommand(name string, args []string) Result {
	if strings.TrimSpace(name) == "" {
		return invalid(CategoryDisallowedCommand, "command name is empty")
	}
	if seq, found := findMetachar(name); found {
		return invalid(CategoryDisallowedPattern,
			fmt.Sprintf("command name contains shell metacharacter %q", seq))
	}
	base := baseName(name)
	if !v.allowed[base] {
		return invalid(CategoryDisallowedCommand,
			fmt.Sprintf("command %q is not in the allowlist", base))
	}
	for i, arg := range args {
		if seq, found := findMetachar(arg); found {
			return invalid(CategoryDisallowedPattern,
				fmt.Sprintf("argument %d contains shell metacharacter %q", i, seq))
		}
	}
	if _, err := exec.LookPath(name); err != nil {
		return invalid(CategoryCommandNotFound,
			fmt.Sprintf("executable %q not found on this system", name))
	}
	return Result{Valid: true}
}

// ValidatePath checks a filesystem path supplied by a caller, for example a
// working directory. Absolute paths, relative paths, drive-letter paths, and
// paths containing spaces are all accepted; parent-directory traversal and
// shell metacharacters are not.
func (v *Validator) ValidatePath(path string) Result {
	if strings.TrimSpace(path) == "" {
		return invalid(CategoryUnsafePath, "path is empty")
	}
	if containsTraversal(path) {
		return invalid(CategoryUnsafePath, "path contains a parent-directory traversal segment")
	}
	if seq, found := findMetachar(path); found {
		return invalid(CategoryUnsafePath,
			fmt.Sprintf("path contains shell metacharacter %q", seq))
	}
	if strings.ContainsAny(path, "\x00\n\r") {
		return invalid(CategoryUnsafePath, "path contains control characters")
	}
	return Result{Valid: true}
}

// IsPathSafe reports whether a path passes ValidatePath.
func (v *Validator) IsPathSafe(path string) bool {
	return v.ValidatePath(path).Valid
}

// IsCommandSafe applies the metacharacter scan to a whole command line, for
// callers that only have a flat string. It does not consult the allowlist.
func (v *Validator) IsCommandSafe(commandLine string) bool {
	_, found := findMetachar(commandLine)
	return !found
}

func invalid(category Category, reason string) Result {
	return Result{Valid: false, Reason: reason, Category: category}
}

// baseName normalizes an executable reference to its lower-case base name
// with any Windows extension stripped.
func baseName(name string) string {
	base := strings.ToLower(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	for _, ext := range []string{".exe", ".bat", ".cmd"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func findMetachar(s string) (string, bool) {
	for _, seq := range shellMetachars {
		if strings.Contains(s, seq) {
			return seq, true
		}
	}
	return "", false
}

// containsTraversal reports whether any path segment is exactly "..".
func containsTraversal(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}
