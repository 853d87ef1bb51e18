// Package sandbox defines the external sandbox adapter contract consumed
// by agents to perform filesystem, shell, and git side effects, per
// spec.md §6. It is deliberately interfaces-only: the "muscle" that
// actually executes these operations is an external collaborator.
package sandbox

import (
	"context"
	"strings"

	"github.com/agentforge/runengine/enginerr"
)

// Result is the opaque outcome of a single sandbox operation.
type Result struct {
	Output   string
	Metadata map[string]any
}

// FileSystem performs workspace-relative file operations.
type FileSystem interface {
	ListFiles(ctx context.Context, dir string) (Result, error)
	ReadFile(ctx context.Context, path string) (Result, error)
	WriteFile(ctx context.Context, path, content string) (Result, error)
}

// Shell runs an allow-listed binary with arguments, no shell metacharacters.
type Shell interface {
	Run(ctx context.Context, command string, args []string) (Result, error)
}

// Git performs a fixed set of git porcelain actions.
type Git interface {
	Status(ctx context.Context) (Result, error)
	Diff(ctx context.Context, path string) (Result, error)
	Stage(ctx context.Context, paths []string) (Result, error)
	Unstage(ctx context.Context, paths []string) (Result, error)
	Commit(ctx context.Context, message string) (Result, error)
}

// ArtifactStore retrieves content produced by a prior sandbox operation,
// addressed by an opaque key (e.g. a file write's resulting blob).
type ArtifactStore interface {
	GetArtifact(ctx context.Context, key string) ([]byte, error)
}

// Sandbox bundles the three capability surfaces an Agent dispatches task
// types against, plus artifact retrieval.
type Sandbox interface {
	FileSystem
	Shell
	Git
	ArtifactStore
}

// allowedShellBinaries is the allow-list of executables a Shell.Run may
// invoke, per spec.md §6.
var allowedShellBinaries = map[string]bool{
	"node": true, "npm": true, "pnpm": true, "yarn": true, "npx": true, "tsx": true,
}

// shellMetacharacters are rejected anywhere in a command or its arguments.
const shellMetacharacters = "|&;$`><\r\n"

// ValidateShellCommand enforces the allow-listed-binary and
// no-metacharacters rules of spec.md §6. Callers should run this before
// invoking Shell.Run.
func ValidateShellCommand(command string, args []string) error {
	if !allowedShellBinaries[command] {
		return enginerr.New(enginerr.KindPolicy, "shell command not allow-listed: "+command)
	}
	if strings.ContainsAny(command, shellMetacharacters) {
		return enginerr.New(enginerr.KindPolicy, "shell command contains disallowed metacharacters")
	}
	for _, a := range args {
		if strings.ContainsAny(a, shellMetacharacters) {
			return enginerr.New(enginerr.KindPolicy, "shell argument contains disallowed metacharacters")
		}
	}
	return nil
}

// ValidatePath enforces the workspace-relative path rule of spec.md §6: no
// ".." traversal, no leading "/".
func ValidatePath(path string) error {
	if strings.HasPrefix(path, "/") {
		return enginerr.New(enginerr.KindPolicy, "path must be workspace-relative, got absolute path: "+path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return enginerr.New(enginerr.KindPolicy, "path must not traverse outside the workspace: "+path)
		}
	}
	return nil
}
