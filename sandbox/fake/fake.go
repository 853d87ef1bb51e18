// Package fake provides an in-process Sandbox implementation for tests: an
// in-memory filesystem, a command recorder standing in for Shell, and a
// git log recorder. It never touches the real filesystem or spawns
// processes.
package fake

import (
	"context"
	"strings"
	"sync"

	"github.com/agentforge/runengine/enginerr"
	"github.com/agentforge/runengine/sandbox"
)

// Sandbox is a deterministic, in-memory sandbox.Sandbox for tests.
type Sandbox struct {
	mu       sync.Mutex
	files    map[string]string
	commands []recordedCommand
	staged   map[string]bool
	commits  []string
}

type recordedCommand struct {
	command string
	args    []string
}

// New constructs an empty fake Sandbox.
func New() *Sandbox {
	return &Sandbox{files: map[string]string{}, staged: map[string]bool{}}
}

// Seed preloads a file, useful for ReadFile/ListFiles test fixtures.
func (s *Sandbox) Seed(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
}

func (s *Sandbox) ListFiles(_ context.Context, dir string) (sandbox.Result, error) {
	if err := sandbox.ValidatePath(dir); err != nil {
		return sandbox.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for p := range s.files {
		if strings.HasPrefix(p, dir) {
			names = append(names, p)
		}
	}
	return sandbox.Result{Output: strings.Join(names, "\n")}, nil
}

func (s *Sandbox) ReadFile(_ context.Context, path string) (sandbox.Result, error) {
	if err := sandbox.ValidatePath(path); err != nil {
		return sandbox.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[path]
	if !ok {
		return sandbox.Result{}, enginerr.New(enginerr.KindNotFound, "file not found: "+path)
	}
	return sandbox.Result{Output: content}, nil
}

func (s *Sandbox) WriteFile(_ context.Context, path, content string) (sandbox.Result, error) {
	if err := sandbox.ValidatePath(path); err != nil {
		return sandbox.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
	return sandbox.Result{Output: "wrote " + path}, nil
}

func (s *Sandbox) Run(_ context.Context, command string, args []string) (sandbox.Result, error) {
	if err := sandbox.ValidateShellCommand(command, args); err != nil {
		return sandbox.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, recordedCommand{command: command, args: args})
	return sandbox.Result{Output: "ran " + command}, nil
}

func (s *Sandbox) Status(context.Context) (sandbox.Result, error) {
	return sandbox.Result{Output: "clean"}, nil
}

func (s *Sandbox) Diff(_ context.Context, path string) (sandbox.Result, error) {
	return sandbox.Result{Output: "diff for " + path}, nil
}

func (s *Sandbox) Stage(_ context.Context, paths []string) (sandbox.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		s.staged[p] = true
	}
	return sandbox.Result{Output: "staged"}, nil
}

func (s *Sandbox) Unstage(_ context.Context, paths []string) (sandbox.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.staged, p)
	}
	return sandbox.Result{Output: "unstaged"}, nil
}

func (s *Sandbox) Commit(_ context.Context, message string) (sandbox.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, message)
	return sandbox.Result{Output: "committed"}, nil
}

func (s *Sandbox) GetArtifact(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[key]
	if !ok {
		return nil, enginerr.New(enginerr.KindNotFound, "artifact not found: "+key)
	}
	return []byte(content), nil
}

// Commands returns every command recorded by Run, for test assertions.
func (s *Sandbox) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	for i, c := range s.commands {
		out[i] = c.command + " " + strings.Join(c.args, " ")
	}
	return out
}
