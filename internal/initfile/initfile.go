// Package initfile resolves init=file:section references to the definition
// text stored in init files.
package initfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("init section not found")

// Resolver returns the tokens stored under section in file.
type Resolver interface {
	Lookup(ctx context.Context, file, section string) (string, error)
}

// Parse reads the init file syntax: a section starts with <name> and runs
// until the next section or a <> terminator; # starts a comment.
func Parse(r io.Reader) (map[string]string, error) {
	out := map[string]string{}
	sc := bufio.NewScanner(r)
	var (
		name string
		body strings.Builder
		open bool
	)
	flush := func() {
		if open {
			out[name] = strings.Join(strings.Fields(body.String()), " ")
		}
		open = false
		body.Reset()
	}
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for line != "" {
			lt := strings.IndexByte(line, '<')
			if lt < 0 {
				if open {
					body.WriteString(" " + line)
				}
				break
			}
			if open {
				body.WriteString(" " + line[:lt])
			}
			gt := strings.IndexByte(line[lt:], '>')
			if gt < 0 {
				return nil, fmt.Errorf("unterminated section name in %q", sc.Text())
			}
			tag := strings.TrimSpace(line[lt+1 : lt+gt])
			flush()
			if tag != "" {
				name, open = tag, true
			}
			line = line[lt+gt+1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read init file: %w", err)
	}
	flush()
	return out, nil
}

// Memory serves sections registered in process.
type Memory struct {
	mu    sync.RWMutex
	files map[string]map[string]string
}

func NewMemory() *Memory {
	return &Memory{files: map[string]map[string]string{}}
}

func (m *Memory) Add(file, section, definition string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[file] == nil {
		m.files[file] = map[string]string{}
	}
	m.files[file][section] = definition
}

func (m *Memory) Lookup(_ context.Context, file, section string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.files[file][section]
	if !ok {
		return "", fmt.Errorf("%w: %s:%s", ErrNotFound, file, section)
	}
	return def, nil
}

// Dir reads init files below Root. Parsed files are kept until Purge.
type Dir struct {
	Root string

	mu     sync.Mutex
	parsed map[string]map[string]string
}

func NewDir(root string) *Dir {
	return &Dir{Root: root, parsed: map[string]map[string]string{}}
}

func (d *Dir) Lookup(_ context.Context, file, section string) (string, error) {
	sections, err := d.load(file)
	if err != nil {
		return "", err
	}
	def, ok := sections[section]
	if !ok {
		return "", fmt.Errorf("%w: %s:%s", ErrNotFound, file, section)
	}
	return def, nil
}

func (d *Dir) load(file string) (map[string]string, error) {
	if file == "" || filepath.IsAbs(file) || strings.Contains(file, "..") {
		return nil, fmt.Errorf("%w: invalid init file name %q", ErrNotFound, file)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.parsed[file]; ok {
		return s, nil
	}
	f, err := os.Open(filepath.Join(d.Root, file)) // #nosec G304 -- name checked above, root from config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no init file %s", ErrNotFound, file)
		}
		return nil, fmt.Errorf("open init file %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()
	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("init file %s: %w", file, err)
	}
	if d.parsed == nil {
		d.parsed = map[string]map[string]string{}
	}
	d.parsed[file] = s
	return s, nil
}

func (d *Dir) Purge() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parsed = map[string]map[string]string{}
}

// Chain asks each resolver in turn and returns the first answer. A
// resolver failing for another reason than a missing section stops the
// chain.
type Chain []Resolver

func (c Chain) Lookup(ctx context.Context, file, section string) (string, error) {
	for _, r := range c {
		def, err := r.Lookup(ctx, file, section)
		if err == nil {
			return def, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s:%s", ErrNotFound, file, section)
}
