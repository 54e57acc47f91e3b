// Package knowledge loads the advisory knowledge base and serves it as an
// immutable snapshot that can be swapped atomically on reload.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"farm-advisor-go/pkg/log"
	"farm-advisor-go/pkg/textnorm"

	"gopkg.in/yaml.v3"
)

// Format identifies the persisted encoding of a knowledge base file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrEmptyInput is returned by Parse for a zero-length document.
var ErrEmptyInput = errors.New("knowledge base document is empty")

// Entry is one advisory answer. Triggers and Tags are stored normalized.
type Entry struct {
	Triggers []string `json:"triggers" yaml:"triggers"`
	Answer   string   `json:"answer" yaml:"answer"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// HasTag reports whether the entry carries the given tag (case-insensitive).
func (e Entry) HasTag(tag string) bool {
	tag = textnorm.Normalize(tag)
	if tag == "" {
		return false
	}
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Base is an ordered, read-only collection of entries.
type Base struct {
	entries []Entry
}

// NewBase normalizes entries and drops the ones that have no answer.
func NewBase(entries []Entry) *Base {
	out := make([]Entry, 0, len(entries))
	for i, e := range entries {
		answer := strings.TrimSpace(e.Answer)
		if answer == "" {
			log.Warnf("[Knowledge] 跳过第 %d 条：answer 为空", i)
			continue
		}
		out = append(out, Entry{
			Triggers: normalizeAll(e.Triggers),
			Answer:   answer,
			Tags:     normalizeAll(e.Tags),
		})
	}
	return &Base{entries: out}
}

// All returns the entries in knowledge-base order.
func (b *Base) All() []Entry {
	if b == nil {
		return nil
	}
	return append([]Entry(nil), b.entries...)
}

// Len returns the number of entries.
func (b *Base) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Parse decodes a knowledge base document. Unlike Load it reports errors, so
// callers can validate a document before publishing it.
func Parse(data []byte, format Format) (*Base, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ErrEmptyInput
	}
	var entries []Entry
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse yaml knowledge base: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse json knowledge base: %w", err)
		}
	}
	return NewBase(entries), nil
}

// FormatFor picks the encoding from the file extension; JSON is the default.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads the whole file at path. A missing or malformed file yields an
// empty Base so the matcher degrades to its default reply.
func Load(path string) *Base {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Errorw("[Knowledge] 知识库不可用，使用空知识库", "path", path, "error", err)
		return &Base{}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return &Base{}
	}
	base, err := Parse(data, FormatFor(path))
	if err != nil {
		log.Errorw("[Knowledge] 知识库解析失败，使用空知识库", "path", path, "error", err)
		return &Base{}
	}
	log.Infof("[Knowledge] 已加载知识库 %s, 共 %d 条", path, base.Len())
	return base
}

// WriteFile replaces the file at path with data. The content is written to a
// temporary file in the same directory and renamed over the target, so
// watchers and readers never see a half-written document.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp knowledge file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp knowledge file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp knowledge file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp knowledge file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace knowledge file: %w", err)
	}
	return nil
}

// Store holds the current snapshot. Readers never observe a partially
// loaded Base: a reload builds the new Base fully before swapping it in.
type Store struct {
	path    string
	current atomic.Pointer[Base]
}

// NewStore loads path and returns a store serving it.
func NewStore(path string) *Store {
	s := &Store{path: path}
	s.current.Store(Load(path))
	return s
}

// NewStaticStore serves a fixed base. Reload keeps it unchanged.
func NewStaticStore(base *Base) *Store {
	s := &Store{}
	if base == nil {
		base = &Base{}
	}
	s.current.Store(base)
	return s
}

// Path returns the backing file, empty for static stores.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns the base in effect right now.
func (s *Store) Snapshot() *Base {
	return s.current.Load()
}

// Reload re-reads the backing file and swaps it in. It returns the number of
// entries now being served.
func (s *Store) Reload() int {
	if s.path == "" {
		return s.Snapshot().Len()
	}
	next := Load(s.path)
	s.current.Store(next)
	return next.Len()
}

// Replace swaps in an already parsed base.
func (s *Store) Replace(base *Base) {
	if base == nil {
		base = &Base{}
	}
	s.current.Store(base)
}

func normalizeAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if n := textnorm.Normalize(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}
