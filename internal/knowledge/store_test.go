package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `[
  {"triggers": ["Yellow", "  yellowing leaves "], "answer": "Yellow {crop} leaves in {region} often mean nitrogen deficiency.", "tags": ["Maize"]},
  {"triggers": ["aphid"], "answer": "Spray neem oil."},
  {"triggers": ["blank"], "answer": "   "}
]`

const sampleYAML = `
- triggers: [rust, orange spots]
  answer: Remove infected {crop} leaves.
  tags: [wheat, north]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	base := Load(writeFile(t, "kb.json", sampleJSON))

	entries := base.All()
	require.Len(t, entries, 2, "entries without an answer are dropped")
	assert.Equal(t, []string{"yellow", "yellowing leaves"}, entries[0].Triggers)
	assert.Equal(t, []string{"maize"}, entries[0].Tags)
	assert.True(t, entries[0].HasTag("MAIZE"))
	assert.False(t, entries[1].HasTag("maize"))
	assert.False(t, entries[1].HasTag(""))
}

func TestLoad_YAML(t *testing.T) {
	base := Load(writeFile(t, "kb.yaml", sampleYAML))

	entries := base.All()
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"rust", "orange spots"}, entries[0].Triggers)
	assert.Equal(t, []string{"wheat", "north"}, entries[0].Tags)
}

func TestLoad_DegradesToEmpty(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") }},
		{"malformed json", func(t *testing.T) string { return writeFile(t, "kb.json", `[{"triggers": [`) }},
		{"wrong shape", func(t *testing.T) string { return writeFile(t, "kb.json", `{"triggers": "x"}`) }},
		{"empty file", func(t *testing.T) string { return writeFile(t, "kb.json", "") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			base := Load(tc.path(t))
			require.NotNil(t, base)
			assert.Equal(t, 0, base.Len())
			assert.Empty(t, base.All())
		})
	}
}

func TestParse_ReportsErrors(t *testing.T) {
	_, err := Parse([]byte("  "), FormatJSON)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = Parse([]byte("not json"), FormatJSON)
	assert.Error(t, err)

	base, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 1, base.Len())
}

func TestBase_AllReturnsCopy(t *testing.T) {
	base := NewBase([]Entry{{Triggers: []string{"a"}, Answer: "A"}})
	all := base.All()
	all[0].Answer = "changed"
	assert.Equal(t, "A", base.All()[0].Answer)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFor("kb.YML"))
	assert.Equal(t, FormatYAML, FormatFor("/x/kb.yaml"))
	assert.Equal(t, FormatJSON, FormatFor("kb.json"))
	assert.Equal(t, FormatJSON, FormatFor("kb"))
}

func TestStore_ReloadSwapsWholeBase(t *testing.T) {
	path := writeFile(t, "kb.json", `[{"triggers":["a"],"answer":"A"}]`)
	store := NewStore(path)
	before := store.Snapshot()
	require.Equal(t, 1, before.Len())

	require.NoError(t, os.WriteFile(path, []byte(`[{"triggers":["a"],"answer":"A"},{"triggers":["b"],"answer":"B"}]`), 0o644))
	assert.Equal(t, 2, store.Reload())

	assert.Equal(t, 1, before.Len(), "old snapshot is never mutated")
	assert.Equal(t, 2, store.Snapshot().Len())
}

func TestStore_ConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	small := NewBase([]Entry{{Triggers: []string{"a"}, Answer: "A"}})
	large := NewBase([]Entry{
		{Triggers: []string{"a"}, Answer: "A"},
		{Triggers: []string{"b"}, Answer: "B"},
		{Triggers: []string{"c"}, Answer: "C"},
	})
	store := NewStaticStore(small)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				n := len(store.Snapshot().All())
				if n != 1 && n != 3 {
					t.Errorf("observed partial snapshot with %d entries", n)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			store.Replace(large)
		} else {
			store.Replace(small)
		}
	}
	close(stop)
	wg.Wait()
}

func TestStaticStore(t *testing.T) {
	store := NewStaticStore(nil)
	assert.Equal(t, 0, store.Reload())
	assert.Equal(t, "", store.Path())
	store.Replace(nil)
	assert.NotNil(t, store.Snapshot())
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := writeFile(t, "kb.json", `[{"triggers":["a"],"answer":"A"}]`)
	store := NewStore(path)

	w, err := NewWatcher(store)
	require.NoError(t, err)
	w.debounceDur = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Close()

	// Replace via rename, the way the admin endpoint writes the file.
	tmp := filepath.Join(filepath.Dir(path), ".kb.json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`[{"triggers":["a"],"answer":"A"},{"triggers":["b"],"answer":"B"}]`), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	assert.Eventually(t, func() bool { return store.Snapshot().Len() == 2 }, 5*time.Second, 20*time.Millisecond)
}

func TestWriteFile_ReplacesAtomically(t *testing.T) {
	path := writeFile(t, "kb.json", `[]`)
	require.NoError(t, WriteFile(path, []byte(`[{"triggers":["a"],"answer":"A"}]`)))

	assert.Equal(t, 1, Load(path).Len())
	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".kb.json.*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
