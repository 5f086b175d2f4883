package mirror

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJSONMissingFile(t *testing.T) {
	var m map[string]int
	found, err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &m)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, m)
}

func TestWriteThenReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "limits.json")
	in := map[string]int{"a": 1, "b": 2}
	require.NoError(t, WriteJSON(path, in))

	var out map[string]int
	found, err := ReadJSON(path, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadJSONCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	var m map[string]int
	found, err := ReadJSON(path, &m)
	assert.True(t, found)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestReadJSONEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	var m map[string]int
	found, err := ReadJSON(path, &m)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, m)
}

type entry struct {
	N int    `json:"n"`
	S string `json:"s"`
}

func TestLogAppendAndTail(t *testing.T) {
	log := NewLog[entry](filepath.Join(t.TempDir(), "x.jsonl"))

	all, _, err := log.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, all)

	for i := 1; i <= 5; i++ {
		require.NoError(t, log.Append(entry{N: i}))
	}

	all, skipped, err := log.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, all, 5)
	assert.Equal(t, 1, all[0].N)

	tail, err := log.Tail(2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, 5, tail[0].N)
	assert.Equal(t, 4, tail[1].N)
}

func TestLogSkipsBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"n\":1}\ngarbage\n\n{\"n\":2}\n"), 0644))

	all, skipped, err := NewLog[entry](path).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Len(t, all, 2)
}

func TestLogConcurrentAppends(t *testing.T) {
	log := NewLog[entry](filepath.Join(t.TempDir(), "x.jsonl"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, log.Append(entry{N: n, S: "payload"}))
		}(i)
	}
	wg.Wait()

	all, skipped, err := log.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Len(t, all, 20)
}
