package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counters struct {
	Done   int            `json:"done"`
	ByKind map[string]int `json:"byKind"`
}

type nested struct {
	Note string `persistence:"note"`
}

type snapshot struct {
	Items    []string `persistence:"items"`
	Counters counters `persistence:"counters"`
	Nested   nested
	Skipped  string
	hidden   string `persistence:"hidden"`
}

func roundTrip(t *testing.T, svc Service) {
	t.Helper()
	in := snapshot{
		Items:    []string{"a", "b"},
		Counters: counters{Done: 3, ByKind: map[string]int{"COMPLETED": 2}},
		Nested:   nested{Note: "hi"},
		Skipped:  "not saved",
		hidden:   "x",
	}
	require.NoError(t, SaveFields(&in, "executor", svc))

	out := snapshot{Skipped: "keep"}
	require.NoError(t, LoadFields(&out, "executor", svc))
	assert.Equal(t, in.Items, out.Items)
	assert.Equal(t, in.Counters, out.Counters)
	assert.Equal(t, "hi", out.Nested.Note)
	assert.Equal(t, "keep", out.Skipped)
	assert.Empty(t, out.hidden)

	// 不存在的 id 不改动原值
	fresh := snapshot{Items: []string{"z"}}
	require.NoError(t, LoadFields(&fresh, "other", svc))
	assert.Equal(t, []string{"z"}, fresh.Items)
}

func TestJSONFileService(t *testing.T) {
	roundTrip(t, NewJSONFileService(t.TempDir()))
}

func TestBadgerService(t *testing.T) {
	svc, err := NewBadgerService(t.TempDir())
	require.NoError(t, err)
	defer svc.Close()
	roundTrip(t, svc)

	var v int
	assert.ErrorIs(t, svc.NewStore("state", "x", "missing").Load(&v), ErrNotExists)
}

func TestFieldsRequireStruct(t *testing.T) {
	assert.Error(t, SaveFields(42, "id", NewJSONFileService(t.TempDir())))
}
