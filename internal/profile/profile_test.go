package profile

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeTraitsLastWriteWins(t *testing.T) {
	p := New()
	assert.Equal(t, 2, p.MergeTraits([]Trait{{"name", "Mo"}, {"age", "30"}}))
	assert.Equal(t, 1, p.MergeTraits([]Trait{{"age", "31"}, {"name", "Mo"}}))
	assert.Equal(t, 0, p.MergeTraits([]Trait{{"age", "31"}}))

	v, ok := p.Get("age")
	require.True(t, ok)
	assert.Equal(t, "31", v)

	snap := p.Snapshot()
	assert.Equal(t, []Trait{{"name", "Mo"}, {"age", "31"}}, snap.Traits)
}

func TestMergeTraitsSameKeyInOneBatch(t *testing.T) {
	p := New()
	p.MergeTraits([]Trait{{"mood", "calm"}, {"mood", "angry"}})
	assert.Equal(t, map[string]string{"mood": "angry"}, p.Snapshot().Map())
	assert.Equal(t, 1, p.Len())
}

func TestMergeTraitsSkipsBlank(t *testing.T) {
	p := New()
	assert.Equal(t, 0, p.MergeTraits([]Trait{{"", "x"}, {"k", "  "}}))
	assert.Equal(t, 0, p.Len())
}

func TestSnapshotIsImmutable(t *testing.T) {
	p := New()
	p.MergeTraits([]Trait{{"a", "1"}})
	p.AddNotes("likes tea")

	snap := p.Snapshot()
	p.MergeTraits([]Trait{{"a", "2"}, {"b", "3"}})
	p.AddNotes("hates rain")

	assert.Equal(t, []Trait{{"a", "1"}}, snap.Traits)
	assert.Equal(t, []string{"likes tea"}, snap.Notes)
}

func TestAddNotesDeduplicates(t *testing.T) {
	p := New()
	assert.Equal(t, 2, p.AddNotes("x", " y ", "", "x"))
	assert.Equal(t, 0, p.AddNotes("y"))
	assert.Equal(t, []string{"x", "y"}, p.Snapshot().Notes)
}

func TestFullText(t *testing.T) {
	p := New()
	assert.Equal(t, "", p.FullText())
	assert.True(t, p.Snapshot().Empty())

	p.MergeTraits([]Trait{{"姓名", "林月"}, {"性格", "冷静"}})
	p.AddNotes("喜欢雨天")
	assert.Equal(t, "姓名: 林月\n性格: 冷静\n\n- 喜欢雨天", p.FullText())
}

func TestFromSnapshotRoundTrip(t *testing.T) {
	p := New()
	p.MergeTraits([]Trait{{"a", "1"}, {"b", "2"}})
	p.AddNotes("n")

	q := FromSnapshot(p.Snapshot())
	assert.Equal(t, p.Snapshot(), q.Snapshot())
}

func TestConcurrentMergeAndSnapshot(t *testing.T) {
	p := New()
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range 100 {
				p.MergeTraits([]Trait{
					{"shared", fmt.Sprintf("%d-%d", w, i)},
					{fmt.Sprintf("k%d", w), fmt.Sprint(i)},
				})
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				snap := p.Snapshot()
				seen := map[string]bool{}
				for _, tr := range snap.Traits {
					assert.False(t, seen[tr.Key], "duplicate key %s", tr.Key)
					seen[tr.Key] = true
					assert.NotEmpty(t, tr.Value)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 9, p.Len())
}

func TestParseTraits(t *testing.T) {
	hidden := `
- 姓名：林月
* age: 24
1. Occupation: night-shift nurse
**Fear**: deep water
She hums when nervous.
none
`
	traits, notes := ParseTraits(hidden)
	assert.Equal(t, []Trait{
		{"姓名", "林月"},
		{"age", "24"},
		{"Occupation", "night-shift nurse"},
		{"Fear", "deep water"},
	}, traits)
	assert.Equal(t, []string{"She hums when nervous."}, notes)
}

func TestParseTraitsSentinel(t *testing.T) {
	for _, s := range []string{"", "None", " none "} {
		traits, notes := ParseTraits(s)
		assert.Nil(t, traits)
		assert.Nil(t, notes)
	}
}

func TestParseTraitsEmptyValueBecomesNote(t *testing.T) {
	traits, notes := ParseTraits("Background:")
	assert.Empty(t, traits)
	assert.Equal(t, []string{"Background:"}, notes)
}
