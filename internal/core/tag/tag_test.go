package tag

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"sentence", "eggs, tomato and cheese", []string{"eggs", "tomato", "cheese"}},
		{"single", "chicken", []string{"chicken"}},
		{"empty", "", nil},
		{"only delimiters", " ,, 、 ， ", nil},
		{"leading and trailing", ", rice, beans ,", []string{"rice", "beans"}},
		{"full width commas", "豆腐，蔥、蒜,egg", []string{"豆腐", "蔥", "蒜", "egg"}},
		{"comma before and", "ham,and eggs", []string{"ham", "eggs"}},
		{"and inside word", "andouille and candy", []string{"andouille", "candy"}},
		{"collapsed whitespace", "milk \t\n  flour", []string{"milk", "flour"}},
		{"ideographic space", "rice　beans", []string{"rice", "beans"}},
		{"line and paragraph separators", "egg\u2028milk\u2029ham", []string{"egg", "milk", "ham"}},
		{"next line and vertical tab", "egg\u0085milk\vham", []string{"egg", "milk", "ham"}},
		{"and after line separator", "egg\u2028and\u0085milk", []string{"egg", "milk"}},
		{"trailing and", "rice and", []string{"rice", "and"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slices.Collect(Segment(tt.in))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSegmentStopsEarly(t *testing.T) {
	var seen []string
	for token := range Segment("a b c d") {
		seen = append(seen, token)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Tag
		ok   bool
	}{
		{"egg", "Egg", true},
		{"EGG", "Egg", true},
		{"  tOMATO ", "Tomato", true},
		{"olive OIL", "Olive oil", true},
		{"éclair", "Éclair", true},
		{"   ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func parse(text string) []Tag {
	var out []Tag
	for token := range Segment(text) {
		if t, ok := Normalize(token); ok {
			out = append(out, t)
		}
	}
	return out
}

func TestSegmentThenNormalizeNeverYieldsBlankTags(t *testing.T) {
	inputs := []string{
		"", " ", ",,,", " and ", "a,,b", "\t\n", "、，,", "x and  and y", "  and and and  ",
		"eggs, tomato and cheese", "，鸡蛋 and 番茄，", "\u2028\u0085\u3000", "a\u2029and\u00a0b",
	}
	for _, in := range inputs {
		for _, tg := range parse(in) {
			assert.NotEmpty(t, strings.TrimSpace(string(tg)), "input %q", in)
		}
	}
}

func TestSegmentThenNormalizeScenarios(t *testing.T) {
	assert.Equal(t, []Tag{"Eggs", "Tomato", "Cheese"}, parse("eggs, tomato and cheese"))
	assert.Equal(t, []Tag{"Chicken"}, parse("chicken"))
}

func TestAddIsCaseInsensitiveForDedup(t *testing.T) {
	set := Set{}
	set, res := Add(set, "egg")
	assert.Equal(t, AddResult{Added: 1}, res)
	set, res = Add(set, "EGG")
	assert.Equal(t, AddResult{Duplicates: 1}, res)
	set, _ = Add(set, "Egg")

	assert.Equal(t, []string{"Egg"}, set.Strings())
}

func TestAddIsIdempotent(t *testing.T) {
	tokens := []string{"rice", "beans", "Rice", "corn"}
	once, _ := Add(Set{}, tokens...)
	twice, res := Add(once, tokens...)

	assert.Equal(t, once.Strings(), twice.Strings())
	assert.Zero(t, res.Added)
	assert.Zero(t, res.Rejected)
}

func TestAddPreservesOrderAndDoesNotMutate(t *testing.T) {
	base := NewSet("b", "a")
	next, _ := Add(base, "c", "a", "d")

	assert.Equal(t, []string{"B", "A"}, base.Strings())
	assert.Equal(t, []string{"B", "A", "C", "D"}, next.Strings())
}

func TestAddEnforcesCapacity(t *testing.T) {
	var tokens []string
	for i := 0; i < MaxTags; i++ {
		tokens = append(tokens, fmt.Sprintf("item%d", i))
	}
	full, res := Add(Set{}, tokens...)
	require.Equal(t, MaxTags, full.Len())
	require.Equal(t, MaxTags, res.Added)
	assert.True(t, full.Full())

	after, res := Add(full, "saffron")
	assert.Equal(t, AddResult{Rejected: 1}, res)
	assert.Equal(t, full.Strings(), after.Strings())

	// 已存在的食材不算拒絕
	_, res = Add(full, "ITEM3", "saffron", "Saffron", "truffle")
	assert.Equal(t, AddResult{Rejected: 2, Duplicates: 1}, res)
}

func TestAddPartialBatchAtCapacity(t *testing.T) {
	var tokens []string
	for i := 0; i < MaxTags-2; i++ {
		tokens = append(tokens, fmt.Sprintf("item%d", i))
	}
	set, _ := Add(Set{}, tokens...)

	set, res := Add(set, "x", "y", "z")
	assert.Equal(t, AddResult{Added: 2, Rejected: 1}, res)
	assert.Equal(t, MaxTags, set.Len())
	assert.True(t, set.Contains("X"))
	assert.True(t, set.Contains("Y"))
	assert.False(t, set.Contains("Z"))
}

func TestSizeNeverExceedsMax(t *testing.T) {
	set := Set{}
	for i := 0; i < 5; i++ {
		var batch []string
		for j := 0; j < 7; j++ {
			batch = append(batch, fmt.Sprintf("n%d-%d", i, j))
		}
		set, _ = Add(set, batch...)
		assert.LessOrEqual(t, set.Len(), MaxTags)
	}
	assert.Equal(t, MaxTags, set.Len())
}

func TestRemove(t *testing.T) {
	set := NewSet("egg", "milk", "flour")

	removed := Remove(set, "Milk")
	assert.False(t, removed.Contains("Milk"))
	assert.Equal(t, set.Len()-1, removed.Len())
	assert.Equal(t, []string{"Egg", "Flour"}, removed.Strings())

	same := Remove(set, "Butter")
	assert.Equal(t, set.Len(), same.Len())
	assert.True(t, set.Contains("Milk"), "original set must be unchanged")
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "Egg,Tomato,Cheese", NewSet("egg", "tomato", "cheese").Join(","))
	assert.Equal(t, "", Set{}.Join(","))
}

func TestSuggestionsNormalizeCleanly(t *testing.T) {
	set, res := Add(Set{}, CommonIngredients...)
	assert.Equal(t, len(CommonIngredients), res.Added)
	assert.True(t, set.Contains("Olive oil"))
}
