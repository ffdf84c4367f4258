package tag

import (
	"iter"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxTags 單一工作階段可保留的食材上限
const MaxTags = 15

// 分隔符號：前後有分隔的 "and"、逗號類字元（含全形、頓號）、或空白。
// 空白與 unicode.IsSpace 一致（\t-\r、U+0085、\p{Z}）。
var delimiterPattern = regexp.MustCompile(
	`[,、，﹐､\t-\r\x{85}\p{Z}]+and[\t-\r\x{85}\p{Z}]+` +
		`|[\t-\r\x{85}\p{Z}]*[,、，﹐､]+[\t-\r\x{85}\p{Z}]*` +
		`|[\t-\r\x{85}\p{Z}]+`,
)

// Tag 正規化後的食材名稱，保證非空
type Tag string

func (t Tag) String() string {
	return string(t)
}

// Segment 將輸入文字切成原始 token，空 token 會被丟棄
func Segment(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for {
			loc := delimiterPattern.FindStringIndex(rest)
			token := rest
			if loc != nil {
				token = rest[:loc[0]]
			}
			if t := strings.TrimSpace(token); t != "" {
				if !yield(t) {
					return
				}
			}
			if loc == nil {
				return
			}
			rest = rest[loc[1]:]
		}
	}
}

// Normalize 去除空白後首字大寫、其餘小寫；空字串回傳 false
func Normalize(token string) (Tag, bool) {
	s := norm.NFC.String(strings.TrimSpace(token))
	if s == "" {
		return "", false
	}
	_, size := utf8.DecodeRuneInString(s)
	head := cases.Upper(language.Und).String(s[:size])
	tail := cases.Lower(language.Und).String(s[size:])
	return Tag(head + tail), true
}

// Set 有序且不重複的食材集合，零值即為空集合。
// Set 不可變，所有修改都回傳新的 Set。
type Set struct {
	tags []Tag
}

// NewSet 以 Add 的規則建立集合
func NewSet(tokens ...string) Set {
	s, _ := Add(Set{}, tokens...)
	return s
}

// Len 集合大小
func (s Set) Len() int {
	return len(s.tags)
}

// Full 是否已達上限
func (s Set) Full() bool {
	return len(s.tags) >= MaxTags
}

// Contains 檢查是否包含指定食材
func (s Set) Contains(t Tag) bool {
	return slices.Contains(s.tags, t)
}

// Tags 回傳副本
func (s Set) Tags() []Tag {
	return slices.Clone(s.tags)
}

// Strings 以字串切片回傳
func (s Set) Strings() []string {
	out := make([]string, len(s.tags))
	for i, t := range s.tags {
		out[i] = string(t)
	}
	return out
}

// Join 以分隔符串接，例如 "Egg,Tomato,Cheese"
func (s Set) Join(sep string) string {
	return strings.Join(s.Strings(), sep)
}

// AddResult 一次 Add 的統計
type AddResult struct {
	Added      int `json:"added"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
}

// Add 依序加入 token。已存在的食材直接忽略，集合滿了之後的新食材計入 Rejected。
func Add(set Set, tokens ...string) (Set, AddResult) {
	var res AddResult
	next := slices.Clone(set.tags)
	var rejected []Tag

	for _, token := range tokens {
		t, ok := Normalize(token)
		if !ok {
			continue
		}
		if slices.Contains(next, t) {
			res.Duplicates++
			continue
		}
		if len(next) >= MaxTags {
			if !slices.Contains(rejected, t) {
				rejected = append(rejected, t)
			}
			continue
		}
		next = append(next, t)
		res.Added++
	}
	res.Rejected = len(rejected)

	return Set{tags: next}, res
}

// Remove 移除指定食材，不存在時回傳原集合內容
func Remove(set Set, t Tag) Set {
	next := make([]Tag, 0, len(set.tags))
	for _, existing := range set.tags {
		if existing != t {
			next = append(next, existing)
		}
	}
	return Set{tags: next}
}
