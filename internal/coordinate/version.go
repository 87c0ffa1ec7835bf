package coordinate

import (
	"strings"
)

const snapshotSuffix = "-SNAPSHOT"

// Version is a parsed artifact version. Ordering follows the repository
// convention: numeric segments compare numerically, qualifiers rank
// alpha < beta < milestone < rc < snapshot < release < sp, and unknown
// qualifiers sort after sp lexically.
type Version struct {
	raw   string
	items listItem
}

func ParseVersion(s string) Version {
	s = strings.TrimSpace(s)
	return Version{raw: s, items: parseItems(s)}
}

func (v Version) String() string {
	return v.raw
}

func (v Version) IsZero() bool {
	return v.raw == ""
}

func (v Version) IsSnapshot() bool {
	upper := strings.ToUpper(v.raw)
	return upper == "SNAPSHOT" || strings.HasSuffix(upper, snapshotSuffix)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(other Version) int {
	return v.items.compare(other.items)
}

func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// Better reports whether candidate should replace current as the best known
// version. Equal-ranked versions prefer a release over a snapshot, then the
// lexically smaller spelling so the outcome does not depend on scan order.
func Better(current, candidate Version) bool {
	if current.IsZero() {
		return !candidate.IsZero()
	}
	switch c := current.Compare(candidate); {
	case c < 0:
		return true
	case c > 0:
		return false
	}
	if current.IsSnapshot() != candidate.IsSnapshot() {
		return current.IsSnapshot()
	}
	return candidate.raw < current.raw
}

// GreaterThan returns a predicate that keeps versions strictly above floor.
func GreaterThan(floor Version) func(Version) bool {
	return func(v Version) bool {
		return v.Compare(floor) > 0
	}
}

var qualifierRank = map[string]string{
	"alpha":     "0",
	"beta":      "1",
	"milestone": "2",
	"rc":        "3",
	"cr":        "3",
	"snapshot":  "4",
	"":          "5",
	"ga":        "5",
	"final":     "5",
	"release":   "5",
	"sp":        "6",
}

const releaseRank = "5"

type item interface {
	compare(other item) int
	isNull() bool
}

type intItem string

type stringItem string

type listItem []item

func newIntItem(digits string) intItem {
	trimmed := strings.TrimLeft(digits, "0")
	return intItem(trimmed)
}

func (i intItem) isNull() bool {
	return i == ""
}

func (i intItem) compare(other item) int {
	switch o := other.(type) {
	case nil:
		if i.isNull() {
			return 0
		}
		return 1
	case intItem:
		if len(i) != len(o) {
			if len(i) < len(o) {
				return -1
			}
			return 1
		}
		return strings.Compare(string(i), string(o))
	case stringItem:
		return 1
	case listItem:
		return 1
	}
	return 0
}

func newStringItem(s string, followedByDigit bool) stringItem {
	if followedByDigit && len(s) == 1 {
		switch s {
		case "a":
			s = "alpha"
		case "b":
			s = "beta"
		case "m":
			s = "milestone"
		}
	}
	return stringItem(s)
}

func (s stringItem) rank() string {
	if r, ok := qualifierRank[string(s)]; ok {
		return r
	}
	return "7-" + string(s)
}

func (s stringItem) isNull() bool {
	return s.rank() == releaseRank
}

func (s stringItem) compare(other item) int {
	switch o := other.(type) {
	case nil:
		return strings.Compare(s.rank(), releaseRank)
	case intItem:
		return -1
	case stringItem:
		return strings.Compare(s.rank(), o.rank())
	case listItem:
		return -1
	}
	return 0
}

func (l listItem) isNull() bool {
	return len(l) == 0
}

func (l listItem) compare(other item) int {
	switch o := other.(type) {
	case nil:
		if len(l) == 0 {
			return 0
		}
		return l[0].compare(nil)
	case intItem:
		return -1
	case stringItem:
		return 1
	case listItem:
		for i := 0; i < len(l) || i < len(o); i++ {
			var left, right item
			if i < len(l) {
				left = l[i]
			}
			if i < len(o) {
				right = o[i]
			}
			var c int
			switch {
			case left == nil && right == nil:
				c = 0
			case left == nil:
				c = -right.compare(nil)
			default:
				c = left.compare(right)
			}
			if c != 0 {
				return c
			}
		}
		return 0
	}
	return 0
}

// normalize drops trailing null items up to the last nested list.
func (l listItem) normalize() listItem {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].isNull() {
			l = append(l[:i], l[i+1:]...)
			continue
		}
		if _, ok := l[i].(listItem); !ok {
			break
		}
	}
	return l
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func parseSegment(s string, combination bool) item {
	if s != "" && isDigit(s[0]) && !combination {
		return newIntItem(s)
	}
	return newStringItem(s, false)
}

// parseItems builds the nested item tree. Each '-' and each digit/letter
// transition opens a sub-list so that qualifiers bind to the preceding
// numeric part.
func parseItems(version string) listItem {
	version = strings.ToLower(version)
	type frame struct {
		items listItem
	}
	stack := []*frame{{}}
	cur := stack[0]
	push := func() {
		f := &frame{}
		stack = append(stack, f)
		cur = f
	}

	digit := false
	start := 0
	for i := 0; i < len(version); i++ {
		c := version[i]
		switch {
		case c == '.':
			if i == start {
				cur.items = append(cur.items, intItem(""))
			} else {
				cur.items = append(cur.items, parseSegment(version[start:i], !digit))
			}
			start = i + 1
		case c == '-':
			if i == start {
				cur.items = append(cur.items, intItem(""))
			} else {
				cur.items = append(cur.items, parseSegment(version[start:i], !digit))
			}
			start = i + 1
			push()
		case isDigit(c):
			if !digit && i > start {
				cur.items = append(cur.items, newStringItem(version[start:i], true))
				start = i
				push()
			}
			digit = true
		default:
			if digit && i > start {
				cur.items = append(cur.items, parseSegment(version[start:i], false))
				start = i
				push()
			}
			digit = false
		}
	}
	if len(version) > start {
		cur.items = append(cur.items, parseSegment(version[start:], !digit))
	}

	// Fold the frames back: every pushed frame is the last child of the
	// frame below it.
	for len(stack) > 1 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		parent := stack[len(stack)-1]
		parent.items = append(parent.items, top.items.normalize())
	}
	return stack[0].items.normalize()
}
