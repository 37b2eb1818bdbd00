package kubetable

import (
	"cmp"
	"fmt"
	"math"
	"strings"
	"time"
)

// SortValuer is implemented by column values that sort by a number other
// than their display form, such as [Age].
type SortValuer interface {
	SortValue() float64
}

// value ranks: every value of a lower rank sorts before every value of a
// higher rank, whatever the values themselves are.
const (
	rankNumber = iota
	rankString
	rankBool
	rankOther
	rankMissing
)

// sortKey is a column value resolved for comparison.
type sortKey struct {
	rank int
	num  float64
	str  string
	b    bool
}

// resolveSortKey resolves a column value. Objects carrying a numeric sort
// member ([SortValuer], or a map with a numeric "sort" key) compare by that
// member; times compare by Unix milliseconds; NaN and nil count as missing.
func resolveSortKey(v any) sortKey {
	switch x := v.(type) {
	case nil:
		return sortKey{rank: rankMissing}
	case *Age:
		if x == nil {
			return sortKey{rank: rankMissing}
		}
		return numberKey(x.SortValue())
	case SortValuer:
		return numberKey(x.SortValue())
	case map[string]any:
		if n, ok := toFloat(x["sort"]); ok {
			return numberKey(n)
		}
		return sortKey{rank: rankOther, str: fmt.Sprint(x)}
	case time.Time:
		if x.IsZero() {
			return sortKey{rank: rankMissing}
		}
		return numberKey(float64(x.UnixMilli()))
	case string:
		return sortKey{rank: rankString, str: x}
	case bool:
		return sortKey{rank: rankBool, b: x}
	}
	if n, ok := toFloat(v); ok {
		return numberKey(n)
	}
	return sortKey{rank: rankOther, str: fmt.Sprint(v)}
}

func numberKey(n float64) sortKey {
	if math.IsNaN(n) {
		return sortKey{rank: rankMissing}
	}
	return sortKey{rank: rankNumber, num: n}
}

// toFloat converts any Go numeric type to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func compareKeys(a, b sortKey) int {
	if a.rank != b.rank {
		return cmp.Compare(a.rank, b.rank)
	}
	switch a.rank {
	case rankNumber:
		return cmp.Compare(a.num, b.num)
	case rankString, rankOther:
		return strings.Compare(a.str, b.str)
	case rankBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	default:
		return 0
	}
}

// CompareValues defines the total order used to sort columns. It returns a
// negative number when a sorts before b, zero when they tie and a positive
// number otherwise.
//
// Values are grouped by kind, in this order: numbers (including sort objects
// and times), strings (byte-wise), booleans (false before true), any other
// value (by its fmt.Sprint form), and finally missing values (nil, NaN, zero
// times). A descending sort reverses the whole order, so missing values come
// first.
func CompareValues(a, b any) int {
	return compareKeys(resolveSortKey(a), resolveSortKey(b))
}
