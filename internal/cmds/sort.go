package cmds

import (
	"sort"
	"strconv"
	"strings"

	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
)

// SortOpts mirrors SORT's option grammar (spec.md §4.13): BY pattern
// (`*` substitution, `->` suffix selects a hash field), GET pattern
// list (`#` is the element itself), LIMIT offset/count, ASC/DESC,
// ALPHA, STORE. Grounded on original_source/src/cmd/sort.rs's
// SortOptions/sort_impl.
type SortOpts struct {
	ByPattern    string
	HasBy        bool
	GetPatterns  []string
	Ascending    bool
	Alpha        bool
	LimitStart   int
	LimitCount   int // -1 = unbounded
	StoreKey     string
	HasStore     bool
}

func defaultSortOpts() SortOpts {
	return SortOpts{Ascending: true, LimitCount: -1}
}

// ParseSortOpts consumes SORT's trailing tokens (argv[1:]).
func ParseSortOpts(argv [][]byte) (SortOpts, error) {
	o := defaultSortOpts()
	for i := 0; i < len(argv); i++ {
		tok := strings.ToUpper(string(argv[i]))
		switch tok {
		case "ASC":
			o.Ascending = true
		case "DESC":
			o.Ascending = false
		case "ALPHA":
			o.Alpha = true
		case "LIMIT":
			if i+2 >= len(argv) {
				return o, errSetSyntax
			}
			start, err := strconv.Atoi(string(argv[i+1]))
			if err != nil {
				return o, errSetNotInt
			}
			count, err := strconv.Atoi(string(argv[i+2]))
			if err != nil {
				return o, errSetNotInt
			}
			o.LimitStart, o.LimitCount = start, count
			i += 2
		case "BY":
			if i+1 >= len(argv) {
				return o, errSetSyntax
			}
			o.ByPattern = string(argv[i+1])
			o.HasBy = true
			i++
		case "GET":
			if i+1 >= len(argv) {
				return o, errSetSyntax
			}
			o.GetPatterns = append(o.GetPatterns, string(argv[i+1]))
			i++
		case "STORE":
			if i+1 >= len(argv) {
				return o, errSetSyntax
			}
			o.StoreKey = string(argv[i+1])
			o.HasStore = true
			i++
		default:
			return o, errSetSyntax
		}
	}
	return o, nil
}

// lookupByPattern substitutes `*` in pattern with elem and, if the
// pattern has a `->field` suffix, reads that field out of the hash at
// the substituted key instead of the key's string value.
func (c *Context) lookupByPattern(pattern, elem string) ([]byte, bool) {
	key := pattern
	field := ""
	hasField := false
	if idx := strings.Index(pattern, "->"); idx >= 0 {
		key = pattern[:idx]
		field = pattern[idx+2:]
		hasField = true
	}
	key = strings.Replace(key, "*", elem, 1)

	var out []byte
	found := false
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if hasField {
			if e.Value.Kind != store.KindHash {
				return
			}
			if v, has := e.Value.Hash[field]; has {
				out = v
				found = true
			}
			return
		}
		if e.Value.Kind == store.KindString {
			out = e.Value.Str
			found = true
		}
	})
	return out, found
}

// collectSortElements reads the source key's members in the order
// stored.List/ZSet/Set iteration gives them.
func (c *Context) collectSortElements(key string) ([]string, error) {
	var elements []string
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		switch e.Value.Kind {
		case store.KindList:
			for el := e.Value.List.Front(); el != nil; el = el.Next() {
				elements = append(elements, string(el.Value.([]byte)))
			}
		case store.KindSet:
			for m := range e.Value.Set {
				elements = append(elements, m)
			}
		case store.KindZSet:
			for _, m := range e.Value.ZSet.RangeByIndex(0, e.Value.ZSet.Len()-1) {
				elements = append(elements, m.Member)
			}
		default:
			typeErr = true
		}
	})
	if typeErr {
		return nil, store.ErrWrongType
	}
	return elements, nil
}

// Sort implements SORT/SORT_RO.
func (c *Context) Sort(key string, o SortOpts) resp.Frame {
	elements, err := c.collectSortElements(key)
	if err != nil {
		return errWrongType()
	}

	nosort := o.HasBy && o.ByPattern == "nosort"
	type scored struct {
		elem   string
		num    float64
		str    string
	}
	scoredEls := make([]scored, len(elements))
	for i, elem := range elements {
		var raw []byte
		var has bool
		if o.HasBy && !nosort {
			raw, has = c.lookupByPattern(o.ByPattern, elem)
		} else if !o.HasBy {
			raw, has = []byte(elem), true
		}
		se := scored{elem: elem}
		if !has {
			scoredEls[i] = se
			continue
		}
		if o.Alpha {
			se.str = string(raw)
		} else {
			f, err := strconv.ParseFloat(string(raw), 64)
			if err != nil {
				return resp.Err("ERR One or more scores can't be converted into double")
			}
			se.num = f
		}
		scoredEls[i] = se
	}

	if !nosort {
		sort.SliceStable(scoredEls, func(i, j int) bool {
			var less bool
			if o.Alpha {
				less = scoredEls[i].str < scoredEls[j].str
			} else {
				less = scoredEls[i].num < scoredEls[j].num
			}
			if o.Ascending {
				return less
			}
			if o.Alpha {
				return scoredEls[i].str > scoredEls[j].str
			}
			return scoredEls[i].num > scoredEls[j].num
		})
	}

	n := len(scoredEls)
	start := o.LimitStart
	if start > n {
		start = n
	}
	end := n
	if o.LimitCount >= 0 && start+o.LimitCount < n {
		end = start + o.LimitCount
	}
	window := scoredEls[start:end]

	var out []resp.Frame
	for _, se := range window {
		if len(o.GetPatterns) == 0 {
			out = append(out, resp.BulkStr(se.elem))
			continue
		}
		for _, gp := range o.GetPatterns {
			if gp == "#" {
				out = append(out, resp.BulkStr(se.elem))
				continue
			}
			v, has := c.lookupByPattern(gp, se.elem)
			if !has {
				out = append(out, resp.Null())
				continue
			}
			out = append(out, resp.Bulk(v))
		}
	}

	if o.HasStore {
		elemsOnly := make([][]byte, 0, len(window))
		for _, se := range window {
			elemsOnly = append(elemsOnly, []byte(se.elem))
		}
		c.Store.Update(o.StoreKey, func(e *store.Entry, exists bool) (*store.Entry, bool) {
			ne := store.NewEntry(store.NewList())
			for _, v := range elemsOnly {
				ne.Value.List.PushBack(append([]byte(nil), v...))
			}
			return ne, false
		})
		c.touch(notify.ClassList, "sortstore", o.StoreKey)
		return resp.Int(int64(len(elemsOnly)))
	}

	return resp.ArrSlice(out)
}
