package mockdb

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// toD normalizes v into a bson.D by round-tripping it through BSON.
// A nil value is an empty document.
func toD(v any) (bson.D, error) {
	if v == nil {
		return bson.D{}, nil
	}
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// toM normalizes v into a bson.M by round-tripping it through BSON.
func toM(v any) (bson.M, error) {
	if v == nil {
		return nil, errNilDocument
	}
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := bson.M{}
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// asD views a nested document value as a bson.D.
func asD(v any) (bson.D, bool) {
	switch d := v.(type) {
	case bson.D:
		return d, true
	case bson.M:
		return mapToD(d), true
	case map[string]any:
		return mapToD(d), true
	}
	return nil, false
}

func mapToD(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := make(bson.D, 0, len(m))
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: m[k]})
	}
	return d
}

func copyDoc(d bson.M) bson.M {
	out := make(bson.M, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// lookup resolves a dotted path against doc.
func lookup(doc bson.M, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case bson.M:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case bson.D:
			found := false
			for _, e := range node {
				if e.Key == part {
					cur, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return cur, true
}

// matches reports whether doc satisfies filter.
func matches(doc bson.M, filter bson.D) (bool, error) {
	for _, e := range filter {
		ok, err := matchElement(doc, e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchElement(doc bson.M, e bson.E) (bool, error) {
	switch e.Key {
	case "$and", "$or", "$nor":
		clauses, ok := e.Value.(bson.A)
		if !ok || len(clauses) == 0 {
			return false, fmt.Errorf("mockdb: %s must be a nonempty array", e.Key)
		}
		for _, c := range clauses {
			sub, ok := asD(c)
			if !ok {
				return false, fmt.Errorf("mockdb: %s entries must be documents", e.Key)
			}
			hit, err := matches(doc, sub)
			if err != nil {
				return false, err
			}
			switch {
			case e.Key == "$and" && !hit:
				return false, nil
			case e.Key == "$or" && hit:
				return true, nil
			case e.Key == "$nor" && hit:
				return false, nil
			}
		}
		return e.Key != "$or", nil
	}
	if strings.HasPrefix(e.Key, "$") {
		return false, fmt.Errorf("mockdb: unknown top level operator: %s", e.Key)
	}

	val, exists := lookup(doc, e.Key)
	if ops, ok := operatorDoc(e.Value); ok {
		return matchOperators(val, exists, ops)
	}
	return matchEq(val, exists, e.Value), nil
}

// operatorDoc returns v as a document when every key is an operator.
func operatorDoc(v any) (bson.D, bool) {
	d, ok := asD(v)
	if !ok || len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return d, true
}

func matchEq(val any, exists bool, want any) bool {
	if !exists {
		return want == nil
	}
	if arr, ok := val.(bson.A); ok {
		if _, wantArr := want.(bson.A); !wantArr {
			for _, item := range arr {
				if equal(item, want) {
					return true
				}
			}
			return false
		}
	}
	return equal(val, want)
}

func matchOperators(val any, exists bool, ops bson.D) (bool, error) {
	for _, op := range ops {
		var hit bool
		switch op.Key {
		case "$eq":
			hit = matchEq(val, exists, op.Value)
		case "$ne":
			hit = !matchEq(val, exists, op.Value)
		case "$gt", "$gte", "$lt", "$lte":
			if exists {
				if c, ok := compareValues(val, op.Value); ok {
					switch op.Key {
					case "$gt":
						hit = c > 0
					case "$gte":
						hit = c >= 0
					case "$lt":
						hit = c < 0
					case "$lte":
						hit = c <= 0
					}
				}
			}
		case "$in", "$nin":
			set, ok := op.Value.(bson.A)
			if !ok {
				return false, fmt.Errorf("mockdb: %s needs an array", op.Key)
			}
			for _, want := range set {
				if matchEq(val, exists, want) {
					hit = true
					break
				}
			}
			if op.Key == "$nin" {
				hit = !hit
			}
		case "$exists":
			hit = truthy(op.Value) == exists
		default:
			return false, fmt.Errorf("mockdb: unknown operator: %s", op.Key)
		}
		if !hit {
			return false, nil
		}
	}
	return true, nil
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case nil:
		return false
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// equal compares BSON values, treating all numeric types as one.
func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case bson.A:
		bv, ok := b.(bson.A)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case bson.D, bson.M, map[string]any:
		ad, _ := asD(av)
		bd, ok := asD(b)
		if !ok || len(ad) != len(bd) {
			return false
		}
		for i := range ad {
			if ad[i].Key != bd[i].Key || !equal(ad[i].Value, bd[i].Value) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values of the same kind.
// ok is false when the values are not comparable.
func compareValues(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	case bson.ObjectID:
		bv, ok := b.(bson.ObjectID)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av[:], bv[:]), true
	case bson.DateTime:
		switch bv := b.(type) {
		case bson.DateTime:
			return compareInt(int64(av), int64(bv)), true
		case time.Time:
			return compareInt(int64(av), bv.UnixMilli()), true
		}
	case time.Time:
		switch bv := b.(type) {
		case time.Time:
			return av.Compare(bv), true
		case bson.DateTime:
			return compareInt(av.UnixMilli(), int64(bv)), true
		}
	}
	return 0, false
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// typeRank places values of different kinds in sort order.
func typeRank(v any) int {
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 2
	case bson.D, bson.M, map[string]any:
		return 3
	case bson.A:
		return 4
	case bson.ObjectID:
		return 6
	case bool:
		return 7
	case bson.DateTime, time.Time:
		return 8
	}
	return 5
}

func orderValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return compareInt(int64(ra), int64(rb))
	}
	c, _ := compareValues(a, b)
	return c
}

// sortDocs orders docs in place by spec. Ties keep their relative order.
func sortDocs(docs []bson.M, spec bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range spec {
			a, _ := lookup(docs[i], key.Key)
			b, _ := lookup(docs[j], key.Key)
			c := orderValues(a, b)
			if dir, _ := toFloat(key.Value); dir < 0 {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// window applies skip and limit. A zero limit means no limit.
func window(docs []bson.M, skip, limit *int64) ([]bson.M, error) {
	if skip != nil {
		if *skip < 0 {
			return nil, errors.New("mockdb: skip must be non-negative")
		}
		if *skip >= int64(len(docs)) {
			return docs[:0], nil
		}
		docs = docs[*skip:]
	}
	if limit != nil {
		if *limit < 0 {
			return nil, errors.New("mockdb: limit must be non-negative")
		}
		if *limit > 0 && *limit < int64(len(docs)) {
			docs = docs[:*limit]
		}
	}
	return docs, nil
}

// project keeps or drops top-level fields. _id is kept unless excluded.
func project(docs []bson.M, spec bson.D) []bson.M {
	include := false
	keepID := true
	fields := make(map[string]bool, len(spec))
	for _, e := range spec {
		on := truthy(e.Value)
		if e.Key == "_id" {
			keepID = on
			continue
		}
		fields[e.Key] = on
		if on {
			include = true
		}
	}

	out := make([]bson.M, len(docs))
	for i, d := range docs {
		next := bson.M{}
		for k, v := range d {
			switch {
			case k == "_id":
				if keepID {
					next[k] = v
				}
			case include:
				if fields[k] {
					next[k] = v
				}
			default:
				if on, listed := fields[k]; !listed || on {
					next[k] = v
				}
			}
		}
		out[i] = next
	}
	return out
}

// applyUpdate applies $set, $unset, $inc and $push to doc.
func applyUpdate(doc bson.M, update bson.D) error {
	if len(update) == 0 {
		return errors.New("mockdb: update document must not be empty")
	}
	for _, op := range update {
		if !strings.HasPrefix(op.Key, "$") {
			return errors.New("mockdb: update document requires atomic operators")
		}
		fields, ok := asD(op.Value)
		if !ok {
			return fmt.Errorf("mockdb: %s needs a document", op.Key)
		}
		for _, f := range fields {
			if strings.Contains(f.Key, ".") {
				return fmt.Errorf("mockdb: dotted update path %q is not supported", f.Key)
			}
			switch op.Key {
			case "$set":
				doc[f.Key] = f.Value
			case "$unset":
				delete(doc, f.Key)
			case "$inc":
				sum, err := increment(doc[f.Key], f.Value)
				if err != nil {
					return fmt.Errorf("mockdb: $inc %s: %w", f.Key, err)
				}
				doc[f.Key] = sum
			case "$push":
				switch cur := doc[f.Key].(type) {
				case nil:
					doc[f.Key] = bson.A{f.Value}
				case bson.A:
					doc[f.Key] = append(append(bson.A(nil), cur...), f.Value)
				default:
					return fmt.Errorf("mockdb: $push target %s is not an array", f.Key)
				}
			default:
				return fmt.Errorf("mockdb: unknown update operator: %s", op.Key)
			}
		}
	}
	return nil
}

func increment(cur, by any) (any, error) {
	if _, ok := toFloat(by); !ok {
		return nil, errors.New("cannot increment with non-numeric argument")
	}
	if cur == nil {
		return by, nil
	}
	if _, ok := toFloat(cur); !ok {
		return nil, errors.New("cannot apply $inc to a non-numeric value")
	}
	ci, cInt := toInt64(cur)
	bi, bInt := toInt64(by)
	_, curFloat := cur.(float64)
	_, byFloat := by.(float64)
	if cInt && bInt && !curFloat && !byFloat {
		return ci + bi, nil
	}
	cf, _ := toFloat(cur)
	bf, _ := toFloat(by)
	return cf + bf, nil
}
