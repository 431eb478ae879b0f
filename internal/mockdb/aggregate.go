package mockdb

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// runPipeline evaluates stages in order over docs.
func runPipeline(docs []bson.M, stages []bson.D) ([]bson.M, error) {
	for _, stage := range stages {
		if len(stage) != 1 {
			return nil, errors.New("mockdb: a pipeline stage specification object must contain exactly one field")
		}
		name, spec := stage[0].Key, stage[0].Value

		var err error
		switch name {
		case "$match":
			docs, err = matchStage(docs, spec)
		case "$unwind":
			docs, err = unwindStage(docs, spec)
		case "$group":
			docs, err = groupStage(docs, spec)
		case "$sort":
			d, ok := asD(spec)
			if !ok || len(d) == 0 {
				return nil, errors.New("mockdb: $sort key specification must be a nonempty object")
			}
			sortDocs(docs, d)
		case "$skip":
			n, ok := toInt64(spec)
			if !ok || n < 0 {
				return nil, errors.New("mockdb: $skip must be a non-negative integer")
			}
			docs, err = window(docs, &n, nil)
		case "$limit":
			n, ok := toInt64(spec)
			if !ok || n <= 0 {
				return nil, errors.New("mockdb: the limit must be positive")
			}
			docs, err = window(docs, nil, &n)
		case "$count":
			docs, err = countStage(docs, spec)
		case "$project":
			docs, err = projectStage(docs, spec)
		case "$addFields", "$set":
			docs, err = addFieldsStage(docs, spec)
		default:
			return nil, fmt.Errorf("mockdb: unrecognized pipeline stage name: '%s'", name)
		}
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func matchStage(docs []bson.M, spec any) ([]bson.M, error) {
	filter, ok := asD(spec)
	if !ok {
		return nil, errors.New("mockdb: $match needs a document")
	}
	out := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		hit, err := matches(d, filter)
		if err != nil {
			return nil, err
		}
		if hit {
			out = append(out, d)
		}
	}
	return out, nil
}

func fieldPath(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "$") || len(s) < 2 {
		return "", false
	}
	return s[1:], true
}

func unwindStage(docs []bson.M, spec any) ([]bson.M, error) {
	var (
		path     string
		ok       bool
		preserve bool
	)
	if d, isDoc := asD(spec); isDoc {
		for _, e := range d {
			switch e.Key {
			case "path":
				path, ok = fieldPath(e.Value)
			case "preserveNullAndEmptyArrays":
				preserve = truthy(e.Value)
			}
		}
	} else {
		path, ok = fieldPath(spec)
	}
	if !ok || strings.Contains(path, ".") {
		return nil, errors.New("mockdb: $unwind needs a top-level field path prefixed with '$'")
	}

	out := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		v, exists := d[path]
		arr, isArr := v.(bson.A)
		switch {
		case isArr && len(arr) > 0:
			for _, item := range arr {
				next := copyDoc(d)
				next[path] = item
				out = append(out, next)
			}
		case isArr || !exists || v == nil:
			if preserve {
				next := copyDoc(d)
				if isArr {
					delete(next, path)
				}
				out = append(out, next)
			}
		default:
			out = append(out, d)
		}
	}
	return out, nil
}

// evalExpr resolves field paths and nested documents against doc.
func evalExpr(doc bson.M, expr any) any {
	if path, ok := fieldPath(expr); ok {
		v, _ := lookup(doc, path)
		return v
	}
	if d, ok := asD(expr); ok {
		out := make(bson.D, 0, len(d))
		for _, e := range d {
			out = append(out, bson.E{Key: e.Key, Value: evalExpr(doc, e.Value)})
		}
		return out
	}
	return expr
}

type group struct {
	key  any
	docs []bson.M
}

func groupStage(docs []bson.M, spec any) ([]bson.M, error) {
	d, ok := asD(spec)
	if !ok {
		return nil, errors.New("mockdb: $group needs a document")
	}
	var (
		keyExpr any
		hasKey  bool
		accums  bson.D
	)
	for _, e := range d {
		if e.Key == "_id" {
			keyExpr, hasKey = e.Value, true
			continue
		}
		accums = append(accums, e)
	}
	if !hasKey {
		return nil, errors.New("mockdb: a group specification must include an _id")
	}

	var groups []*group
	for _, doc := range docs {
		k := evalExpr(doc, keyExpr)
		var g *group
		for _, existing := range groups {
			if equal(existing.key, k) {
				g = existing
				break
			}
		}
		if g == nil {
			g = &group{key: k}
			groups = append(groups, g)
		}
		g.docs = append(g.docs, doc)
	}

	out := make([]bson.M, 0, len(groups))
	for _, g := range groups {
		row := bson.M{"_id": g.key}
		for _, acc := range accums {
			op, ok := asD(acc.Value)
			if !ok || len(op) != 1 {
				return nil, fmt.Errorf("mockdb: the field '%s' must be an accumulator object", acc.Key)
			}
			v, err := accumulate(op[0].Key, op[0].Value, g.docs)
			if err != nil {
				return nil, err
			}
			row[acc.Key] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func accumulate(op string, expr any, docs []bson.M) (any, error) {
	switch op {
	case "$sum", "$avg":
		var (
			isum  int64
			fsum  float64
			float bool
			n     int
		)
		for _, d := range docs {
			v := evalExpr(d, expr)
			if _, isF := v.(float64); isF {
				float = true
			}
			if i, ok := toInt64(v); ok && !float {
				isum += i
				n++
				continue
			}
			if f, ok := toFloat(v); ok {
				fsum += f
				n++
			}
		}
		if op == "$avg" {
			if n == 0 {
				return nil, nil
			}
			return (float64(isum) + fsum) / float64(n), nil
		}
		if float {
			return float64(isum) + fsum, nil
		}
		return isum, nil
	case "$first", "$last":
		if len(docs) == 0 {
			return nil, nil
		}
		d := docs[0]
		if op == "$last" {
			d = docs[len(docs)-1]
		}
		return evalExpr(d, expr), nil
	case "$push", "$addToSet":
		out := bson.A{}
	next:
		for _, d := range docs {
			v := evalExpr(d, expr)
			if op == "$addToSet" {
				for _, seen := range out {
					if equal(seen, v) {
						continue next
					}
				}
			}
			out = append(out, v)
		}
		return out, nil
	case "$min", "$max":
		var best any
		for _, d := range docs {
			v := evalExpr(d, expr)
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := orderValues(v, best)
			if (op == "$min" && c < 0) || (op == "$max" && c > 0) {
				best = v
			}
		}
		return best, nil
	}
	return nil, fmt.Errorf("mockdb: unknown group operator '%s'", op)
}

func countStage(docs []bson.M, spec any) ([]bson.M, error) {
	name, ok := spec.(string)
	if !ok || name == "" || strings.HasPrefix(name, "$") || strings.Contains(name, ".") {
		return nil, errors.New("mockdb: the count field must be a non-empty string without '$' or '.'")
	}
	if len(docs) == 0 {
		return []bson.M{}, nil
	}
	return []bson.M{{name: int64(len(docs))}}, nil
}

func projectStage(docs []bson.M, spec any) ([]bson.M, error) {
	d, ok := asD(spec)
	if !ok || len(d) == 0 {
		return nil, errors.New("mockdb: $project specification must be a nonempty object")
	}
	var plain, computed bson.D
	for _, e := range d {
		if _, isPath := fieldPath(e.Value); isPath {
			computed = append(computed, e)
			continue
		}
		if _, isDoc := asD(e.Value); isDoc {
			computed = append(computed, e)
			continue
		}
		plain = append(plain, e)
	}
	if len(computed) > 0 {
		// computed fields imply inclusion mode
		plain = append(plain, bson.E{Key: computed[0].Key, Value: 1})
	}

	out := project(docs, plain)
	for i, src := range docs {
		for _, e := range computed {
			out[i][e.Key] = evalExpr(src, e.Value)
		}
	}
	return out, nil
}

func addFieldsStage(docs []bson.M, spec any) ([]bson.M, error) {
	d, ok := asD(spec)
	if !ok {
		return nil, errors.New("mockdb: $addFields needs a document")
	}
	out := make([]bson.M, len(docs))
	for i, src := range docs {
		next := copyDoc(src)
		for _, e := range d {
			next[e.Key] = evalExpr(src, e.Value)
		}
		out[i] = next
	}
	return out, nil
}
