package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dkeye/Poker/internal/domain"
)

type OpKind int

const (
	OpSet OpKind = iota
	OpDelete
	OpArrayUnion
	OpArrayRemove
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	case OpArrayUnion:
		return "array-union"
	case OpArrayRemove:
		return "array-remove"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// FieldOp targets one dotted path inside the room document,
// e.g. "user.<uid>.estimatePoint".
type FieldOp struct {
	Path   string
	Kind   OpKind
	Value  any
	Values []any
}

// Patch is applied in order as a single atomic update.
type Patch []FieldOp

var ErrPathConflict = errors.New("patch path crosses a non-object value")

func Set(path string, v any) FieldOp { return FieldOp{Path: path, Kind: OpSet, Value: v} }

func Delete(path string) FieldOp { return FieldOp{Path: path, Kind: OpDelete} }

func ArrayUnion(path string, vs ...any) FieldOp {
	return FieldOp{Path: path, Kind: OpArrayUnion, Values: vs}
}

func ArrayRemove(path string, vs ...any) FieldOp {
	return FieldOp{Path: path, Kind: OpArrayRemove, Values: vs}
}

func MemberPath(uid domain.UserID, field string) string {
	if field == "" {
		return "user." + string(uid)
	}
	return "user." + string(uid) + "." + field
}

func HistoryPath(token string) string { return "history." + token }

func (p Patch) Empty() bool { return len(p) == 0 }

// Paths lists the targeted paths, mostly for logging.
func (p Patch) Paths() []string {
	out := make([]string, len(p))
	for i, op := range p {
		out[i] = op.Kind.String() + ":" + op.Path
	}
	return out
}

// Apply mutates doc in place. Values are normalized through JSON so the
// document keeps the shape it would have after a store roundtrip. On error
// doc may be partially modified; stores apply patches to a copy.
func Apply(doc map[string]any, p Patch) error {
	for _, op := range p {
		if err := applyOp(doc, op); err != nil {
			return fmt.Errorf("%s %q: %w", op.Kind, op.Path, err)
		}
	}
	return nil
}

func applyOp(doc map[string]any, op FieldOp) error {
	parts := strings.Split(op.Path, ".")
	for _, part := range parts {
		if part == "" {
			return domain.ErrInvalidArgument
		}
	}
	parent, leaf := parts[:len(parts)-1], parts[len(parts)-1]

	switch op.Kind {
	case OpSet:
		v, err := normalize(op.Value)
		if err != nil {
			return err
		}
		m, err := walk(doc, parent, true)
		if err != nil {
			return err
		}
		m[leaf] = v
		return nil

	case OpDelete:
		m, err := walk(doc, parent, false)
		if err != nil || m == nil {
			return nil
		}
		delete(m, leaf)
		return nil

	case OpArrayUnion:
		m, err := walk(doc, parent, true)
		if err != nil {
			return err
		}
		arr, err := arrayAt(m, leaf)
		if err != nil {
			return err
		}
		for _, raw := range op.Values {
			v, err := normalize(raw)
			if err != nil {
				return err
			}
			if !containsValue(arr, v) {
				arr = append(arr, v)
			}
		}
		m[leaf] = arr
		return nil

	case OpArrayRemove:
		m, err := walk(doc, parent, false)
		if err != nil || m == nil {
			return nil
		}
		if _, ok := m[leaf]; !ok {
			return nil
		}
		arr, err := arrayAt(m, leaf)
		if err != nil {
			return err
		}
		out := make([]any, 0, len(arr))
		for _, have := range arr {
			drop := false
			for _, raw := range op.Values {
				v, err := normalize(raw)
				if err != nil {
					return err
				}
				if reflect.DeepEqual(have, v) {
					drop = true
					break
				}
			}
			if !drop {
				out = append(out, have)
			}
		}
		m[leaf] = out
		return nil
	}
	return fmt.Errorf("unknown op kind %d", op.Kind)
}

// walk descends through nested objects. With create it fills missing or null
// steps with empty objects, without it a missing step yields nil.
func walk(doc map[string]any, parts []string, create bool) (map[string]any, error) {
	cur := doc
	for _, part := range parts {
		next, ok := cur[part]
		if !ok || next == nil {
			if !create {
				return nil, nil
			}
			m := map[string]any{}
			cur[part] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, ErrPathConflict
		}
		cur = m
	}
	return cur, nil
}

func arrayAt(m map[string]any, key string) ([]any, error) {
	switch v := m[key].(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	default:
		return nil, ErrPathConflict
	}
}

func containsValue(arr []any, v any) bool {
	for _, have := range arr {
		if reflect.DeepEqual(have, v) {
			return true
		}
	}
	return false
}

func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
