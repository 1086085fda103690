package recordstore

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Node is the value found at a path. Values are plain JSON trees
// (map[string]any, []any, string, float64, bool); a missing node has a nil value.
type Node struct {
	Path  string
	value any
}

func NewNode(path string, value any) Node {
	return Node{Path: Clean(path), value: value}
}

func (n Node) Exists() bool { return n.value != nil }

func (n Node) Value() any { return n.value }

// Key is the last path segment.
func (n Node) Key() string {
	segs := Split(n.Path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

func (n Node) Raw() (json.RawMessage, error) {
	if n.value == nil {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(n.value)
}

// Decode unmarshals the node into v. Decoding a missing node leaves v untouched.
func (n Node) Decode(v any) error {
	if n.value == nil {
		return nil
	}
	raw, err := json.Marshal(n.value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (n Node) Child(key string) Node {
	m, _ := n.value.(map[string]any)
	return Node{Path: Join(n.Path, key), value: m[key]}
}

// Children returns object children ordered by key. Push keys sort by creation time.
func (n Node) Children() []Node {
	m, ok := n.value.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Node, 0, len(keys))
	for _, k := range keys {
		out = append(out, Node{Path: Join(n.Path, k), value: m[k]})
	}
	return out
}

// normalize turns any JSON-marshalable value into a pruned JSON tree.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return prune(out), nil
}

// prune drops null members and empty objects; the tree has no empty nodes.
func prune(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			p := prune(child)
			if p == nil {
				delete(v, k)
				continue
			}
			v[k] = p
		}
		if len(v) == 0 {
			return nil
		}
		return v
	default:
		return value
	}
}

// Lookup walks root along path.
func Lookup(root any, path string) any {
	cur := root
	for _, seg := range Split(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

// SetPath writes value at path inside root and returns the new root. A nil
// value deletes the path and prunes parents left empty.
func SetPath(root any, path string, value any) any {
	return setSegs(root, Split(path), value)
}

func setSegs(node any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}
	m, ok := node.(map[string]any)
	if !ok {
		if value == nil {
			return node
		}
		m = map[string]any{}
	}
	child := setSegs(m[segs[0]], segs[1:], value)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Flatten maps every leaf below value to its full path. Arrays and scalars are
// leaves; objects are walked.
func Flatten(path string, value any) map[string]any {
	out := map[string]any{}
	flattenInto(out, Clean(path), value)
	return out
}

func flattenInto(out map[string]any, path string, value any) {
	switch v := value.(type) {
	case nil:
		return
	case map[string]any:
		for k, child := range v {
			flattenInto(out, Join(path, k), child)
		}
	default:
		out[path] = v
	}
}

// Build reassembles leaves found below base into a tree rooted at base.
func Build(base string, leaves map[string]any) any {
	base = Clean(base)
	var root any
	for p, v := range leaves {
		p = Clean(p)
		if base != "" && p != base && !strings.HasPrefix(p, base+"/") {
			continue
		}
		root = SetPath(root, strings.TrimPrefix(p, base), v)
	}
	return root
}

// Clone deep-copies a JSON tree so callers never share maps with a store.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}

// DecodeLeaf parses a stored leaf.
func DecodeLeaf(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func EncodeLeaf(v any) ([]byte, error) {
	return json.Marshal(v)
}
