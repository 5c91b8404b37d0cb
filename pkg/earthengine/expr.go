package earthengine

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
)

type exprKind int

const (
	kindConstant exprKind = iota
	kindInvocation
	kindArray
	kindArgument
	kindFunction
)

// Expr is a node of an Earth Engine expression graph. Exprs are immutable and
// may be shared between graphs; Serialize emits each distinct node once.
type Expr struct {
	n *exprNode
}

type exprNode struct {
	kind     exprKind
	constant any
	name     string          // function name or argument name
	args     map[string]Expr // invocation arguments
	items    []Expr          // array items
	params   []string        // function parameters
	body     Expr            // function body
}

// Constant wraps a JSON-encodable value.
func Constant(v any) Expr {
	return Expr{&exprNode{kind: kindConstant, constant: v}}
}

// Null is the null constant.
func Null() Expr { return Constant(nil) }

// Invoke calls a server-side algorithm such as "Image.select". Nil-valued
// arguments (zero Expr) are dropped.
func Invoke(name string, args map[string]Expr) Expr {
	clean := make(map[string]Expr, len(args))
	for k, v := range args {
		if v.n != nil {
			clean[k] = v
		}
	}
	return Expr{&exprNode{kind: kindInvocation, name: name, args: clean}}
}

// Array builds a list value.
func Array(items ...Expr) Expr {
	return Expr{&exprNode{kind: kindArray, items: items}}
}

// Strings builds a list of string constants.
func Strings(ss ...string) Expr {
	items := make([]Expr, len(ss))
	for i, s := range ss {
		items[i] = Constant(s)
	}
	return Array(items...)
}

// ArgRef references a parameter of the enclosing Func.
func ArgRef(name string) Expr {
	return Expr{&exprNode{kind: kindArgument, name: name}}
}

// Func defines an anonymous server-side function, used as the body of
// Collection.map.
func Func(params []string, body Expr) Expr {
	return Expr{&exprNode{kind: kindFunction, params: params, body: body}}
}

// IsZero reports whether e was never set.
func (e Expr) IsZero() bool { return e.n == nil }

// Expression is the REST wire form of an expression graph.
type Expression struct {
	Result string                     `json:"result"`
	Values map[string]json.RawMessage `json:"values"`
}

// Serialize flattens an expression graph into the REST form. Invocations and
// function definitions are stored once in Values and referenced by id;
// constants, arrays and dictionaries are inlined.
func Serialize(root Expr) (*Expression, error) {
	if root.IsZero() {
		return nil, eris.New("earthengine: serialize empty expression")
	}

	s := &serializer{
		values: make(map[string]json.RawMessage),
		ids:    make(map[string]string),
		memo:   make(map[*exprNode]json.RawMessage),
	}
	raw, err := s.encode(root)
	if err != nil {
		return nil, err
	}

	if id, ok := referenceID(raw); ok {
		return &Expression{Result: id, Values: s.values}, nil
	}
	return &Expression{Result: s.store(raw), Values: s.values}, nil
}

type serializer struct {
	values map[string]json.RawMessage
	ids    map[string]string // canonical encoding -> id
	memo   map[*exprNode]json.RawMessage
}

// store records raw under a new id unless an identical node exists.
func (s *serializer) store(raw json.RawMessage) string {
	key := string(raw)
	if id, ok := s.ids[key]; ok {
		return id
	}
	id := strconv.Itoa(len(s.values))
	s.ids[key] = id
	s.values[id] = raw
	return id
}

func (s *serializer) reference(raw json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"valueReference": s.store(raw)})
}

func (s *serializer) encode(e Expr) (json.RawMessage, error) {
	if e.IsZero() {
		return nil, eris.New("earthengine: unset expression node")
	}
	if raw, ok := s.memo[e.n]; ok {
		return raw, nil
	}
	raw, err := s.encodeNode(e.n)
	if err != nil {
		return nil, err
	}
	s.memo[e.n] = raw
	return raw, nil
}

func (s *serializer) encodeNode(n *exprNode) (json.RawMessage, error) {
	switch n.kind {
	case kindConstant:
		return marshalNode("constantValue", n.constant)

	case kindArgument:
		return marshalNode("argumentReference", n.name)

	case kindArray:
		values := make([]json.RawMessage, len(n.items))
		for i, item := range n.items {
			raw, err := s.encode(item)
			if err != nil {
				return nil, err
			}
			values[i] = raw
		}
		return marshalNode("arrayValue", map[string]any{"values": values})

	case kindInvocation:
		args, err := s.encodeMap(n.args)
		if err != nil {
			return nil, err
		}
		raw, err := marshalNode("functionInvocationValue", map[string]any{
			"functionName": n.name,
			"arguments":    args,
		})
		if err != nil {
			return nil, err
		}
		return s.reference(raw)

	case kindFunction:
		body, err := s.encode(n.body)
		if err != nil {
			return nil, err
		}
		bodyID, ok := referenceID(body)
		if !ok {
			bodyID = s.store(body)
		}
		params := n.params
		if params == nil {
			params = []string{}
		}
		raw, err := marshalNode("functionDefinitionValue", map[string]any{
			"argumentNames": params,
			"body":          bodyID,
		})
		if err != nil {
			return nil, err
		}
		return s.reference(raw)

	default:
		return nil, eris.Errorf("earthengine: unknown node kind %d", n.kind)
	}
}

func (s *serializer) encodeMap(m map[string]Expr) (map[string]json.RawMessage, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Children are encoded in key order so ids are deterministic.
	sort.Strings(keys)

	out := make(map[string]json.RawMessage, len(m))
	for _, k := range keys {
		raw, err := s.encode(m[k])
		if err != nil {
			return nil, eris.Wrapf(err, "earthengine: argument %q", k)
		}
		out[k] = raw
	}
	return out, nil
}

func marshalNode(field string, v any) (json.RawMessage, error) {
	raw, err := json.Marshal(map[string]any{field: v})
	if err != nil {
		return nil, eris.Wrapf(err, "earthengine: marshal %s", field)
	}
	return raw, nil
}

func referenceID(raw json.RawMessage) (string, bool) {
	var ref struct {
		ValueReference *string `json:"valueReference"`
	}
	if err := json.Unmarshal(raw, &ref); err != nil || ref.ValueReference == nil {
		return "", false
	}
	return *ref.ValueReference, true
}
