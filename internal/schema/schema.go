// Package schema holds the read-only schema model consulted during query
// generation: named operations, their attributes, and their annotations.
// The model is built once at startup and never mutated at request time.
package schema

import (
	"fmt"
	"sort"
)

// Attribute describes a single named field of an operation.
type Attribute struct {
	// Name is the GraphQL-facing attribute name.
	Name string
	// Type is the GraphQL type name (e.g. "String", "Int").
	Type string
	// Column is the backing SQL column, when the attribute maps to one.
	Column string
}

// Operation is a named collection of attributes and annotations.
// Attribute names and annotation kinds are unique within an operation;
// duplicates are rejected at construction time, never overwritten silently.
type Operation struct {
	name        string
	attributes  map[string]Attribute
	annotations map[AnnotationKind]Annotation
}

// NewOperation builds an operation, applying uniqueness checks to the
// initial attributes and annotations in list order. The first duplicate
// encountered fails the whole construction.
func NewOperation(name string, attributes []Attribute, annotations []Annotation) (*Operation, error) {
	op := &Operation{
		name:        name,
		attributes:  make(map[string]Attribute, len(attributes)),
		annotations: make(map[AnnotationKind]Annotation, len(annotations)),
	}
	for _, attr := range attributes {
		if err := op.AddAttribute(attr); err != nil {
			return nil, err
		}
	}
	for _, ann := range annotations {
		if err := op.AddAnnotation(ann); err != nil {
			return nil, err
		}
	}
	return op, nil
}

// Name returns the operation name.
func (o *Operation) Name() string {
	return o.name
}

// AddAttribute registers an attribute, rejecting duplicate names.
func (o *Operation) AddAttribute(attr Attribute) error {
	if attr.Name == "" {
		return &ValidationError{
			Operation: o.name,
			Message:   "attribute name must not be empty",
		}
	}
	if _, exists := o.attributes[attr.Name]; exists {
		return &ValidationError{
			Operation: o.name,
			Message:   fmt.Sprintf("duplicate attribute %q", attr.Name),
		}
	}
	o.attributes[attr.Name] = attr
	return nil
}

// FindAttribute returns the named attribute, or false when absent.
func (o *Operation) FindAttribute(name string) (Attribute, bool) {
	attr, ok := o.attributes[name]
	return attr, ok
}

// Attributes returns all attributes sorted by name for deterministic iteration.
func (o *Operation) Attributes() []Attribute {
	names := make([]string, 0, len(o.attributes))
	for name := range o.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	attrs := make([]Attribute, 0, len(names))
	for _, name := range names {
		attrs = append(attrs, o.attributes[name])
	}
	return attrs
}

// AddAnnotation registers an annotation, rejecting duplicate kinds.
func (o *Operation) AddAnnotation(ann Annotation) error {
	kind := ann.Kind()
	if _, exists := o.annotations[kind]; exists {
		return &ValidationError{
			Operation: o.name,
			Message:   fmt.Sprintf("duplicate annotation %q", kind),
		}
	}
	o.annotations[kind] = ann
	return nil
}

// Annotation returns the annotation of the given kind, or false when absent.
func (o *Operation) Annotation(kind AnnotationKind) (Annotation, bool) {
	ann, ok := o.annotations[kind]
	return ann, ok
}

// Model is the read-only collection of named operations exposed to the
// resolution pipeline and query generation.
type Model struct {
	operations map[string]*Operation
}

// NewModel builds a model from the given operations, rejecting duplicate
// operation names.
func NewModel(operations ...*Operation) (*Model, error) {
	m := &Model{operations: make(map[string]*Operation, len(operations))}
	for _, op := range operations {
		if err := m.AddOperation(op); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddOperation registers an operation, rejecting duplicate names.
func (m *Model) AddOperation(op *Operation) error {
	if _, exists := m.operations[op.name]; exists {
		return &ValidationError{
			Operation: op.name,
			Message:   "duplicate operation",
		}
	}
	m.operations[op.name] = op
	return nil
}

// Operation returns the named operation, or false when absent.
func (m *Model) Operation(name string) (*Operation, bool) {
	op, ok := m.operations[name]
	return op, ok
}
