package app

import (
	"fmt"
	"image"
	"maps"

	"github.com/google/uuid"
)

// Element is an immutable addressable entity. Its identity is assigned once
// at construction and survives updates: "changing" an element means storing a
// new value under the same ID.
type Element struct {
	// ID is the element's stable identity
	ID uuid.UUID

	// Bounds are the optional spatial bounds used for pointer hit-testing
	Bounds *image.Rectangle

	// Props carries application-specific payload
	Props map[string]any
}

// NewElement creates an element with a fresh identity and no bounds.
func NewElement() Element {
	return Element{ID: uuid.New()}
}

// WithBounds returns a copy of the element with the given bounds.
func (e Element) WithBounds(r image.Rectangle) Element {
	e.Bounds = &r
	return e
}

// WithProp returns a copy of the element with one prop set.
func (e Element) WithProp(key string, value any) Element {
	props := maps.Clone(e.Props)
	if props == nil {
		props = map[string]any{}
	}
	props[key] = value
	e.Props = props
	return e
}

// HitTest reports whether p falls inside the element's bounds. Elements
// without bounds never match.
func (e Element) HitTest(p image.Point) bool {
	return e.Bounds != nil && p.In(*e.Bounds)
}

// Elements is the identity-keyed element collection held in the application
// state. All methods are copy-on-write.
type Elements map[uuid.UUID]Element

// Insert adds a new element. Inserting an identity that already exists is an
// error; use Update to replace.
func (m Elements) Insert(e Element) (Elements, error) {
	if _, ok := m[e.ID]; ok {
		return nil, fmt.Errorf("element %s already exists", e.ID)
	}

	next := maps.Clone(m)
	if next == nil {
		next = Elements{}
	}
	next[e.ID] = e
	return next, nil
}

// Update replaces the value stored under an existing identity.
func (m Elements) Update(e Element) (Elements, error) {
	if _, ok := m[e.ID]; !ok {
		return nil, fmt.Errorf("element %s does not exist", e.ID)
	}

	next := maps.Clone(m)
	next[e.ID] = e
	return next, nil
}

// Remove deletes the element's identity. Removing an absent element is a
// no-op, not an error.
func (m Elements) Remove(e Element) Elements {
	if _, ok := m[e.ID]; !ok {
		return m
	}

	next := maps.Clone(m)
	delete(next, e.ID)
	return next
}

// Get looks up an element by identity.
func (m Elements) Get(id uuid.UUID) (Element, bool) {
	e, ok := m[id]
	return e, ok
}
