// Package dom is a small element tree with focus tracking. It models the
// parts of a page the player plugins read and mutate: attributes, classes,
// tab order and which element holds keyboard focus.
package dom

import (
	"strconv"
	"strings"
	"sync"

	"github.com/openedx/edx-platform-sub027/internal/events"
)

// Document owns a tree of elements and tracks the focused one.
type Document struct {
	mu     sync.Mutex
	root   *Element
	active *Element
}

// Element is a node in a Document. Each element has its own event bus.
type Element struct {
	doc      *Document
	id       string
	parent   *Element
	children []*Element
	attrs    map[string]string
	classes  []string
	bus      *events.Bus
}

// NewDocument returns a document with an empty body.
func NewDocument() *Document {
	d := &Document{}
	d.root = d.CreateElement("body")
	return d
}

// Body returns the root element.
func (d *Document) Body() *Element { return d.root }

// CreateElement returns a detached element with the given id and classes.
func (d *Document) CreateElement(id string, classes ...string) *Element {
	return &Element{
		doc:     d,
		id:      id,
		attrs:   make(map[string]string),
		classes: append([]string(nil), classes...),
		bus:     events.NewBus(events.WithName(id)),
	}
}

// ActiveElement returns the focused element, or nil.
func (d *Document) ActiveElement() *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// ByClass returns every attached element carrying class, in document order.
func (d *Document) ByClass(class string) []*Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Element
	var walk func(*Element)
	walk = func(e *Element) {
		if e.hasClassLocked(class) {
			out = append(out, e)
		}
		for _, c := range e.children {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

// Document returns the document that created e.
func (e *Element) Document() *Document { return e.doc }

// ID returns the element id.
func (e *Element) ID() string { return e.id }

// Events returns the element's event bus.
func (e *Element) Events() *events.Bus { return e.bus }

// Parent returns the parent element, or nil when detached.
func (e *Element) Parent() *Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.parent
}

// Children returns a copy of the child list.
func (e *Element) Children() []*Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return append([]*Element(nil), e.children...)
}

// Append adds child as the last child of e.
func (e *Element) Append(child *Element) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	detachLocked(child)
	child.parent = e
	e.children = append(e.children, child)
}

// Prepend adds child as the first child of e.
func (e *Element) Prepend(child *Element) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	detachLocked(child)
	child.parent = e
	e.children = append([]*Element{child}, e.children...)
}

// Remove detaches e from its parent.
func (e *Element) Remove() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	detachLocked(e)
}

func detachLocked(e *Element) {
	p := e.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == e {
			p.children = append(p.children[:i:i], p.children[i+1:]...)
			break
		}
	}
	e.parent = nil
}

// Contains reports whether other is e or one of its descendants.
func (e *Element) Contains(other *Element) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for n := other; n != nil; n = n.parent {
		if n == e {
			return true
		}
	}
	return false
}

// Attr returns the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	v, ok := e.attrs[name]
	return v, ok
}

// SetAttr sets the named attribute.
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.attrs[name] = value
}

// TabIndex returns the tabindex attribute, or 0 when unset or invalid.
func (e *Element) TabIndex() int {
	v, ok := e.Attr("tabindex")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// SetTabIndex sets the tabindex attribute.
func (e *Element) SetTabIndex(n int) {
	e.SetAttr("tabindex", strconv.Itoa(n))
}

// HasClass reports whether e carries class.
func (e *Element) HasClass(class string) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.hasClassLocked(class)
}

func (e *Element) hasClassLocked(class string) bool {
	for _, c := range e.classes {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass adds class if missing.
func (e *Element) AddClass(class string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if !e.hasClassLocked(class) {
		e.classes = append(e.classes, class)
	}
}

// RemoveClass removes class if present.
func (e *Element) RemoveClass(class string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	out := e.classes[:0:0]
	for _, c := range e.classes {
		if c != class {
			out = append(out, c)
		}
	}
	e.classes = out
}

// ClassName returns the space separated class list.
func (e *Element) ClassName() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return strings.Join(e.classes, " ")
}

// Focus moves keyboard focus to e. The previously focused element receives
// blur first, then e receives focus. Focusing the focused element does
// nothing.
func (e *Element) Focus() {
	e.doc.mu.Lock()
	prev := e.doc.active
	if prev == e {
		e.doc.mu.Unlock()
		return
	}
	e.doc.active = e
	e.doc.mu.Unlock()

	if prev != nil {
		prev.bus.Trigger(events.Blur, nil)
	}
	e.bus.Trigger(events.Focus, nil)
}

// Blur removes focus from e if it holds it.
func (e *Element) Blur() {
	e.doc.mu.Lock()
	if e.doc.active != e {
		e.doc.mu.Unlock()
		return
	}
	e.doc.active = nil
	e.doc.mu.Unlock()
	e.bus.Trigger(events.Blur, nil)
}

// Click dispatches a click carrying payload.
func (e *Element) Click(payload any) {
	e.bus.Trigger(events.Click, payload)
}
