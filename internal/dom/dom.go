// Package dom is a small document model over golang.org/x/net/html: parse a
// host page, look elements up by id, create and append elements, set text
// content and serialize the result.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNotFound is returned when no element carries the requested id.
var ErrNotFound = errors.New("dom: element not found")

// Document owns a parsed HTML tree.
type Document struct {
	root *html.Node
}

// Element is a handle to an element node inside a Document.
type Element struct {
	node *html.Node
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseBytes is Parse over an in-memory page.
func ParseBytes(b []byte) (*Document, error) {
	return Parse(bytes.NewReader(b))
}

// ElementByID returns the first element whose id attribute equals id.
func (d *Document) ElementByID(id string) (*Element, error) {
	if n := findByID(d.root, id); n != nil {
		return &Element{node: n}, nil
	}
	return nil, fmt.Errorf("%w: #%s", ErrNotFound, id)
}

// CreateElement returns a detached element owned by the caller until it is
// appended somewhere.
func (d *Document) CreateElement(tag string) *Element {
	tag = strings.ToLower(tag)
	return &Element{node: &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}}
}

// Render serializes the whole document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// Bytes is Render into a buffer.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Tag is the lower-case element name.
func (e *Element) Tag() string {
	return e.node.Data
}

// Attached reports whether the element has a parent.
func (e *Element) Attached() bool {
	return e.node.Parent != nil
}

// AppendChild moves child under e as its last child. Appending an element
// that already has a parent is an error.
func (e *Element) AppendChild(child *Element) error {
	if child.node.Parent != nil {
		return errors.New("dom: element already attached")
	}
	e.node.AppendChild(child.node)
	return nil
}

// SetText replaces all children with a single text node. Markup in s is
// stored as text, not parsed.
func (e *Element) SetText(s string) {
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	if s == "" {
		return
	}
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: s})
}

// Text concatenates all descendant text nodes.
func (e *Element) Text() string {
	var b strings.Builder
	collectText(e.node, &b)
	return b.String()
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(key, val string) {
	for i, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == key {
			e.node.Attr[i].Val = val
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: key, Val: val})
}

// Attr returns an attribute value and whether it was present.
func (e *Element) Attr(key string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Children returns the direct element children, optionally filtered by tag.
func (e *Element) Children(tag string) []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if tag != "" && c.Data != tag {
			continue
		}
		out = append(out, &Element{node: c})
	}
	return out
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Namespace == "" && a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
