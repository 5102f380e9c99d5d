package nfe

import (
	"strings"

	"github.com/beevik/etree"
)

// Prefixes tried after the bare element name. Issuing systems disagree on
// whether the portalfiscal namespace is declared as default or prefixed.
var namespacePrefixes = []string{"", "nfe:", "ns:"}

// node wraps an element and resolves fields below it by qualified name
type node struct {
	el *etree.Element
}

// candidates expands names into the ordered lookup list: each name bare,
// then with every prefix variant
func candidates(names ...string) []string {
	out := make([]string, 0, len(names)*len(namespacePrefixes))
	for _, name := range names {
		for _, prefix := range namespacePrefixes {
			out = append(out, prefix+name)
		}
	}
	return out
}

// text returns the trimmed text content of the first element matching one
// of the candidate names, or "" when none yields text
func (n node) text(names ...string) string {
	if n.el == nil {
		return ""
	}
	for _, qualified := range candidates(names...) {
		if el := findFirst(n.el, qualified); el != nil {
			if s := strings.TrimSpace(textContent(el)); s != "" {
				return s
			}
		}
	}
	return ""
}

// child returns the first descendant matching one of the names
func (n node) child(names ...string) node {
	if n.el == nil {
		return node{}
	}
	for _, qualified := range candidates(names...) {
		if el := findFirst(n.el, qualified); el != nil {
			return node{el: el}
		}
	}
	return node{}
}

// all returns every descendant for the first candidate name with matches
func (n node) all(names ...string) []node {
	if n.el == nil {
		return nil
	}
	for _, qualified := range candidates(names...) {
		var found []node
		collect(n.el, qualified, &found)
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

func (n node) attr(key string) string {
	if n.el == nil {
		return ""
	}
	return strings.TrimSpace(n.el.SelectAttrValue(key, ""))
}

// or returns fallback when n matched nothing
func (n node) or(fallback node) node {
	if n.el == nil {
		return fallback
	}
	return n
}

func (n node) exists() bool {
	return n.el != nil
}

// findFirst walks descendants in document order
func findFirst(el *etree.Element, qualified string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.FullTag() == qualified {
			return c
		}
		if found := findFirst(c, qualified); found != nil {
			return found
		}
	}
	return nil
}

func collect(el *etree.Element, qualified string, out *[]node) {
	for _, c := range el.ChildElements() {
		if c.FullTag() == qualified {
			*out = append(*out, node{el: c})
			continue
		}
		collect(c, qualified, out)
	}
}

// textContent concatenates all character data below el
func textContent(el *etree.Element) string {
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				b.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(el)
	return b.String()
}
