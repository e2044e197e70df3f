// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mapping

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sqlbatis/sqlbatis/internal/dynsql"
)

// buildDynamicTree parses rawXML (a statement or `<sql>` fragment's inner
// markup, possibly containing `<if>`, `<where>`, `<foreach>`, etc.
// interleaved with SQL text) into a dynsql.Node tree, mirroring
// org.apache.ibatis.builder.xml.XMLScriptBuilder. lookupFragment resolves
// `<include refid="...">` references to already-registered `<sql>`
// fragments (by namespace.id or bare id within the current namespace).
func buildDynamicTree(rawXML string, lookupFragment func(refid string) (string, bool)) (dynsql.Node, error) {
	dec := xml.NewDecoder(strings.NewReader("<root>" + rawXML + "</root>"))
	// advance past the synthetic <root> start element.
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("mapping: %w", err)
	}
	children, err := parseMixedContent(dec, "root", lookupFragment)
	if err != nil {
		return nil, err
	}
	return &dynsql.Mixed{Children: children}, nil
}

// parseMixedContent reads tokens until the EndElement matching stopLocal,
// accumulating CharData as text nodes and StartElements as dynamic-SQL
// nodes.
func parseMixedContent(dec *xml.Decoder, stopLocal string, lookupFragment func(string) (string, bool)) ([]dynsql.Node, error) {
	var nodes []dynsql.Node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nodes, nil
		}
		if err != nil {
			return nil, fmt.Errorf("mapping: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			text := string(t)
			if strings.TrimSpace(text) != "" {
				nodes = append(nodes, &dynsql.TextWithTokens{Text: text})
			}
		case xml.EndElement:
			if t.Name.Local == stopLocal {
				return nodes, nil
			}
		case xml.StartElement:
			node, err := parseElement(dec, t, lookupFragment)
			if err != nil {
				return nil, err
			}
			if node != nil {
				nodes = append(nodes, node)
			}
		}
	}
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// parseElement dispatches on a dynamic-SQL tag name, consuming through its
// matching EndElement.
func parseElement(dec *xml.Decoder, t xml.StartElement, lookupFragment func(string) (string, bool)) (dynsql.Node, error) {
	switch t.Name.Local {
	case "if":
		children, err := parseMixedContent(dec, "if", lookupFragment)
		if err != nil {
			return nil, err
		}
		return &dynsql.If{Test: attr(t, "test"), Contents: &dynsql.Mixed{Children: children}}, nil

	case "where":
		children, err := parseMixedContent(dec, "where", lookupFragment)
		if err != nil {
			return nil, err
		}
		return dynsql.Where(&dynsql.Mixed{Children: children}), nil

	case "set":
		children, err := parseMixedContent(dec, "set", lookupFragment)
		if err != nil {
			return nil, err
		}
		return dynsql.Set(&dynsql.Mixed{Children: children}), nil

	case "trim":
		children, err := parseMixedContent(dec, "trim", lookupFragment)
		if err != nil {
			return nil, err
		}
		return &dynsql.Trim{
			Contents:        &dynsql.Mixed{Children: children},
			Prefix:          attr(t, "prefix"),
			Suffix:          attr(t, "suffix"),
			PrefixOverrides: splitPipe(attr(t, "prefixOverrides")),
			SuffixOverrides: splitPipe(attr(t, "suffixOverrides")),
		}, nil

	case "foreach":
		children, err := parseMixedContent(dec, "foreach", lookupFragment)
		if err != nil {
			return nil, err
		}
		return &dynsql.ForEach{
			Contents:   &dynsql.Mixed{Children: children},
			Collection: attr(t, "collection"),
			Item:       attr(t, "item"),
			Index:      attr(t, "index"),
			Open:       attr(t, "open"),
			Close:      attr(t, "close"),
			Separator:  attr(t, "separator"),
		}, nil

	case "choose":
		return parseChoose(dec, lookupFragment)

	case "bind":
		if err := skipElement(dec); err != nil {
			return nil, err
		}
		return &dynsql.VarDecl{Name: attr(t, "name"), Expression: attr(t, "value")}, nil

	case "include":
		return parseInclude(dec, t, lookupFragment)

	case "selectKey":
		// handled separately by the statement compiler; contributes no SQL.
		return nil, skipElement(dec)

	default:
		// unknown tag: treat its text content as plain SQL, matching the
		// teacher's tolerance for markup it doesn't specifically recognize.
		children, err := parseMixedContent(dec, t.Name.Local, lookupFragment)
		if err != nil {
			return nil, err
		}
		return &dynsql.Mixed{Children: children}, nil
	}
}

func parseChoose(dec *xml.Decoder, lookupFragment func(string) (string, bool)) (dynsql.Node, error) {
	var whens []*dynsql.If
	var otherwise dynsql.Node
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("mapping: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "when":
				children, err := parseMixedContent(dec, "when", lookupFragment)
				if err != nil {
					return nil, err
				}
				whens = append(whens, &dynsql.If{Test: attr(t, "test"), Contents: &dynsql.Mixed{Children: children}})
			case "otherwise":
				children, err := parseMixedContent(dec, "otherwise", lookupFragment)
				if err != nil {
					return nil, err
				}
				otherwise = &dynsql.Mixed{Children: children}
			default:
				if err := skipElement(dec); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "choose" {
				return &dynsql.Choose{Whens: whens, Otherwise: otherwise}, nil
			}
		}
	}
}

// parseInclude resolves `<include refid="...">`, recursively building the
// referenced fragment's own dynamic tree and binding any `<property
// name=".." value="..">` children as literal substitutions visible to
// `${...}` tokens inside the fragment (spec.md §4.10 step 5 "reusable SQL
// fragments").
func parseInclude(dec *xml.Decoder, t xml.StartElement, lookupFragment func(string) (string, bool)) (dynsql.Node, error) {
	refid := attr(t, "refid")
	var props []*dynsql.Literal
	var children []dynsql.Node
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("mapping: %w", err)
		}
		switch pt := tok.(type) {
		case xml.StartElement:
			if pt.Name.Local == "property" {
				props = append(props, &dynsql.Literal{Name: attr(pt, "name"), Value: attr(pt, "value")})
				if err := skipElement(dec); err != nil {
					return nil, err
				}
			} else {
				if err := skipElement(dec); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if pt.Name.Local == "include" {
				fragXML, ok := lookupFragment(refid)
				if !ok {
					return nil, fmt.Errorf("mapping: <include refid=%q>: fragment not found", refid)
				}
				tree, err := buildDynamicTree(fragXML, lookupFragment)
				if err != nil {
					return nil, err
				}
				for _, p := range props {
					children = append(children, p)
				}
				children = append(children, tree)
				return &dynsql.Mixed{Children: children}, nil
			}
		}
	}
}

// skipElement consumes tokens until the matching EndElement for the
// StartElement just read, discarding everything in between.
func skipElement(dec *xml.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("mapping: %w", err)
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

func splitPipe(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
