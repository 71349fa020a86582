package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// parseHTML extracts the first <table> from an HTML fragment. Tables using
// rowspan/colspan cannot be mapped to a rectangular matrix without guessing
// which cell a value belongs to, so they are rejected.
func parseHTML(data []byte, opts Options) (*Table, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := findFirst(doc, "table")
	if table == nil {
		return nil, fmt.Errorf("%w: no table element found", ErrUnsupportedFile)
	}

	var rows [][]string
	var walkRows func(n *html.Node) error
	walkRows = func(n *html.Node) error {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "tr" {
				row, err := extractCells(c)
				if err != nil {
					return err
				}
				rows = append(rows, row)
				continue
			}
			if err := walkRows(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walkRows(table); err != nil {
		return nil, err
	}

	return finishTable(rows, opts, 0, nil)
}

func extractCells(tr *html.Node) ([]string, error) {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
			continue
		}
		for _, attr := range c.Attr {
			key := strings.ToLower(attr.Key)
			if (key == "rowspan" || key == "colspan") && strings.TrimSpace(attr.Val) != "1" {
				return nil, fmt.Errorf("%w: %s=%q", ErrComplexTable, key, attr.Val)
			}
		}
		cells = append(cells, strings.TrimSpace(nodeText(c)))
	}
	return cells, nil
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
