// Package diff fetches revision comparisons and extracts structured
// fragments from MediaWiki diff HTML.
package diff

import (
	"strings"

	"golang.org/x/net/html"
)

// Fragment is one contiguous added/removed text unit, carrying the most
// recent context line seen before it.
type Fragment struct {
	AddedText   string
	RemovedText string
	Context     string
}

type cell struct {
	class string
	text  string
}

// Parse walks the table rows of a MediaWiki diff fragment. A row
// contributes a Fragment when it carries an added or removed line; a
// context row updates the running context for subsequent fragments.
// Inline markup inside cells is flattened to plain text. Malformed or
// empty input yields zero fragments, never an error.
func Parse(diffHTML string) []Fragment {
	if strings.TrimSpace(diffHTML) == "" {
		return nil
	}
	// The compare API returns bare <tr> rows; without an enclosing
	// table the HTML5 parser would foster-parent them away.
	root, err := html.Parse(strings.NewReader("<table>" + diffHTML + "</table>"))
	if err != nil {
		return nil
	}

	var fragments []Fragment
	lastContext := ""

	for _, row := range collectRows(root) {
		var contextInRow *string
		addedText := ""
		removedText := ""

		for _, c := range row {
			switch {
			case strings.Contains(c.class, "diff-context") && c.text != "":
				text := c.text
				contextInRow = &text
			case strings.Contains(c.class, "diff-addedline"):
				addedText = c.text
			case strings.Contains(c.class, "diff-deletedline"):
				removedText = c.text
			}
		}

		if contextInRow != nil {
			lastContext = *contextInRow
		}
		if addedText != "" || removedText != "" {
			fragments = append(fragments, Fragment{
				AddedText:   addedText,
				RemovedText: removedText,
				Context:     lastContext,
			})
		}
	}
	return fragments
}

// collectRows gathers every <tr> in document order, each as its list of
// <td> cells.
func collectRows(node *html.Node) [][]cell {
	var rows [][]cell
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			rows = append(rows, collectCells(n))
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(node)
	return rows
}

func collectCells(row *html.Node) []cell {
	var cells []cell
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "td" {
			cells = append(cells, cell{
				class: attr(n, "class"),
				text:  collapseSpace(textContent(n)),
			})
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for child := row.FirstChild; child != nil; child = child.NextSibling {
		walk(child)
	}
	return cells
}

func textContent(node *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(node)
	return sb.String()
}

func attr(node *html.Node, name string) string {
	for _, a := range node.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func collapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
