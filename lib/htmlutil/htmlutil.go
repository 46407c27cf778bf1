package htmlutil

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("questwatch/lib/htmlutil")

// GetText concatenates every text node below node in document order.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, buffer)
	}
}

// SelectionText is GetText over every node of a selection, trimmed of
// surrounding whitespace.
func SelectionText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		b.WriteString(GetText(n))
	}
	return strings.TrimSpace(b.String())
}

// Attr returns the value of the attribute key on node.
func Attr(node *html.Node, key string) (string, bool) {
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

type Anchor struct {
	// Node is kept so callers can look for nested elements.
	Node *html.Node
	Href string
}

// GetAnchors returns every anchor in sel whose href contains marker, in
// document order. Anchors without an href are skipped.
func GetAnchors(ctx context.Context, sel *goquery.Selection, marker string) []Anchor {
	_, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href, ok := Attr(n, "href")
		if !ok || !strings.Contains(href, marker) {
			continue
		}
		anchors = append(anchors, Anchor{Node: n, Href: href})
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("href", href),
		))
	}
	return anchors
}
