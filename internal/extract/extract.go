// Package extract turns rendered search page markup into quest records.
package extract

import (
	"context"
	"questwatch/internal/quest"
	"questwatch/lib/htmlutil"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("questwatch/internal/extract")

type Options struct {
	// PathMarker must be contained in an anchor's href for it to count as a listing.
	PathMarker string
	// HeadingSelector is looked up inside each listing anchor for the title.
	HeadingSelector string
}

type Extractor struct {
	marker  string
	heading string
}

func New(opts Options) Extractor {
	if opts.PathMarker == "" {
		opts.PathMarker = quest.DefaultPathMarker
	}
	if opts.HeadingSelector == "" {
		opts.HeadingSelector = "h2"
	}
	return Extractor{marker: opts.PathMarker, heading: opts.HeadingSelector}
}

// Extract returns the listing records in document order. Anchors without a
// heading title or without a trailing id segment are dropped, duplicates are
// kept. Markup that cannot be parsed yields no records.
func (e Extractor) Extract(ctx context.Context, markup string) []quest.Record {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		span.RecordError(err)
		return nil
	}

	records := []quest.Record{}
	dropped := 0
	for _, a := range htmlutil.GetAnchors(ctx, doc.Find("a"), e.marker) {
		title := htmlutil.SelectionText(goquery.NewDocumentFromNode(a.Node).Find(e.heading))
		r := quest.Record{
			ID:    quest.IDFromHref(a.Href),
			Title: title,
			Href:  a.Href,
		}
		if !r.Valid() {
			dropped++
			continue
		}
		records = append(records, r)
	}

	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("dropped", dropped),
	)
	return records
}
