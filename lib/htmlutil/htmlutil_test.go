package htmlutil

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestGetAnchors(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<a href="/v2/quests/a"><h2>A</h2></a>
		<a>no href</a>
		<a href="/about">About</a>
		<a href="/v2/quests/b"><span>B <b>bold</b></span></a>
	`))
	require.NoError(t, err)

	anchors := GetAnchors(context.Background(), doc.Find("a"), "/v2/quests/")
	require.Len(t, anchors, 2)
	require.Equal(t, "/v2/quests/a", anchors[0].Href)
	require.Equal(t, "/v2/quests/b", anchors[1].Href)
	require.Equal(t, "B bold", GetText(anchors[1].Node))
}

func TestSelectionText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div><h2>
		Quest  One
	</h2></div>`))
	require.NoError(t, err)

	require.Equal(t, "Quest  One", SelectionText(doc.Find("h2")))
	require.Equal(t, "", SelectionText(doc.Find("h3")))
}
