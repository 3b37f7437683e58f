package scraper

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-products/frontier"
)

// document adapts a goquery selection to the frontier's DOM queries.
type document struct {
	root *goquery.Selection
}

func newDocument(root *goquery.Selection) *document {
	return &document{root: root}
}

func (d *document) ProductCards(selector string) []frontier.Card {
	var cards []frontier.Card
	d.root.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		cards = append(cards, card{sel: sel})
	})
	return cards
}

type card struct {
	sel *goquery.Selection
}

// FirstAnchorHref prefers the card's own href when the card is an anchor.
func (c card) FirstAnchorHref(linkSelector string) (string, bool) {
	if goquery.NodeName(c.sel) == "a" {
		if href, ok := c.sel.Attr("href"); ok {
			return href, true
		}
	}
	return c.sel.Find(linkSelector).First().Attr("href")
}

// collectLinks returns the href of every element matched by selector. A
// matched element without href contributes the anchors it contains, so a
// pagination container selector works as well as an anchor selector.
func collectLinks(root *goquery.Selection, selector string) []string {
	var links []string
	root.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			links = append(links, href)
			return
		}
		sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			links = append(links, href)
		})
	})
	return links
}
