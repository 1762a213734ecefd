package feed

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

var (
	urlPattern   = regexp.MustCompile(`https?://[^\s"'<>]+`)
	itemPattern  = regexp.MustCompile(`(?s)<item(?:\s[^>]*)?>.*?</item>`)
	entryPattern = regexp.MustCompile(`(?s)<entry(?:\s[^>]*)?>.*?</entry>`)
)

var imageSuffixes = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses a feed payload into normalized items. A malformed document is
// not fatal as long as at least one entry can be salvaged; it fails only
// when no feed root and no parseable entry can be located at all.
func (p *Parser) Run(data []byte) ([]Item, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return p.salvage(data, err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, raw := range parsed.Items {
		item := p.normalizeItem(raw)
		if item.Title == "" && item.Link == "" {
			slog.Debug("Skipping entry without title and link")
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

// salvage recovers individual well-formed entries from a document that
// failed to parse as a whole. Entries that individually fail are skipped.
func (p *Parser) salvage(data []byte, parseErr error) ([]Item, error) {
	blocks := itemPattern.FindAll(data, -1)
	envelope := "<rss version=\"2.0\"><channel>%s</channel></rss>"

	if len(blocks) == 0 {
		blocks = entryPattern.FindAll(data, -1)
		envelope = "<feed xmlns=\"http://www.w3.org/2005/Atom\">%s</feed>"
	}

	if len(blocks) == 0 {
		return nil, fmt.Errorf("unable to locate feed root or entries: %w", parseErr)
	}

	var items []Item
	skipped := 0
	for _, block := range blocks {
		doc := fmt.Sprintf(envelope, block)
		parsed, err := p.gofeedParser.Parse(strings.NewReader(doc))
		if err != nil || len(parsed.Items) == 0 {
			skipped++
			slog.Warn("Skipping malformed feed entry", "error", err)
			continue
		}

		item := p.normalizeItem(parsed.Items[0])
		if item.Title == "" && item.Link == "" {
			skipped++
			continue
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no parseable entries in malformed document: %w", parseErr)
	}

	slog.Warn("Recovered entries from malformed document", "recovered", len(items), "skipped", skipped)
	return items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	normalized := Item{
		Title:   strings.TrimSpace(item.Title),
		Link:    strings.TrimSpace(item.Link),
		Summary: stripHTML(cmp.Or(item.Description, item.Content)),
	}

	if normalized.Link == "" {
		normalized.Link = p.fallbackLink(item)
	}

	normalized.ID = p.deriveID(item, normalized.Link)
	normalized.ImageURL = p.extractImageURL(item, normalized.Link)

	if item.PublishedParsed != nil {
		normalized.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		normalized.PublishedAt = item.UpdatedParsed
	}

	return normalized
}

// deriveID builds a stable item identifier: guid, then link, then a hash
// of title and raw published date. Identical input bytes always yield the
// same ID so deduplication holds across hub redeliveries.
func (p *Parser) deriveID(item *gofeed.Item, link string) string {
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return guid
	}
	if link != "" {
		return link
	}

	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", item.Title, item.Published)))
	return hex.EncodeToString(hash[:])
}

// fallbackLink recovers a link from a URL-shaped guid or the first URL
// found in the entry's text.
func (p *Parser) fallbackLink(item *gofeed.Item) string {
	if guid := strings.TrimSpace(item.GUID); strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://") {
		return guid
	}

	for _, text := range []string{item.Description, item.Content} {
		if match := urlPattern.FindString(text); match != "" {
			return match
		}
	}

	return ""
}

func (p *Parser) extractImageURL(item *gofeed.Item, link string) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	for _, enclosure := range item.Enclosures {
		if enclosure == nil {
			continue
		}
		if strings.HasPrefix(enclosure.Type, "image/") || hasImageSuffix(enclosure.URL) {
			return enclosure.URL
		}
	}

	for _, html := range []string{item.Content, item.Description} {
		if src := firstImgSrc(html); src != "" {
			return src
		}
	}

	if hasImageSuffix(link) {
		return link
	}

	return ""
}

func hasImageSuffix(url string) bool {
	lowered := strings.ToLower(url)
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(lowered, suffix) {
			return true
		}
	}
	return false
}

func firstImgSrc(html string) string {
	if !strings.Contains(html, "<img") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	src, _ := doc.Find("img").First().Attr("src")
	return src
}

// stripHTML converts an HTML fragment to collapsed plain text.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	text := html
	if strings.Contains(html, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			text = doc.Text()
		}
	}

	return strings.Join(strings.Fields(text), " ")
}
