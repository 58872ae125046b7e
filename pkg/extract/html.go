package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/Sternrassler/patent-harvester/pkg/document"
	"github.com/abadojack/whatlanggo"
	"golang.org/x/net/html"
)

// Selectors of the patent page sections.
const (
	titleSelector       = "span[itemprop=title]"
	abstractSelector    = "section[itemprop=abstract]"
	claimsSelector      = "section[itemprop=claims]"
	descriptionSelector = "section[itemprop=description]"
	conceptSelector     = "[itemprop=concept] [itemprop=name]"
)

// HTMLFormat reads a rendered patent page.
type HTMLFormat struct {
	// RequireLang, when set, drops sections whose text is reliably detected
	// as another language. ISO 639-3 code, e.g. "eng".
	RequireLang string
}

// Name implements Format.
func (HTMLFormat) Name() string { return "html" }

// Decode implements Format.
func (HTMLFormat) Decode(body []byte) (any, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode html document: %w", err)
	}
	return doc, nil
}

// Sections implements Format.
func (f HTMLFormat) Sections(payload any) ([]document.Section, error) {
	doc, ok := payload.(*goquery.Document)
	if !ok || doc == nil {
		return nil, fmt.Errorf("%w: unexpected payload %T", ErrMalformedDocument, payload)
	}

	title := doc.Find(titleSelector).First()
	abstract := doc.Find(abstractSelector).First()
	claims := doc.Find(claimsSelector).First()
	description := doc.Find(descriptionSelector).First()

	if title.Length()+abstract.Length()+claims.Length()+description.Length() == 0 {
		return nil, fmt.Errorf("%w: no patent sections on page", ErrMalformedDocument)
	}

	var concepts []document.Annotation
	doc.Find(conceptSelector).Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			concepts = append(concepts, document.Annotation{Name: name})
		}
	})

	sections := []document.Section{
		{Name: document.SectionTitle, Text: strings.TrimSpace(title.Text())},
		{Name: document.SectionAbstract, Text: strings.TrimSpace(abstract.Text())},
		{Name: document.SectionClaims, Text: textLines(claims)},
		{Name: document.SectionDescription, Text: textLines(description), Annotations: concepts},
	}

	if f.RequireLang != "" {
		for i := range sections {
			if !f.inLanguage(sections[i].Text) {
				sections[i].Text = ""
				sections[i].Annotations = nil
			}
		}
	}
	return sections, nil
}

// inLanguage reports false only when text is reliably detected as a language
// other than RequireLang.
func (f HTMLFormat) inLanguage(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	info := whatlanggo.Detect(text)
	return !info.IsReliable() || info.Lang.Iso6393() == f.RequireLang
}

// textLines joins the trimmed, non-empty text nodes under s with newlines.
func textLines(s *goquery.Selection) string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if line := strings.TrimSpace(n.Data); line != "" {
				lines = append(lines, line)
			}
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n")
}
