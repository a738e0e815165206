package extraction

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/williampepple1/scrapebot/pkg/models"
)

// Func extracts structured records from a rendered page. A nil return
// means the function produced nothing, which callers treat as null.
type Func func(doc *goquery.Document) []models.Record

// Library holds the extraction functions known by name
type Library struct {
	funcs map[string]Func
}

// NewLibrary creates an empty library
func NewLibrary() *Library {
	return &Library{funcs: make(map[string]Func)}
}

// Default returns a library with the built-in extractors
func Default() *Library {
	lib := NewLibrary()
	lib.Register("extractGoogleResults", LinkList("h3.r a"))
	lib.Register("extractDuckDuckGoResults", LinkList("#links h2 > a.result__a"))
	lib.Register("extractBingResults", LinkList("ol#b_results > li.b_algo h2 a"))
	lib.Register("extractTweets", Tweets)
	return lib
}

// Register binds name to fn, replacing any earlier binding
func (l *Library) Register(name string, fn Func) {
	l.funcs[name] = fn
}

// Lookup returns the function bound to name
func (l *Library) Lookup(name string) (Func, bool) {
	fn, ok := l.funcs[name]
	return fn, ok
}

// Names returns the registered names in order
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.funcs))
	for name := range l.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LinkList returns a Func collecting the text and href of every anchor
// matched by selector, numbered from 1 in document order.
func LinkList(selector string) Func {
	return func(doc *goquery.Document) []models.Record {
		if doc == nil {
			return nil
		}
		records := []models.Record{}
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			records = append(records, models.Record{
				"text":     strings.TrimSpace(s.Text()),
				"link":     href,
				"position": i + 1,
			})
		})
		return records
	}
}

// Tweets extracts the non-promoted tweets of a timeline
func Tweets(doc *goquery.Document) []models.Record {
	if doc == nil {
		return nil
	}
	records := []models.Record{}
	doc.Find("div.tweet:not(.promoted-tweet) .content").Each(func(i int, s *goquery.Selection) {
		link, _ := s.Find(".stream-item-header .time a").First().Attr("href")
		author, _ := s.Find(".stream-item-header > a").First().Attr("href")
		records = append(records, models.Record{
			"text":     strings.TrimSpace(s.Find(".tweet-text").First().Text()),
			"link":     link,
			"author":   author,
			"position": i + 1,
		})
	})
	return records
}
