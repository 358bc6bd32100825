package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jarcoal/httpmock"
)

const testBaseURL = "http://example.test"

type testItem struct {
	id       int
	noTitle  bool
	category string
}

func pageURL(page int) string {
	return fmt.Sprintf("%s/catalogue/page-%d.html", testBaseURL, page)
}

func detailURL(id int) string {
	return fmt.Sprintf("%s/catalogue/book-%d_%d/index.html", testBaseURL, id, id)
}

func thumbURL(id int) string {
	return fmt.Sprintf("%s/media/cache/book-%d.jpg", testBaseURL, id)
}

func buildCatalogPage(items ...testItem) string {
	var b strings.Builder
	b.WriteString(`<html><body><section><ol class="row">`)
	for _, it := range items {
		b.WriteString(`<li><article class="product_pod">`)
		fmt.Fprintf(&b, `<div class="image_container"><a href="book-%d_%d/index.html"><img src="../media/cache/book-%d.jpg" class="thumbnail"></a></div>`, it.id, it.id, it.id)
		b.WriteString(`<p class="star-rating Two"></p>`)
		if it.noTitle {
			fmt.Fprintf(&b, `<h3><a href="book-%d_%d/index.html">Book %d</a></h3>`, it.id, it.id, it.id)
		} else {
			fmt.Fprintf(&b, `<h3><a href="book-%d_%d/index.html" title="Book %d">Book %d</a></h3>`, it.id, it.id, it.id, it.id)
		}
		fmt.Fprintf(&b, `<div class="product_price"><p class="price_color">£%d.00</p></div>`, it.id)
		b.WriteString(`</article></li>`)
	}
	b.WriteString(`</ol></section></body></html>`)
	return b.String()
}

func buildDetailPage(id int, category string, withDescription bool) string {
	if category == "" {
		category = "Fiction"
	}
	var b strings.Builder
	b.WriteString(`<html><body><ul class="breadcrumb">`)
	b.WriteString(`<li><a href="../../index.html">Home</a></li>`)
	b.WriteString(`<li><a href="../category/books_1/index.html">Books</a></li>`)
	fmt.Fprintf(&b, `<li><a href="../category/books/x_2/index.html"> %s </a></li>`, category)
	b.WriteString(`</ul><article class="product_page"><div class="row"><div class="col-sm-6 product_main">`)
	fmt.Fprintf(&b, `<h1>Detail Title %d</h1><p class="price_color">£99.%02d</p>`, id, id)
	b.WriteString(`<p class="instock availability">  In stock (5 available)  </p>`)
	b.WriteString(`<p class="star-rating Four"></p></div></div>`)
	if withDescription {
		fmt.Fprintf(&b, `<div id="product_description" class="sub-header"><h2>Product Description</h2></div><p> Description of book %d. </p>`, id)
	}
	b.WriteString(`</article></body></html>`)
	return b.String()
}

// fakeFetcher serves fixed bodies and 404s everything else.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	events    *[]string
	calls     []string
}

func newFakeFetcher(events *[]string) *fakeFetcher {
	return &fakeFetcher{responses: make(map[string]string), events: events}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.events != nil {
		*f.events = append(*f.events, "fetch "+url)
	}
	body, ok := f.responses[url]
	if !ok {
		return nil, ErrNotFound{Err: errors.New("http status 404")}
	}
	return []byte(body), nil
}

func (f *fakeFetcher) called(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

// recordingThumbnails pretends every download succeeds.
type recordingThumbnails struct {
	events *[]string
	titles []string
	err    error
}

func (r *recordingThumbnails) Retrieve(_ context.Context, thumbnailURL, title string) (string, error) {
	if r.events != nil {
		*r.events = append(*r.events, "thumb "+thumbnailURL)
	}
	if r.err != nil {
		return "", r.err
	}
	r.titles = append(r.titles, title)
	return "thumbnails/" + title + ".jpg", nil
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

func imageResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "image/jpeg")
	return httpmock.ResponderFromResponse(resp)
}
