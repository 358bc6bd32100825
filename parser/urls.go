package parser

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolver turns the relative links found in catalog markup into absolute URLs.
type Resolver struct {
	site        *url.URL
	product     *url.URL
	catalogPath string
}

// NewResolver builds a resolver rooted at baseURL. catalogPath is a fmt
// pattern with one %d; productPath is the directory detail links live under.
func NewResolver(baseURL, catalogPath, productPath string) (*Resolver, error) {
	site, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if site.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if !strings.HasSuffix(site.Path, "/") {
		site.Path += "/"
	}

	if productPath != "" && !strings.HasSuffix(productPath, "/") {
		productPath += "/"
	}
	productRef, err := url.Parse(productPath)
	if err != nil {
		return nil, fmt.Errorf("parse product path: %w", err)
	}

	return &Resolver{
		site:        site,
		product:     site.ResolveReference(productRef),
		catalogPath: catalogPath,
	}, nil
}

// CatalogPage returns the URL of catalog page n.
func (r *Resolver) CatalogPage(page int) string {
	ref, err := url.Parse(fmt.Sprintf(r.catalogPath, page))
	if err != nil {
		return r.site.String() + fmt.Sprintf(r.catalogPath, page)
	}
	return r.site.ResolveReference(ref).String()
}

// Product resolves a detail-page link against the product directory.
func (r *Resolver) Product(href string) (string, error) {
	return resolve(r.product, href)
}

// Thumbnail resolves an image link against the site root.
func (r *Resolver) Thumbnail(src string) (string, error) {
	return resolve(r.site, src)
}

func resolve(base *url.URL, link string) (string, error) {
	link = strings.ReplaceAll(strings.TrimSpace(link), "../../", "")
	ref, err := url.Parse(link)
	if err != nil {
		// raw '%' and similar: fall back to joining the strings as-is
		return base.String() + strings.TrimPrefix(link, "/"), nil
	}
	return base.ResolveReference(ref).String(), nil
}
