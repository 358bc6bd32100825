package parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// ErrMissingField is wrapped by every FieldError.
var ErrMissingField = errors.New("missing field")

// FieldError reports an extraction rule that found nothing in the markup.
type FieldError struct {
	Field    string
	Selector string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %q (selector %q)", ErrMissingField, e.Field, e.Selector)
}

func (e *FieldError) Unwrap() error {
	return ErrMissingField
}

func missing(field, selector string) error {
	return &FieldError{Field: field, Selector: selector}
}

// NewDocument parses raw HTML into a queryable document tree.
func NewDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// firstText returns the text of the first node matching selector under sel.
func firstText(sel *goquery.Selection, field, selector string) (string, error) {
	found := sel.Find(selector).First()
	if found.Length() == 0 {
		return "", missing(field, selector)
	}
	return found.Text(), nil
}

// firstAttr returns attribute attr of the first node matching selector under sel.
func firstAttr(sel *goquery.Selection, field, selector, attr string) (string, error) {
	found := sel.Find(selector).First()
	if found.Length() == 0 {
		return "", missing(field, selector)
	}
	value, ok := found.Attr(attr)
	if !ok {
		return "", missing(field, selector+"["+attr+"]")
	}
	return value, nil
}
