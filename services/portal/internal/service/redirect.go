package service

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

var (
	errEmptyPayload = errors.New("empty payload")
	errNoRedirect   = errors.New("no form action or meta refresh found")
)

// ParseRedirect checks that a gateway payload can move the browser on: it
// must hold a <form> with an action or a <meta http-equiv="refresh"> with a
// target URL. The payload itself is still served verbatim.
func ParseRedirect(payload []byte) (*domain.RedirectDirective, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, errEmptyPayload
	}

	doc, err := html.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	if form := findElement(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Form && strings.TrimSpace(attr(n, "action")) != ""
	}); form != nil {
		method := strings.ToUpper(strings.TrimSpace(attr(form, "method")))
		if method == "" {
			method = "GET"
		}
		return &domain.RedirectDirective{
			Kind:   domain.RedirectForm,
			Target: strings.TrimSpace(attr(form, "action")),
			Method: method,
			Fields: formFields(form),
		}, nil
	}

	if meta := findElement(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Meta && strings.EqualFold(attr(n, "http-equiv"), "refresh")
	}); meta != nil {
		if target := refreshTarget(attr(meta, "content")); target != "" {
			return &domain.RedirectDirective{Kind: domain.RedirectMetaRefresh, Target: target}, nil
		}
	}

	return nil, errNoRedirect
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func formFields(form *html.Node) map[string]string {
	fields := make(map[string]string)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Input {
			if name := attr(n, "name"); name != "" {
				fields[name] = attr(n, "value")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(form)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// refreshTarget extracts the URL from a refresh content value such as
// "0; url=https://gw.example/pay".
func refreshTarget(content string) string {
	_, rest, ok := strings.Cut(content, ";")
	if !ok {
		return ""
	}
	rest = strings.TrimSpace(rest)
	if len(rest) < 4 || !strings.EqualFold(rest[:3], "url") {
		return ""
	}
	rest = strings.TrimSpace(rest[3:])
	rest, ok = strings.CutPrefix(rest, "=")
	if !ok {
		return ""
	}
	return strings.Trim(strings.TrimSpace(rest), `'"`)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
