package resolve

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/blackarch/wordlistctl/pkg/errors"
)

// ExtractLink returns the absolute href of the first anchor in doc whose
// id, class, aria-label or text matches label.
func ExtractLink(doc io.Reader, base *url.URL, label *regexp.Regexp) (string, error) {
	root, err := html.Parse(doc)
	if err != nil {
		return "", errors.Wrap(errors.ErrTransient, err.Error())
	}

	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if href, ok := candidate(n, label); ok {
				found = href
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if !walk(root) {
		return "", errors.Wrap(errors.ErrTransient, "no download link on page")
	}

	ref, err := url.Parse(found)
	if err != nil {
		return "", errors.Wrap(errors.ErrTransient, err.Error())
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return ref.String(), nil
}

func candidate(n *html.Node, label *regexp.Regexp) (string, bool) {
	var href string
	var parts []string
	for _, a := range n.Attr {
		switch a.Key {
		case "href":
			href = strings.TrimSpace(a.Val)
		case "id", "class", "aria-label", "title":
			parts = append(parts, a.Val)
		}
	}
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	parts = append(parts, textOf(n))
	return href, label.MatchString(strings.Join(parts, " "))
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
