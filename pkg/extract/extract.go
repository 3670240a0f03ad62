// Package extract pulls indicators of compromise (URLs, domains, IPv4
// addresses and email addresses) out of decoded message text and headers.
//
// Every function is pure and returns a sorted, duplicate-free slice.
package extract

import (
	"html"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/otherjamesbrown/mailtriage/pkg/patterns"
)

const urlTrailingPunct = ".,)]>;"

type set map[string]struct{}

func (s set) add(v string) {
	if v != "" {
		s[v] = struct{}{}
	}
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// URLs returns every http(s) URL found in the plain-text and HTML bodies,
// including href attribute values that start with "http". URLs taken from
// HTML are entity-decoded, so a link written as both href and visible text is
// reported once.
func URLs(text, htmlBody string) []string {
	lib := patterns.Get()
	found := set{}

	for _, m := range lib.URL.FindAllString(text, -1) {
		found.add(strings.TrimRight(m, urlTrailingPunct))
	}
	for _, m := range lib.URL.FindAllString(htmlBody, -1) {
		found.add(strings.TrimRight(html.UnescapeString(m), urlTrailingPunct))
	}

	for _, href := range hrefs(htmlBody) {
		if strings.HasPrefix(href, "http") {
			found.add(href)
		}
	}

	return found.sorted()
}

// hrefs returns the decoded href attribute values in htmlBody.
func hrefs(htmlBody string) []string {
	if strings.TrimSpace(htmlBody) == "" {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil
	}

	var out []string
	doc.Find("[href]").Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("href"); ok {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out
}

// Domains returns the lowercased host of every parseable URL plus bare
// domain-shaped tokens in text. Tokens that end in an image or stylesheet
// extension are treated as filenames and dropped.
func Domains(urls []string, text string) []string {
	found := set{}

	for _, raw := range urls {
		if host := Host(raw); host != "" {
			found.add(host)
		}
	}

	for _, m := range patterns.Get().Domain.FindAllString(text, -1) {
		domain := strings.ToLower(m)
		if patterns.IsNonDomainToken(domain) {
			continue
		}
		found.add(domain)
	}

	return found.sorted()
}

// Host returns the lowercased host of rawURL, or "" when it does not parse.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// IPs returns the public IPv4 literals found in header values. Private and
// loopback ranges are skipped; message bodies are never scanned.
func IPs(headerValues []string) []string {
	found := set{}
	lib := patterns.Get()

	for _, v := range headerValues {
		for _, ip := range lib.IPv4.FindAllString(v, -1) {
			if patterns.IsPrivateIP(ip) {
				continue
			}
			found.add(ip)
		}
	}

	return found.sorted()
}

// EmailAddresses returns lowercased addresses from the body text and header values.
func EmailAddresses(text string, headerValues []string) []string {
	found := set{}
	lib := patterns.Get()

	for _, m := range lib.Email.FindAllString(text, -1) {
		found.add(strings.ToLower(m))
	}
	for _, v := range headerValues {
		for _, m := range lib.Email.FindAllString(v, -1) {
			found.add(strings.ToLower(m))
		}
	}

	return found.sorted()
}
