package ioc

import (
	"fmt"
	"strings"
)

// FormatForCopy renders the report as a plain list an analyst can paste into
// a ticket or blocklist request.
func FormatForCopy(r *Report) string {
	var b strings.Builder

	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "## %s\n", title)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
		b.WriteString("\n")
	}

	section("Domains", r.Domains)
	section("URLs", r.URLs)
	section("IP Addresses", r.IPAddresses)
	section("Email Addresses", r.EmailAddresses)

	hashes := make([]string, len(r.FileHashes))
	for i, h := range r.FileHashes {
		hashes[i] = fmt.Sprintf("%s: SHA256: %s", h.Filename, h.SHA256)
	}
	section("File Hashes", hashes)

	if len(r.HeadersOfInterest) > 0 {
		b.WriteString("## Headers of Interest\n")
		for _, h := range r.HeadersOfInterest {
			fmt.Fprintf(&b, "- %s: %s\n", h.Name, h.Value)
		}
	}

	return b.String()
}
