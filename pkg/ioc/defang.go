package ioc

import "strings"

// DefangURL neutralizes a URL for sharing: the scheme is rewritten first,
// then every period.
func DefangURL(u string) string {
	u = strings.ReplaceAll(u, "http://", "hxxp://")
	u = strings.ReplaceAll(u, "https://", "hxxps://")
	return strings.ReplaceAll(u, ".", "[.]")
}

// DefangDomain replaces every period with "[.]".
func DefangDomain(domain string) string {
	return strings.ReplaceAll(domain, ".", "[.]")
}

// DefangEmail replaces "@" with "[@]" and then every period with "[.]".
func DefangEmail(addr string) string {
	addr = strings.ReplaceAll(addr, "@", "[@]")
	return strings.ReplaceAll(addr, ".", "[.]")
}

// DefangIP replaces every period with "[.]".
func DefangIP(ip string) string {
	return strings.ReplaceAll(ip, ".", "[.]")
}

// Refang reverses any of the defang transforms.
func Refang(s string) string {
	s = strings.ReplaceAll(s, "[.]", ".")
	s = strings.ReplaceAll(s, "[@]", "@")
	s = strings.ReplaceAll(s, "hxxps://", "https://")
	return strings.ReplaceAll(s, "hxxp://", "http://")
}
