package utils

import "strings"

// SplitHost derives the registrable domain and subdomain from a host.
// Hosts with at least two dots yield their last two labels as the domain and
// their first label as the subdomain; anything shorter is its own domain
// under the "www" subdomain.
func SplitHost(host string) (domain, subdomain string) {
	if strings.Count(host, ".") > 1 {
		labels := strings.Split(host, ".")
		return strings.Join(labels[len(labels)-2:], "."), labels[0]
	}
	return host, "www"
}

// TotalPages returns the number of pages needed to hold total items.
func TotalPages(total int64, limit int) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
