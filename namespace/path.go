package namespace

import "strings"

// splitURI splits a '/'-separated uri into its non-empty path components,
// in the manner of the teacher's dfc.restApiItems (dfc/httpcommon.go),
// which splits an HTTP request path the same way: drop the leading/
// trailing slash noise, keep only non-empty elements, preserve order.
func splitURI(uri string) []string {
	raw := strings.Split(uri, "/")
	items := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			items = append(items, s)
		}
	}
	return items
}
