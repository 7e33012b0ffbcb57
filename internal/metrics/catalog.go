// Package metrics defines the WebPageTest metrics reported for every tested URL
package metrics

// Metric maps a raw WebPageTest first-view field to its display label
type Metric struct {
	Key   string
	Label string
}

// catalog is the ordered list of metrics extracted from each result.
// Report entries follow this order.
//
//nolint:gochecknoglobals // Static lookup table
var catalog = []Metric{
	{Key: "TTFB", Label: "Time to First Byte"},
	{Key: "firstContentfulPaint", Label: "First Contentful Paint"},
	{Key: "TotalBlockingTime", Label: "Total Blocking Time"},
	{Key: "chromeUserTiming.LargestContentfulPaint", Label: "Largest Contentful Paint"},
	{Key: "chromeUserTiming.CumulativeLayoutShift", Label: "Cumulative Layout Shift"},
}

// Catalog returns a copy of the metric catalog in display order
func Catalog() []Metric {
	out := make([]Metric, len(catalog))
	copy(out, catalog)
	return out
}

// Label returns the display label for a raw metric key
func Label(key string) (string, bool) {
	for _, m := range catalog {
		if m.Key == key {
			return m.Label, true
		}
	}
	return "", false
}
