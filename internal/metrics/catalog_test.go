package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Order(t *testing.T) {
	keys := make([]string, 0)
	for _, m := range Catalog() {
		keys = append(keys, m.Key)
	}

	assert.Equal(t, []string{
		"TTFB",
		"firstContentfulPaint",
		"TotalBlockingTime",
		"chromeUserTiming.LargestContentfulPaint",
		"chromeUserTiming.CumulativeLayoutShift",
	}, keys)
}

func TestCatalog_ReturnsCopy(t *testing.T) {
	c := Catalog()
	c[0].Label = "changed"

	label, ok := Label("TTFB")
	require.True(t, ok)
	assert.Equal(t, "Time to First Byte", label)
}

func TestLabel_Unknown(t *testing.T) {
	_, ok := Label("SpeedIndex")
	assert.False(t, ok)
}
