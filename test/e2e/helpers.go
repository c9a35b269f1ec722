package e2e

import (
	"testing"
)

// runOnAllConfigs is a helper that runs a test on all configurations
func runOnAllConfigs(t *testing.T, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()

	for _, config := range AllConfigurations(t) {
		t.Run(config.Name, func(t *testing.T) {
			tc := NewTestContext(t, config)
			defer tc.Cleanup()

			testFunc(t, tc)
		})
	}
}

// siteFiles is the fixture site, keyed by slash-separated relative path.
func siteFiles() map[string][]byte {
	big := make([]byte, 200*1024+17)
	for i := range big {
		big[i] = byte(i * 31)
	}

	return map[string][]byte{
		"index.html":      []byte("<html><body>hello</body></html>\n"),
		"notes.txt":       []byte("plain notes\n"),
		"css/site.css":    []byte("body { margin: 0 }\n"),
		"img/photo.JPG":   big,
		"empty.txt":       {},
		"docs/readme.txt": []byte("docs\n"),
		"data.blob":       []byte("%PDF-1.4 not really\n"),
	}
}
