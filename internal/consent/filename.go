package consent

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// captureTimeLayout is the YYYYMMDDHHMMSS prefix from spec.md §6's
// filename grammar.
const captureTimeLayout = "20060102150405"

var captureFilePattern = regexp.MustCompile(`^(\d{14})_(.+)\.jpg$`)
var trailingDisambiguator = regexp.MustCompile(`^(.+)_(\d+)$`)

// parsedCapture is the result of decoding one capture filename.
type parsedCapture struct {
	timestamp time.Time
	name      string
	suffix    int // 0 when the filename carries no disambiguator
}

// parseCaptureFilename decodes "YYYYMMDDHHMMSS_<name>[_<n>].jpg" per
// spec.md §6. The trailing "_<n>" disambiguator (n >= 2) is optional
// and only recognized when present, since the name alphabet itself
// allows digits and underscores; a name that happens to end in
// "_<digits>" is therefore read as carrying a disambiguator. This
// matches how the capture writer itself generates the suffix, so the
// ambiguity never arises for files this program wrote.
func parseCaptureFilename(path string) (parsedCapture, error) {
	base := filepath.Base(path)
	m := captureFilePattern.FindStringSubmatch(base)
	if m == nil {
		return parsedCapture{}, fmt.Errorf("consent: %q does not match the capture filename grammar", base)
	}

	ts, err := time.ParseInLocation(captureTimeLayout, m[1], time.Local)
	if err != nil {
		return parsedCapture{}, fmt.Errorf("consent: %q: bad timestamp: %w", base, err)
	}

	rest := m[2]
	name := rest
	suffix := 0
	if dm := trailingDisambiguator.FindStringSubmatch(rest); dm != nil {
		if n, err := strconv.Atoi(dm[2]); err == nil && n >= 2 {
			name = dm[1]
			suffix = n
		}
	}

	name = strings.ToLower(name)
	if name == "" {
		return parsedCapture{}, fmt.Errorf("consent: %q: empty name", base)
	}

	return parsedCapture{timestamp: ts, name: name, suffix: suffix}, nil
}

// captureFilename builds the on-disk filename for a new capture of
// name taken at ts, with no disambiguating suffix.
func captureFilename(ts time.Time, name string) string {
	return fmt.Sprintf("%s_%s.jpg", ts.Format(captureTimeLayout), name)
}

// captureFilenameSuffixed builds the on-disk filename for a capture of
// name taken at ts, disambiguated with suffix n (n >= 2), used only
// when captureFilename's path is already taken (spec.md §4.6/§6).
func captureFilenameSuffixed(ts time.Time, name string, n int) string {
	return fmt.Sprintf("%s_%s_%d.jpg", ts.Format(captureTimeLayout), name, n)
}
