// Package ready implements the Readiness Detector: a pure function from
// captured pane text to a readiness verdict. It holds no state and uses no
// regex engine — just fixed substring tests over the last ~40 lines of a
// pane capture.
package ready

import "strings"

// RelayPrompt is the literal substring a relay-cli session prints once the
// interactive auth flow has completed.
const RelayPrompt = "-bash-baidu-ssl$"

var fatalPhrases = []string{
	"Permission denied",
	"Connection refused",
	"No route to host",
	"Authentication failed",
}

// Verdict is the outcome of inspecting a captured pane tail.
type Verdict int

const (
	// NotReady means none of the known markers were found.
	NotReady Verdict = iota
	// Ready means a success marker was found for the query being asked.
	Ready
	// Failed means a known fatal phrase was found; the caller should stop
	// polling and surface the error rather than retry.
	Failed
)

// RelayLoggedIn reports whether the captured tail shows the relay-cli
// login prompt.
func RelayLoggedIn(tail string) bool {
	return strings.Contains(tail, RelayPrompt)
}

// AtShellPrompt reports whether the last non-empty line of the tail ends
// in a shell prompt ("$ " or "# "), which spec.md treats as "SSH at
// target shell" once any login banner has scrolled past.
func AtShellPrompt(tail string) bool {
	last := lastNonEmptyLine(tail)
	if last == "" {
		return false
	}
	return strings.HasSuffix(last, "$ ") || strings.HasSuffix(last, "# ")
}

// InContainer reports whether the last non-empty line's prompt contains
// the container name as a path component of a "user@host:path$" or
// "root@<container>:...#" style prompt.
func InContainer(tail string, containerName string) bool {
	if containerName == "" {
		return false
	}
	last := lastNonEmptyLine(tail)
	if last == "" {
		return false
	}
	return strings.Contains(last, "@"+containerName+":") || strings.Contains(last, containerName+":")
}

// Fatal reports whether the tail contains any known fatal phrase.
func Fatal(tail string) bool {
	for _, phrase := range fatalPhrases {
		if strings.Contains(tail, phrase) {
			return true
		}
	}
	return false
}

// FatalPhrase returns the specific fatal phrase matched, or "" if none.
func FatalPhrase(tail string) string {
	for _, phrase := range fatalPhrases {
		if strings.Contains(tail, phrase) {
			return phrase
		}
	}
	return ""
}

// TailWindow bounds a full capture down to the last n lines, matching the
// "~40 lines" window the detector is specified to inspect. Pane.Capture
// already applies this bound at the source; this helper exists so callers
// that receive a larger blob (e.g. from CaptureFullHistory-style sources)
// can re-bound it before running detector queries.
func TailWindow(text string, n int) string {
	if n <= 0 {
		n = 40
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

func lastNonEmptyLine(tail string) string {
	lines := strings.Split(tail, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\r")
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
