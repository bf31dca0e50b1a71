package provider

import "strings"

// Completion markers a provider may emit to signal it considers the
// task done. Presence of any one satisfies the contract.
const (
	MarkerCompleteDone    = "<complete>DONE</complete>"
	MarkerPromiseComplete = "<promise>COMPLETE</promise>"
	MarkerPhrase          = "task completed successfully"
	MarkerResultSuccess   = `"subtype":"success"`
)

// HasCompletionMarker scans provider output for any completion marker.
// The tag markers and the stream-result marker match exactly; the
// phrase matches case-insensitively.
func HasCompletionMarker(output string) bool {
	if strings.Contains(output, MarkerCompleteDone) ||
		strings.Contains(output, MarkerPromiseComplete) ||
		strings.Contains(output, MarkerResultSuccess) {
		return true
	}
	return strings.Contains(strings.ToLower(output), MarkerPhrase)
}
