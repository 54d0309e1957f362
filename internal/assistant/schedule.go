package assistant

import "strings"

// scheduleKeywords mark a message as a calendar/scheduling request. Handling
// the request itself is delegated upstream; the core only classifies.
var scheduleKeywords = []string{
	"schedule",
	"remind",
	"add event",
	"create event",
	"set reminder",
	"add to calendar",
}

// IsScheduleRequest reports whether the message looks like a scheduling
// request, by case-insensitive keyword match.
func IsScheduleRequest(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range scheduleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
