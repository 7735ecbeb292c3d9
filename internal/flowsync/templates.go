package flowsync

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed templates/*.json
var templateFS embed.FS

// Skeleton templates used when a resource is first created. Connect rejects
// empty content, so every new flow starts as a minimal valid flow and gets
// its real content in the update phase.
const (
	templateDisconnect = "disconnectParticipant.json"
	templateWhisper    = "endFlowExecution_whisper.json"
	templateHold       = "messageParticipantIteratively_holds.json"
	templateModule     = "endFlowModuleExecution.json"
)

// skeletonTemplate picks the template name for a resource. Whisper and hold
// flow types only accept a restricted set of actions.
func skeletonTemplate(r Resource) string {
	switch {
	case !r.IsFlow():
		return templateModule
	case strings.Contains(r.Type, "_WHISPER"):
		return templateWhisper
	case strings.Contains(r.Type, "_HOLD"):
		return templateHold
	default:
		return templateDisconnect
	}
}

// skeletonContent returns the compacted template content for r.
func skeletonContent(r Resource) (string, error) {
	name := skeletonTemplate(r)
	raw, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", name, err)
	}
	pf, err := parseFlow(string(raw))
	if err != nil {
		return "", &FormatError{Document: name, Cause: err}
	}
	return pf.encode()
}
