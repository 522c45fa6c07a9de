package serialmux

import (
	"encoding/json"
	"fmt"
	"log"
)

// CurrentState holds the latest status values received from the board
// and is intentionally package-level so admin routes or tests can inspect it.
var CurrentState map[string]any

// HandleStatusResponse merges a JSON status line from the board into
// CurrentState. The board reports firmware version, configured sample rate,
// and streaming state this way in response to a "?" query.
func HandleStatusResponse(payload string) error {
	var statusValues map[string]any

	if err := json.Unmarshal([]byte(payload), &statusValues); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %v", err)
	}

	if CurrentState == nil {
		CurrentState = make(map[string]any)
	}
	for k, v := range statusValues {
		CurrentState[k] = v
	}

	log.Printf("Status Line: %+v", payload)

	return nil
}

// HandleEvent dispatches a board line by type. Sample rows are delivered to
// subscribers by the mux itself (the capture recorder consumes them), so
// only status lines need handling here; header lines are expected noise at
// stream start.
func HandleEvent(payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypeStatus:
		if err := HandleStatusResponse(payload); err != nil {
			return fmt.Errorf("failed to handle status response: %v", err)
		}
	case EventTypeSampleRow, EventTypeHeader:
		// consumed by capture subscribers
	default:
		log.Printf("unknown event type: %s", payload)
	}
	return nil
}
