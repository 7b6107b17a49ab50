package orchestrator

import (
	"time"

	"photo-curator/internal/ai"
)

// RequestUnit is one photo prepared for analysis. Key identifies the photo
// for caching and result lookup; Payload holds the encoded image bytes.
type RequestUnit struct {
	Key     string
	Path    string
	Name    string
	Payload []byte
	TakenAt time.Time
}

// UnitResult is the terminal outcome for one RequestUnit. Exactly one of
// Analysis or Err is set. Cached marks results served without a provider
// call; Attempts counts provider calls that included this unit.
type UnitResult struct {
	Key      string
	Path     string
	Analysis *ai.ImageAnalysis
	Cached   bool
	Attempts int
	Err      error
}

// pendingUnit tracks a unit's retry state while it moves through the queue.
type pendingUnit struct {
	unit         *RequestUnit
	attempts     int
	requeues     int
	cacheChecked bool
}
