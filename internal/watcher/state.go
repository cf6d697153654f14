package watcher

// State is the watcher lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateScanningCatchUp
	StateLiveWatching
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanningCatchUp:
		return "scanning_catch_up"
	case StateLiveWatching:
		return "live_watching"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
