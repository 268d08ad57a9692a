package core

import (
	"errors"
)

var (
	// ErrBufferNotMapped is returned by a compute backend when a render buffer
	// cannot be mapped for host access. Callers in the culling pipeline treat
	// this as "skip the pass"; there is no other recovery path.
	ErrBufferNotMapped = errors.New("render buffer could not be mapped for host access")
	// ErrStageUnavailable is returned when a compute stage required by a
	// culling strategy is missing from the backend.
	ErrStageUnavailable = errors.New("compute stage unavailable")
	// ErrNoCamera indicates a spatial culling strategy was invoked without a
	// valid camera.
	ErrNoCamera = errors.New("no camera available for spatial culling")
	// ErrHierarchyNotReady indicates the bounding hierarchy has not finished
	// building yet.
	ErrHierarchyNotReady = errors.New("bounding hierarchy not ready")
	ErrUnknown           = errors.New("unknown")
)
