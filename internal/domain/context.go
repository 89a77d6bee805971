// Package domain contains entity without logic, just meta-data
package domain

type (
	TabID   int
	FrameID int
)

// NoFrame is the parent of a top-level document.
const NoFrame FrameID = -1

// TopFrame is the frame id of a tab's top-level document.
const TopFrame FrameID = 0

// ContextRef identifies one execution context: a frame inside a tab.
type ContextRef struct {
	Tab   TabID   `json:"tabId"`
	Frame FrameID `json:"frameId"`
}

// FrameInfo is what the hub knows about a live context.
type FrameInfo struct {
	Ref    ContextRef `json:"ref"`
	Parent FrameID    `json:"parentFrameId"`
	URL    string     `json:"url"`
}

func (f FrameInfo) IsTop() bool { return f.Parent == NoFrame }

// Point is an absolute on-screen position in device pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ChildRect is what a parent frame agent reports about one of its child frames.
// Left/Top are CSS pixels in the parent's coordinate space. CurrentIndex is the
// parent's own index within its parent's frame list (-1 for a top document).
type ChildRect struct {
	Left             float64 `json:"left"`
	Top              float64 `json:"top"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
	Zoom             float64 `json:"zoom"`
	CurrentIndex     int     `json:"currentIndex"`
}

// WindowMetrics describes a tab's top-level window.
type WindowMetrics struct {
	DevicePixelRatio float64 `json:"devicePixelRatio"`
	InnerWidth       float64 `json:"innerWidth"`
	Zoom             float64 `json:"zoom"`
}

// Asset is a stylesheet or script injected into a frame.
type Asset struct {
	Kind  string `json:"kind"` // "css" or "script"
	File  string `json:"file"`
	RunAt string `json:"runAt"`
}
