// Package distance talks to the face distance service that gates the test
// until the subject stands at the chart distance.
package distance

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/verte-zerg/landolt/internal/model"
)

const (
	// TargetMeters is the chart distance.
	TargetMeters = 4.0
	// ToleranceMeters is how far off the subject may stand before guidance is shown.
	ToleranceMeters = 0.1
	// RequiredFrames is the number of consecutive at-target frames that confirm the distance.
	RequiredFrames = 15

	commandStart = "start_distance"
	commandStop  = "stop_all"

	authenticatedMessage = "Authenticated successfully"
)

type authMessage struct {
	Token string `json:"token"`
}

type startMessage struct {
	Command     string  `json:"command"`
	FocalLength float64 `json:"focal_length,omitempty"`
	PixelsPerMM float64 `json:"pixels_per_mm,omitempty"`
	ScreenPPI   float64 `json:"screen_ppi,omitempty"`
}

type commandMessage struct {
	Command string `json:"command"`
}

type frameMessage struct {
	Image string `json:"image"`
}

func newStart(cal model.Calibration) startMessage {
	return startMessage{
		Command:     commandStart,
		FocalLength: cal.FocalLength,
		PixelsPerMM: cal.PixelsPerMM,
		ScreenPPI:   cal.ScreenPPI,
	}
}

// Face is one detected face.
type Face struct {
	Distance float64 `json:"distance"`
}

// Reading is one processed frame result.
type Reading struct {
	Success          bool            `json:"success"`
	ProcessedImage   string          `json:"processed_image,omitempty"`
	ReferenceBox     json.RawMessage `json:"reference_box,omitempty"`
	FaceDetected     bool            `json:"face_detected,omitempty"`
	Faces            []Face          `json:"faces,omitempty"`
	AtTargetDistance bool            `json:"at_target_distance,omitempty"`
	Message          string          `json:"message,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// Distance returns the first face distance in meters.
func (r Reading) Distance() (float64, bool) {
	if len(r.Faces) == 0 {
		return 0, false
	}
	return r.Faces[0].Distance, true
}

func decodeReading(data []byte) (Reading, error) {
	var r Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return Reading{}, fmt.Errorf("distance: decode reading: %w", err)
	}
	return r, nil
}

// Guidance tells the subject which way to move. It reports false when the
// distance is unknown or within tolerance.
func Guidance(meters float64) (string, bool) {
	if meters <= 0 || math.IsNaN(meters) || math.IsInf(meters, 0) {
		return "", false
	}
	diff := math.Round((meters-TargetMeters)*10) / 10
	if math.Abs(diff) <= ToleranceMeters {
		return "", false
	}
	if diff > 0 {
		return fmt.Sprintf("Move %.1fm closer (Current: %.2fm)", diff, meters), true
	}
	return fmt.Sprintf("Move %.1fm further (Current: %.2fm)", -diff, meters), true
}

// Progress is the gate state after one reading.
type Progress struct {
	Reached     bool
	Consecutive int
	Distance    float64
	HasDistance bool
	AtTarget    bool
	Message     string
}

// Gate counts consecutive at-target readings.
type Gate struct {
	required    int
	consecutive int
	reached     bool
	message     string
}

// NewGate returns a gate needing required consecutive at-target frames.
func NewGate(required int) *Gate {
	if required <= 0 {
		required = RequiredFrames
	}
	return &Gate{required: required}
}

// Required is the number of consecutive at-target frames needed.
func (g *Gate) Required() int {
	return g.required
}

// Reset clears the count and the reached flag.
func (g *Gate) Reset() {
	g.consecutive = 0
	g.reached = false
	g.message = ""
}

// Observe folds one reading into the gate.
func (g *Gate) Observe(r Reading) Progress {
	p := Progress{}
	switch {
	case r.Error != "":
		g.message = "Error: " + r.Error
	case r.Success:
		if d, ok := r.Distance(); ok {
			p.Distance, p.HasDistance = d, true
			if r.AtTargetDistance {
				p.AtTarget = true
				g.consecutive++
				if g.consecutive >= g.required && !g.reached {
					g.reached = true
					g.message = fmt.Sprintf("Perfect! %.0fm reached.", TargetMeters)
				}
			} else {
				g.consecutive = 0
				if msg, ok := Guidance(d); ok {
					g.message = msg
				}
			}
		}
	}
	if r.Message != "" && !strings.Contains(r.Message, authenticatedMessage) {
		g.message = r.Message
	}
	p.Reached = g.reached
	p.Consecutive = g.consecutive
	p.Message = g.message
	return p
}
