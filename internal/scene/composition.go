package scene

import (
	"context"
	"fmt"

	"github.com/mattjoyce/aebridge/internal/registry"
)

// Composition defaults for createComposition.
const (
	DefaultCompositionName = "New Composition"
	DefaultWidth           = 1920
	DefaultHeight          = 1080
	DefaultPixelAspect     = 1.0
	DefaultDuration        = 10.0
	DefaultFrameRate       = 30.0
)

type compositionView struct {
	Name        string    `json:"name"`
	ID          int       `json:"id"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	PixelAspect float64   `json:"pixelAspect"`
	Duration    float64   `json:"duration"`
	FrameRate   float64   `json:"frameRate"`
	BgColor     []float64 `json:"bgColor"`
}

func viewComposition(c *Composition) compositionView {
	return compositionView{
		Name:        c.Name,
		ID:          c.ID,
		Width:       c.Width,
		Height:      c.Height,
		PixelAspect: c.PixelAspect,
		Duration:    c.Duration,
		FrameRate:   c.FrameRate,
		BgColor:     c.BgColor,
	}
}

type compositionResult struct {
	Status            string          `json:"status"`
	Message           string          `json:"message"`
	Composition       compositionView `json:"composition"`
	ChangedProperties []string        `json:"changedProperties,omitempty"`
}

func (s *service) createComposition(_ context.Context, args registry.Args) registry.Outcome {
	bg := []float64{0, 0, 0}
	if c, ok := rgb255(args["backgroundColor"]); ok {
		bg = c
	}
	comp := &Composition{
		Name:        argString(args, "name", DefaultCompositionName),
		Width:       argInt(args, "width", DefaultWidth),
		Height:      argInt(args, "height", DefaultHeight),
		PixelAspect: argFloat(args, "pixelAspect", DefaultPixelAspect),
		Duration:    argFloat(args, "duration", DefaultDuration),
		FrameRate:   argFloat(args, "frameRate", DefaultFrameRate),
		BgColor:     bg,
	}
	if err := checkCompositionSettings(comp); err != nil {
		return registry.Failed(registry.KindHandler, err.Error())
	}
	return s.update(func(p *Project) (any, error) {
		c := p.AddComposition(comp)
		return compositionResult{
			Status:      statusSuccess,
			Message:     "Composition created successfully",
			Composition: viewComposition(c),
		}, nil
	})
}

// checkCompositionSettings rejects sizes and timings the host cannot create.
func checkCompositionSettings(c *Composition) error {
	switch {
	case c.Width <= 0:
		return fmt.Errorf("width must be a positive integer (got %d)", c.Width)
	case c.Height <= 0:
		return fmt.Errorf("height must be a positive integer (got %d)", c.Height)
	case c.PixelAspect <= 0:
		return fmt.Errorf("pixelAspect must be positive (got %g)", c.PixelAspect)
	case c.Duration <= 0:
		return fmt.Errorf("duration must be positive (got %g)", c.Duration)
	case c.FrameRate <= 0:
		return fmt.Errorf("frameRate must be positive (got %g)", c.FrameRate)
	}
	return nil
}

// updateComposition changes the settings named in args on compName, or on
// the active composition. newName renames it.
func (s *service) updateComposition(_ context.Context, args registry.Args) registry.Outcome {
	return s.update(func(p *Project) (any, error) {
		c, err := p.FindComposition(argString(args, "compName", ""))
		if err != nil {
			return nil, err
		}
		changed := []string{}
		if name := argString(args, "newName", ""); name != "" {
			c.Name = name
			changed = append(changed, "name")
		}
		if v := argInt(args, "width", 0); v > 0 {
			c.Width = v
			changed = append(changed, "width")
		}
		if v := argInt(args, "height", 0); v > 0 {
			c.Height = v
			changed = append(changed, "height")
		}
		if v := argFloat(args, "pixelAspect", 0); v > 0 {
			c.PixelAspect = v
			changed = append(changed, "pixelAspect")
		}
		if v := argFloat(args, "duration", 0); v > 0 {
			c.Duration = v
			changed = append(changed, "duration")
		}
		if v := argFloat(args, "frameRate", 0); v > 0 {
			c.FrameRate = v
			changed = append(changed, "frameRate")
		}
		if bg, ok := rgb255(args["backgroundColor"]); ok {
			c.BgColor = bg
			changed = append(changed, "bgColor")
		}
		return compositionResult{
			Status:            statusSuccess,
			Message:           "Composition updated successfully",
			Composition:       viewComposition(c),
			ChangedProperties: changed,
		}, nil
	})
}
