package scene

import (
	"context"
	"fmt"

	"github.com/mattjoyce/aebridge/internal/registry"
)

// Layer defaults shared by the create operations.
const DefaultLayerDuration = 5.0

var (
	defaultPosition = []float64{960, 540}
	white           = []float64{1, 1, 1}
	black           = []float64{0, 0, 0}
	red             = []float64{1, 0, 0}
)

type layerView struct {
	Name         string    `json:"name"`
	Index        int       `json:"index"`
	Type         LayerType `json:"type"`
	ShapeType    string    `json:"shapeType,omitempty"`
	InPoint      float64   `json:"inPoint"`
	OutPoint     float64   `json:"outPoint"`
	Position     []float64 `json:"position"`
	IsAdjustment *bool     `json:"isAdjustment,omitempty"`
}

type layerResult struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Layer   layerView `json:"layer"`
}

// newLayer builds a layer with transform defaults and timing from
// startTime and duration. A non-positive duration runs to the end of c.
func newLayer(c *Composition, name string, typ LayerType, args registry.Args) *Layer {
	start, _ := argNumber(args, "startTime")
	l := &Layer{
		Name:      name,
		Type:      typ,
		Enabled:   true,
		StartTime: start,
		InPoint:   start,
		OutPoint:  c.Duration,
		Position:  argVector(args, "position", defaultPosition),
		Scale:     []float64{100, 100},
		Opacity:   100,
	}
	if d := argFloat(args, "duration", DefaultLayerDuration); d > 0 {
		l.OutPoint = start + d
	}
	return l
}

func (s *service) createTextLayer(_ context.Context, args registry.Args) registry.Outcome {
	return s.update(func(p *Project) (any, error) {
		c, err := p.FindComposition(argString(args, "compName", ""))
		if err != nil {
			return nil, err
		}
		text := argString(args, "text", "Text Layer")
		l := newLayer(c, text, LayerText, args)
		l.Text = &TextDocument{
			Text:          text,
			FontFamily:    argString(args, "fontFamily", "Arial"),
			FontSize:      argFloat(args, "fontSize", 72),
			FillColor:     argVector(args, "color", white),
			Justification: argString(args, "alignment", "center"),
		}
		c.AddLayer(l)
		return layerResult{
			Status:  statusSuccess,
			Message: "Text layer created successfully",
			Layer:   viewLayer(l),
		}, nil
	})
}

var shapeTypes = map[string]bool{"rectangle": true, "ellipse": true, "polygon": true, "star": true}

func (s *service) createShapeLayer(_ context.Context, args registry.Args) registry.Outcome {
	shapeType := argString(args, "shapeType", "rectangle")
	if !shapeTypes[shapeType] {
		return registry.Failed(registry.KindHandler, fmt.Sprintf("Unsupported shapeType: %s", shapeType))
	}
	return s.update(func(p *Project) (any, error) {
		c, err := p.FindComposition(argString(args, "compName", ""))
		if err != nil {
			return nil, err
		}
		l := newLayer(c, argString(args, "name", "Shape Layer"), LayerShape, args)
		l.Shape = &ShapeContents{
			ShapeType:   shapeType,
			Size:        argVector(args, "size", []float64{200, 200}),
			Points:      argInt(args, "points", 5),
			FillColor:   argVector(args, "fillColor", red),
			StrokeColor: argVector(args, "strokeColor", black),
			StrokeWidth: argFloat(args, "strokeWidth", 0),
		}
		c.AddLayer(l)
		v := viewLayer(l)
		v.ShapeType = shapeType
		return layerResult{
			Status:  statusSuccess,
			Message: "Shape layer created successfully",
			Layer:   v,
		}, nil
	})
}

func (s *service) createSolidLayer(_ context.Context, args registry.Args) registry.Outcome {
	adjustment := argBool(args, "isAdjustment")
	return s.update(func(p *Project) (any, error) {
		c, err := p.FindComposition(argString(args, "compName", ""))
		if err != nil {
			return nil, err
		}
		typ, color, msg := LayerSolid, argVector(args, "color", white), "Solid layer created successfully"
		if adjustment {
			typ, color, msg = LayerAdjustment, black, "Adjustment layer created successfully"
		}
		size := argVector(args, "size", []float64{float64(c.Width), float64(c.Height)})
		if len(size) < 2 {
			return nil, fmt.Errorf("size must be [width, height]")
		}
		l := newLayer(c, argString(args, "name", "Solid Layer"), typ, args)
		l.Solid = &SolidSource{Color: color, Width: int(size[0]), Height: int(size[1])}
		c.AddLayer(l)
		v := viewLayer(l)
		v.IsAdjustment = &adjustment
		return layerResult{Status: statusSuccess, Message: msg, Layer: v}, nil
	})
}

func viewLayer(l *Layer) layerView {
	return layerView{
		Name:     l.Name,
		Index:    l.Index,
		Type:     l.Type,
		InPoint:  l.InPoint,
		OutPoint: l.OutPoint,
		Position: l.Position,
	}
}
