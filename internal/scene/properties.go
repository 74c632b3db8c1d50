package scene

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattjoyce/aebridge/internal/registry"
)

type layerPropertiesView struct {
	Name              string    `json:"name"`
	Index             int       `json:"index"`
	Position          []float64 `json:"position"`
	Scale             []float64 `json:"scale"`
	Rotation          float64   `json:"rotation"`
	Opacity           float64   `json:"opacity"`
	InPoint           float64   `json:"inPoint"`
	OutPoint          float64   `json:"outPoint"`
	ChangedProperties []string  `json:"changedProperties"`
}

type layerPropertiesResult struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Layer   layerPropertiesView `json:"layer"`
}

func (s *service) setLayerProperties(_ context.Context, args registry.Args) registry.Outcome {
	return s.update(func(p *Project) (any, error) {
		c, err := p.FindComposition(argString(args, "compName", ""))
		if err != nil {
			return nil, err
		}
		l, err := layerRef(c, args)
		if err != nil {
			return nil, err
		}

		changed := []string{}
		if v, ok := vector(args["position"]); ok {
			l.Position = v
			changed = append(changed, "position")
		}
		if v, ok := vector(args["scale"]); ok {
			l.Scale = v
			changed = append(changed, "scale")
		}
		if v, ok := argNumber(args, "rotation"); ok {
			l.Rotation = v
			changed = append(changed, "rotation")
		}
		if v, ok := argNumber(args, "opacity"); ok {
			if v < 0 || v > 100 {
				return nil, fmt.Errorf("opacity out of range: %v", v)
			}
			l.Opacity = v
			changed = append(changed, "opacity")
		}
		if v, ok := argNumber(args, "startTime"); ok {
			shift := v - l.StartTime
			l.StartTime = v
			l.InPoint += shift
			l.OutPoint += shift
			changed = append(changed, "startTime")
		}
		if v, ok := argNumber(args, "duration"); ok && v > 0 {
			l.OutPoint = l.StartTime + v
			changed = append(changed, "duration")
		}

		return layerPropertiesResult{
			Status:  statusSuccess,
			Message: "Layer properties updated successfully",
			Layer: layerPropertiesView{
				Name:              l.Name,
				Index:             l.Index,
				Position:          l.Position,
				Scale:             l.Scale,
				Rotation:          l.Rotation,
				Opacity:           l.Opacity,
				InPoint:           l.InPoint,
				OutPoint:          l.OutPoint,
				ChangedProperties: changed,
			},
		}, nil
	})
}

var animatable = map[string]string{
	"position":    "Position",
	"scale":       "Scale",
	"rotation":    "Rotation",
	"opacity":     "Opacity",
	"anchorpoint": "Anchor Point",
}

// propertyName resolves a transform property name case- and
// space-insensitively.
func propertyName(args registry.Args) (string, error) {
	raw := argString(args, "propertyName", "")
	if raw == "" {
		return "", fmt.Errorf("propertyName is required")
	}
	key := strings.ToLower(strings.ReplaceAll(raw, " ", ""))
	name, ok := animatable[key]
	if !ok {
		return "", fmt.Errorf("Property not found: %s", raw)
	}
	return name, nil
}

type keyframeResult struct {
	Status   string       `json:"status"`
	Message  string       `json:"message"`
	Layer    layerRefView `json:"layer"`
	Property string       `json:"property"`
	Keyframe Keyframe     `json:"keyframe"`
	NumKeys  int          `json:"numKeys"`
}

// setLayerKeyframe adds a keyframe at timeInSeconds. An existing key at the
// same time is replaced.
func (s *service) setLayerKeyframe(_ context.Context, args registry.Args) registry.Outcome {
	prop, err := propertyName(args)
	if err != nil {
		return registry.Failed(registry.KindHandler, err.Error())
	}
	value, ok := args["value"]
	if !ok || value == nil {
		return registry.Failed(registry.KindHandler, "value is required")
	}
	t, _ := argNumber(args, "timeInSeconds")

	return s.update(func(p *Project) (any, error) {
		c, err := p.FindComposition(argString(args, "compName", ""))
		if err != nil {
			return nil, err
		}
		l, err := layerRef(c, args)
		if err != nil {
			return nil, err
		}
		n := l.SetKeyframe(prop, t, value)
		return keyframeResult{
			Status:   statusSuccess,
			Message:  fmt.Sprintf("Keyframe set on %s at %gs", prop, t),
			Layer:    layerRefView{Name: l.Name, Index: l.Index},
			Property: prop,
			Keyframe: Keyframe{Time: t, Value: value},
			NumKeys:  n,
		}, nil
	})
}

type expressionResult struct {
	Status     string       `json:"status"`
	Message    string       `json:"message"`
	Layer      layerRefView `json:"layer"`
	Property   string       `json:"property"`
	Expression string       `json:"expression"`
}

// setLayerExpression sets expressionString on a property; an empty string
// clears it.
func (s *service) setLayerExpression(_ context.Context, args registry.Args) registry.Outcome {
	prop, err := propertyName(args)
	if err != nil {
		return registry.Failed(registry.KindHandler, err.Error())
	}
	expr, _ := args["expressionString"].(string)

	return s.update(func(p *Project) (any, error) {
		c, err := p.FindComposition(argString(args, "compName", ""))
		if err != nil {
			return nil, err
		}
		l, err := layerRef(c, args)
		if err != nil {
			return nil, err
		}
		l.SetExpression(prop, expr)
		msg := "Expression set on " + prop
		if expr == "" {
			msg = "Expression removed from " + prop
		}
		return expressionResult{
			Status:     statusSuccess,
			Message:    msg,
			Layer:      layerRefView{Name: l.Name, Index: l.Index},
			Property:   prop,
			Expression: expr,
		}, nil
	})
}
