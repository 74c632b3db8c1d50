package scene

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/aebridge/internal/registry"
)

type knownEffect struct {
	matchName string
	name      string
}

// knownEffects lists match names and display names for the effects the
// bridge knows about. The first entry wins on a display-name lookup.
var knownEffects = []knownEffect{
	{"ADBE Gaussian Blur 2", "Gaussian Blur"},
	{"ADBE Motion Blur", "Directional Blur"},
	{"ADBE Color Balance (HLS)", "Color Balance (HLS)"},
	{"ADBE Brightness & Contrast 2", "Brightness & Contrast"},
	{"ADBE CurvesCustom", "Curves"},
	{"ADBE Curves", "Curves"},
	{"ADBE Glow", "Glow"},
	{"ADBE Drop Shadow", "Drop Shadow"},
	{"ADBE Vibrance", "Vibrance"},
	{"ADBE Vignette", "Vignette"},
	{"ADBE Fill", "Fill"},
	{"ADBE Tint", "Tint"},
}

// resolveEffect returns (name, matchName) for an effect given by either.
// Unknown effects keep the given string for both.
func resolveEffect(name, matchName string) (string, string) {
	if matchName != "" {
		for _, e := range knownEffects {
			if e.matchName == matchName {
				return e.name, e.matchName
			}
		}
		return matchName, matchName
	}
	for _, e := range knownEffects {
		if strings.EqualFold(e.name, name) {
			return e.name, e.matchName
		}
	}
	return name, name
}

type effectView struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	MatchName string `json:"matchName,omitempty"`
	Index     int    `json:"index,omitempty"`
	Applied   bool   `json:"applied,omitempty"`
}

type effectResult struct {
	Status      string       `json:"status"`
	Message     string       `json:"message"`
	Effect      effectView   `json:"effect"`
	Layer       layerRefView `json:"layer"`
	Composition compRefView  `json:"composition"`
}

// targetLayer resolves compIndex and layerIndex, both 1-based and
// defaulting to 1.
func targetLayer(p *Project, args registry.Args) (*Composition, int, *Layer, int, error) {
	compIndex := argInt(args, "compIndex", 1)
	layerIndex := argInt(args, "layerIndex", 1)
	c, err := p.CompositionAt(compIndex)
	if err != nil {
		return nil, 0, nil, 0, err
	}
	l, err := c.Layer(layerIndex)
	if err != nil {
		return nil, 0, nil, 0, err
	}
	return c, compIndex, l, layerIndex, nil
}

func (s *service) applyEffect(_ context.Context, args registry.Args) registry.Outcome {
	effectName := argString(args, "effectName", "")
	matchName := argString(args, "effectMatchName", "")
	presetPath := argString(args, "presetPath", "")
	if effectName == "" && matchName == "" && presetPath == "" {
		return registry.Failed(registry.KindHandler, "You must specify either effectName, effectMatchName, or presetPath")
	}
	settings := argMap(args, "effectSettings")

	return s.update(func(p *Project) (any, error) {
		c, compIndex, l, layerIndex, err := targetLayer(p, args)
		if err != nil {
			return nil, err
		}

		var view effectView
		if presetPath != "" {
			if _, err := os.Stat(presetPath); err != nil {
				return nil, fmt.Errorf("Effect preset file not found: %s", presetPath)
			}
			base := filepath.Base(strings.ReplaceAll(presetPath, `\`, "/"))
			l.AddEffect(&Effect{Name: base, MatchName: "preset", Settings: map[string]any{"path": presetPath}})
			view = effectView{Type: "preset", Name: base, Applied: true}
		} else {
			name, mn := resolveEffect(effectName, matchName)
			e := l.AddEffect(&Effect{Name: name, MatchName: mn, Settings: copySettings(settings)})
			view = effectView{Type: "effect", Name: e.Name, MatchName: e.MatchName, Index: e.Index}
		}

		return effectResult{
			Status:      statusSuccess,
			Message:     "Effect applied successfully",
			Effect:      view,
			Layer:       layerRefView{Name: l.Name, Index: layerIndex},
			Composition: compRefView{Name: c.Name, Index: compIndex},
		}, nil
	})
}

func copySettings(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type templateEffect struct {
	matchName string
	settings  func(custom registry.Args) map[string]any
}

type effectTemplate struct {
	name    string
	effects []templateEffect
}

func fixed(settings map[string]any) func(registry.Args) map[string]any {
	return func(registry.Args) map[string]any { return copySettings(settings) }
}

func orDefault(custom registry.Args, key string, def any) any {
	v, ok := custom[key]
	if !ok || v == nil || v == false || v == "" {
		return def
	}
	if f, ok := number(v); ok && f == 0 {
		return def
	}
	return v
}

// effectTemplates is ordered so the "not found" message is stable.
var effectTemplates = []effectTemplate{
	{name: "gaussian-blur", effects: []templateEffect{{
		matchName: "ADBE Gaussian Blur 2",
		settings: func(c registry.Args) map[string]any {
			return map[string]any{"Blurriness": orDefault(c, "blurriness", 20)}
		},
	}}},
	{name: "directional-blur", effects: []templateEffect{{
		matchName: "ADBE Motion Blur",
		settings: func(c registry.Args) map[string]any {
			return map[string]any{
				"Direction":   orDefault(c, "direction", 0),
				"Blur Length": orDefault(c, "length", 10),
			}
		},
	}}},
	{name: "color-balance", effects: []templateEffect{{
		matchName: "ADBE Color Balance (HLS)",
		settings: func(c registry.Args) map[string]any {
			return map[string]any{
				"Hue":        orDefault(c, "hue", 0),
				"Lightness":  orDefault(c, "lightness", 0),
				"Saturation": orDefault(c, "saturation", 0),
			}
		},
	}}},
	{name: "brightness-contrast", effects: []templateEffect{{
		matchName: "ADBE Brightness & Contrast 2",
		settings: func(c registry.Args) map[string]any {
			return map[string]any{
				"Brightness": orDefault(c, "brightness", 0),
				"Contrast":   orDefault(c, "contrast", 0),
				"Use Legacy": false,
			}
		},
	}}},
	{name: "curves", effects: []templateEffect{{
		matchName: "ADBE CurvesCustom",
		settings:  fixed(nil),
	}}},
	{name: "glow", effects: []templateEffect{{
		matchName: "ADBE Glow",
		settings: func(c registry.Args) map[string]any {
			return map[string]any{
				"Glow Threshold": orDefault(c, "threshold", 50),
				"Glow Radius":    orDefault(c, "radius", 15),
				"Glow Intensity": orDefault(c, "intensity", 1),
			}
		},
	}}},
	{name: "drop-shadow", effects: []templateEffect{{
		matchName: "ADBE Drop Shadow",
		settings: func(c registry.Args) map[string]any {
			return map[string]any{
				"Shadow Color": orDefault(c, "color", []any{0, 0, 0, 1}),
				"Opacity":      orDefault(c, "opacity", 50),
				"Direction":    orDefault(c, "direction", 135),
				"Distance":     orDefault(c, "distance", 10),
				"Softness":     orDefault(c, "softness", 10),
			}
		},
	}}},
	{name: "cinematic-look", effects: []templateEffect{
		{matchName: "ADBE Curves", settings: fixed(nil)},
		{matchName: "ADBE Vibrance", settings: fixed(map[string]any{"Vibrance": 15, "Saturation": -5})},
		{matchName: "ADBE Vignette", settings: fixed(map[string]any{"Amount": 15, "Roundness": 50, "Feather": 40})},
	}},
	{name: "text-pop", effects: []templateEffect{
		{matchName: "ADBE Drop Shadow", settings: fixed(map[string]any{
			"Shadow Color": []any{0, 0, 0, 1}, "Opacity": 75, "Distance": 5, "Softness": 10,
		})},
		{matchName: "ADBE Glow", settings: fixed(map[string]any{
			"Glow Threshold": 50, "Glow Radius": 10, "Glow Intensity": 1.5,
		})},
	}},
}

// TemplateNames lists the effect templates in catalogue order.
func TemplateNames() []string {
	names := make([]string, len(effectTemplates))
	for i, t := range effectTemplates {
		names[i] = t.name
	}
	return names
}

func findTemplate(name string) (effectTemplate, bool) {
	for _, t := range effectTemplates {
		if t.name == name {
			return t, true
		}
	}
	return effectTemplate{}, false
}

type appliedEffectView struct {
	Name      string `json:"name"`
	MatchName string `json:"matchName"`
}

type templateResult struct {
	Status         string              `json:"status"`
	Message        string              `json:"message"`
	AppliedEffects []appliedEffectView `json:"appliedEffects"`
	Layer          layerRefView        `json:"layer"`
	Composition    compRefView         `json:"composition"`
}

func (s *service) applyEffectTemplate(_ context.Context, args registry.Args) registry.Outcome {
	name := argString(args, "templateName", "")
	if name == "" {
		return registry.Failed(registry.KindHandler, "You must specify a templateName")
	}
	tmpl, ok := findTemplate(name)
	if !ok {
		return registry.Failed(registry.KindHandler, fmt.Sprintf(
			"Template '%s' not found. Available templates: %s", name, strings.Join(TemplateNames(), ", ")))
	}
	custom := registry.Args(argMap(args, "customSettings"))

	return s.update(func(p *Project) (any, error) {
		c, compIndex, l, layerIndex, err := targetLayer(p, args)
		if err != nil {
			return nil, err
		}
		applied := make([]appliedEffectView, 0, len(tmpl.effects))
		for _, te := range tmpl.effects {
			display, mn := resolveEffect("", te.matchName)
			e := l.AddEffect(&Effect{Name: display, MatchName: mn, Settings: te.settings(custom)})
			applied = append(applied, appliedEffectView{Name: e.Name, MatchName: e.MatchName})
		}
		return templateResult{
			Status:         statusSuccess,
			Message:        fmt.Sprintf("Effect template '%s' applied successfully", name),
			AppliedEffects: applied,
			Layer:          layerRefView{Name: l.Name, Index: layerIndex},
			Composition:    compRefView{Name: c.Name, Index: compIndex},
		}, nil
	})
}
