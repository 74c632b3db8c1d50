package scene

import (
	"context"

	"github.com/mattjoyce/aebridge/internal/registry"
)

const maxListedItems = 50

type projectItemView struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type itemCounts struct {
	Compositions int `json:"compositions"`
	Footage      int `json:"footage"`
	Folders      int `json:"folders"`
	Solids       int `json:"solids"`
}

type projectInfoView struct {
	Status         string            `json:"status"`
	ProjectName    string            `json:"projectName"`
	Path           string            `json:"path"`
	NumItems       int               `json:"numItems"`
	BitsPerChannel int               `json:"bitsPerChannel"`
	ActiveItem     string            `json:"activeItem,omitempty"`
	Items          []projectItemView `json:"items"`
	ItemCounts     itemCounts        `json:"itemCounts"`
}

func (s *service) getProjectInfo(_ context.Context, _ registry.Args) registry.Outcome {
	return s.view(func(p *Project) (any, error) {
		info := projectInfoView{
			Status:         statusSuccess,
			ProjectName:    p.Name,
			Path:           p.Path,
			NumItems:       len(p.Items),
			BitsPerChannel: p.BitsPerChannel,
			Items:          []projectItemView{},
		}
		if a := p.Active(); a != nil {
			info.ActiveItem = a.Name
		}
		for i, c := range p.Items {
			info.ItemCounts.Compositions++
			if i < maxListedItems {
				info.Items = append(info.Items, projectItemView{ID: c.ID, Name: c.Name, Type: "Composition"})
			}
		}
		return info, nil
	})
}

type compSummaryView struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Duration  float64 `json:"duration"`
	FrameRate float64 `json:"frameRate"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	NumLayers int     `json:"numLayers"`
}

type compositionListView struct {
	Status       string            `json:"status"`
	Compositions []compSummaryView `json:"compositions"`
}

func (s *service) listCompositions(_ context.Context, _ registry.Args) registry.Outcome {
	return s.view(func(p *Project) (any, error) {
		out := compositionListView{Status: statusSuccess, Compositions: []compSummaryView{}}
		for _, c := range p.Items {
			out.Compositions = append(out.Compositions, compSummaryView{
				ID:        c.ID,
				Name:      c.Name,
				Duration:  c.Duration,
				FrameRate: c.FrameRate,
				Width:     c.Width,
				Height:    c.Height,
				NumLayers: len(c.Layers),
			})
		}
		return out, nil
	})
}

type layerSummaryView struct {
	Index      int       `json:"index"`
	Name       string    `json:"name"`
	Type       LayerType `json:"type"`
	Enabled    bool      `json:"enabled"`
	Locked     bool      `json:"locked"`
	InPoint    float64   `json:"inPoint"`
	OutPoint   float64   `json:"outPoint"`
	NumEffects int       `json:"numEffects"`
}

type layerListView struct {
	Status      string             `json:"status"`
	Composition string             `json:"composition"`
	Layers      []layerSummaryView `json:"layers"`
}

// getLayerInfo lists the layers of compName, or of the active composition.
func (s *service) getLayerInfo(_ context.Context, args registry.Args) registry.Outcome {
	return s.view(func(p *Project) (any, error) {
		c, err := p.FindComposition(argString(args, "compName", ""))
		if err != nil {
			return nil, errNoActiveComposition
		}
		out := layerListView{Status: statusSuccess, Composition: c.Name, Layers: []layerSummaryView{}}
		for _, l := range c.Layers {
			out.Layers = append(out.Layers, layerSummaryView{
				Index:      l.Index,
				Name:       l.Name,
				Type:       l.Type,
				Enabled:    l.Enabled,
				Locked:     l.Locked,
				InPoint:    l.InPoint,
				OutPoint:   l.OutPoint,
				NumEffects: len(l.Effects),
			})
		}
		return out, nil
	})
}
