// Package scene is the host side of the bridge: a small in-memory model of a
// compositing project and the handlers that operate on it.
//
// Compositions are project items addressed by name (falling back to the active
// composition) or by 1-based item index. Layers inside a composition are
// 1-based and new layers are inserted on top, so existing layers move down.
package scene

import (
	"fmt"
	"sort"
)

// LayerType classifies a layer.
type LayerType string

const (
	LayerText       LayerType = "text"
	LayerShape      LayerType = "shape"
	LayerSolid      LayerType = "solid"
	LayerAdjustment LayerType = "adjustment"
)

// Project is the root of the scene.
type Project struct {
	Name           string
	Path           string
	BitsPerChannel int
	Items          []*Composition
	ActiveID       int

	nextID int
}

// Composition is a timeline with layers.
type Composition struct {
	ID          int
	Name        string
	Width       int
	Height      int
	PixelAspect float64
	Duration    float64
	FrameRate   float64
	BgColor     []float64
	Layers      []*Layer
}

// Layer is a single layer. Index is kept in sync with its slot in the
// composition.
type Layer struct {
	Index     int
	Name      string
	Type      LayerType
	Enabled   bool
	Locked    bool
	StartTime float64
	InPoint   float64
	OutPoint  float64
	Position  []float64
	Scale     []float64
	Rotation  float64
	Opacity   float64

	Text  *TextDocument
	Shape *ShapeContents
	Solid *SolidSource

	Effects     []*Effect
	Keyframes   map[string][]Keyframe
	Expressions map[string]string
}

// TextDocument holds the source text of a text layer.
type TextDocument struct {
	Text          string
	FontFamily    string
	FontSize      float64
	FillColor     []float64
	Justification string
}

// ShapeContents is the single shape group of a shape layer.
type ShapeContents struct {
	ShapeType   string
	Size        []float64
	Points      int
	FillColor   []float64
	StrokeColor []float64
	StrokeWidth float64
}

// SolidSource is the footage behind a solid or adjustment layer.
type SolidSource struct {
	Color  []float64
	Width  int
	Height int
}

// Effect is one entry of a layer's effect stack.
type Effect struct {
	Index     int
	Name      string
	MatchName string
	Settings  map[string]any
}

// Keyframe is a value at a point in layer time.
type Keyframe struct {
	Time  float64 `json:"time"`
	Value any     `json:"value"`
}

// NewProject returns an empty project.
func NewProject(name string) *Project {
	if name == "" {
		name = DefaultProjectName
	}
	return &Project{Name: name, BitsPerChannel: 8, nextID: 1}
}

// AddComposition appends c as a project item, assigns its id and makes it the
// active composition.
func (p *Project) AddComposition(c *Composition) *Composition {
	if p.nextID == 0 {
		p.nextID = 1
	}
	c.ID = p.nextID
	p.nextID++
	p.Items = append(p.Items, c)
	p.ActiveID = c.ID
	return c
}

// Active returns the active composition, or nil.
func (p *Project) Active() *Composition {
	for _, c := range p.Items {
		if c.ID == p.ActiveID {
			return c
		}
	}
	return nil
}

// FindComposition looks a composition up by name and falls back to the active
// one when the name is empty or unknown.
func (p *Project) FindComposition(name string) (*Composition, error) {
	if name != "" {
		for _, c := range p.Items {
			if c.Name == name {
				return c, nil
			}
		}
	}
	if c := p.Active(); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("No composition found with name '%s' and no active composition", name)
}

// CompositionAt returns the project item at 1-based index.
func (p *Project) CompositionAt(index int) (*Composition, error) {
	if index < 1 || index > len(p.Items) {
		return nil, fmt.Errorf("Composition not found at index %d", index)
	}
	return p.Items[index-1], nil
}

// AddLayer inserts l on top of the layer stack.
func (c *Composition) AddLayer(l *Layer) *Layer {
	c.Layers = append([]*Layer{l}, c.Layers...)
	c.reindex()
	return l
}

// Layer returns the layer at 1-based index.
func (c *Composition) Layer(index int) (*Layer, error) {
	if index < 1 || index > len(c.Layers) {
		return nil, fmt.Errorf("Layer not found at index %d in composition '%s'", index, c.Name)
	}
	return c.Layers[index-1], nil
}

// LayerByName returns the topmost layer called name.
func (c *Composition) LayerByName(name string) (*Layer, bool) {
	for _, l := range c.Layers {
		if l.Name == name {
			return l, true
		}
	}
	return nil, false
}

func (c *Composition) reindex() {
	for i, l := range c.Layers {
		l.Index = i + 1
	}
}

// AddEffect appends e to the layer's effect stack.
func (l *Layer) AddEffect(e *Effect) *Effect {
	e.Index = len(l.Effects) + 1
	if e.Settings == nil {
		e.Settings = map[string]any{}
	}
	l.Effects = append(l.Effects, e)
	return e
}

// SetKeyframe adds or replaces the keyframe at time for property and returns
// the number of keys on it.
func (l *Layer) SetKeyframe(property string, time float64, value any) int {
	if l.Keyframes == nil {
		l.Keyframes = map[string][]Keyframe{}
	}
	keys := l.Keyframes[property]
	for i := range keys {
		if keys[i].Time == time {
			keys[i].Value = value
			l.Keyframes[property] = keys
			return len(keys)
		}
	}
	keys = append(keys, Keyframe{Time: time, Value: value})
	sort.Slice(keys, func(i, j int) bool { return keys[i].Time < keys[j].Time })
	l.Keyframes[property] = keys
	return len(keys)
}

// SetExpression sets the expression on property; an empty expression
// removes it.
func (l *Layer) SetExpression(property, expr string) {
	if expr == "" {
		delete(l.Expressions, property)
		return
	}
	if l.Expressions == nil {
		l.Expressions = map[string]string{}
	}
	l.Expressions[property] = expr
}
