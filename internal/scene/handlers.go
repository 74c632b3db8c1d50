package scene

import (
	"errors"

	"github.com/mattjoyce/aebridge/internal/registry"
)

// Handlers binds every operation to host.
func Handlers(host Host) registry.Handlers {
	s := &service{host: host}
	return registry.Handlers{
		GetProjectInfo:      s.getProjectInfo,
		ListCompositions:    s.listCompositions,
		GetLayerInfo:        s.getLayerInfo,
		CreateComposition:   s.createComposition,
		UpdateComposition:   s.updateComposition,
		CreateTextLayer:     s.createTextLayer,
		CreateShapeLayer:    s.createShapeLayer,
		CreateSolidLayer:    s.createSolidLayer,
		SetLayerProperties:  s.setLayerProperties,
		SetLayerKeyframe:    s.setLayerKeyframe,
		SetLayerExpression:  s.setLayerExpression,
		ApplyEffect:         s.applyEffect,
		ApplyEffectTemplate: s.applyEffectTemplate,
	}
}

type service struct {
	host Host
}

func (s *service) view(fn func(p *Project) (any, error)) registry.Outcome {
	var out any
	err := s.host.View(func(p *Project) error {
		var err error
		out, err = fn(p)
		return err
	})
	return outcome(out, err)
}

func (s *service) update(fn func(p *Project) (any, error)) registry.Outcome {
	var out any
	err := s.host.Update(func(p *Project) error {
		var err error
		out, err = fn(p)
		return err
	})
	return outcome(out, err)
}

func outcome(out any, err error) registry.Outcome {
	if err != nil {
		return registry.Failed(registry.KindHandler, err.Error())
	}
	return registry.Success(out)
}

const statusSuccess = "success"

var errNoActiveComposition = errors.New("No active composition")

type layerRefView struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

type compRefView struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}
