package scene

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mattjoyce/aebridge/internal/registry"
)

// Argument helpers follow the host scripting convention: a missing, zero or
// unparsable value falls back to the default.

func argString(args registry.Args, key, def string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return def
}

func argNumber(args registry.Args, key string) (float64, bool) {
	return number(args[key])
}

func number(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func argFloat(args registry.Args, key string, def float64) float64 {
	if f, ok := argNumber(args, key); ok && f != 0 && !math.IsNaN(f) {
		return f
	}
	return def
}

func argInt(args registry.Args, key string, def int) int {
	if f, ok := argNumber(args, key); ok {
		if n := int(f); n != 0 {
			return n
		}
	}
	return def
}

func argBool(args registry.Args, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func argVector(args registry.Args, key string, def []float64) []float64 {
	if v, ok := vector(args[key]); ok {
		return v
	}
	return def
}

func vector(raw any) ([]float64, bool) {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := number(item)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// rgb255 reads an {r,g,b} object in 0-255 and scales it to 0-1.
func rgb255(raw any) ([]float64, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, 3)
	for i, k := range []string{"r", "g", "b"} {
		f, _ := number(m[k])
		out[i] = f / 255
	}
	return out, true
}

func argMap(args registry.Args, key string) map[string]any {
	if m, ok := args[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func present(args registry.Args, key string) bool {
	v, ok := args[key]
	return ok && v != nil
}

// layerRef resolves layerIndex, then layerName.
func layerRef(c *Composition, args registry.Args) (*Layer, error) {
	if present(args, "layerIndex") {
		f, ok := argNumber(args, "layerIndex")
		idx := int(f)
		if !ok || idx < 1 || idx > len(c.Layers) {
			return nil, fmt.Errorf("Layer index out of bounds: %v", args["layerIndex"])
		}
		return c.Layers[idx-1], nil
	}
	name := argString(args, "layerName", "")
	if name != "" {
		if l, ok := c.LayerByName(name); ok {
			return l, nil
		}
		return nil, fmt.Errorf("Layer not found: %s", name)
	}
	return nil, fmt.Errorf("Layer not found: specify layerIndex or layerName")
}
