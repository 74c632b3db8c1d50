// Package registry maps the closed set of host operations onto handler
// functions. Dispatch is total: unknown names, missing handlers and handler
// panics all come back as a failure Outcome.
package registry

// Operation names one host operation.
type Operation string

const (
	OpGetProjectInfo      Operation = "getProjectInfo"
	OpListCompositions    Operation = "listCompositions"
	OpGetLayerInfo        Operation = "getLayerInfo"
	OpCreateComposition   Operation = "createComposition"
	OpUpdateComposition   Operation = "updateComposition"
	OpCreateTextLayer     Operation = "createTextLayer"
	OpCreateShapeLayer    Operation = "createShapeLayer"
	OpCreateSolidLayer    Operation = "createSolidLayer"
	OpSetLayerProperties  Operation = "setLayerProperties"
	OpSetLayerKeyframe    Operation = "setLayerKeyframe"
	OpSetLayerExpression  Operation = "setLayerExpression"
	OpApplyEffect         Operation = "applyEffect"
	OpApplyEffectTemplate Operation = "applyEffectTemplate"
)

var operations = []Operation{
	OpGetProjectInfo,
	OpListCompositions,
	OpGetLayerInfo,
	OpCreateComposition,
	OpUpdateComposition,
	OpCreateTextLayer,
	OpCreateShapeLayer,
	OpCreateSolidLayer,
	OpSetLayerProperties,
	OpSetLayerKeyframe,
	OpSetLayerExpression,
	OpApplyEffect,
	OpApplyEffectTemplate,
}

// Operations returns every supported operation in declaration order.
func Operations() []Operation {
	out := make([]Operation, len(operations))
	copy(out, operations)
	return out
}

// ParseOperation validates name against the closed set.
func ParseOperation(name string) (Operation, bool) {
	for _, op := range operations {
		if string(op) == name {
			return op, true
		}
	}
	return "", false
}

// Access is a coarse permission hint, the same split the API uses for scopes.
type Access string

const (
	AccessRead  Access = "read"
	AccessWrite Access = "write"
)

// Access classifies op as read-only or mutating.
func (op Operation) Access() Access {
	switch op {
	case OpGetProjectInfo, OpListCompositions, OpGetLayerInfo:
		return AccessRead
	default:
		return AccessWrite
	}
}
