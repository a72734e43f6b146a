// Package observability provides metrics for generation runs and diagram rendering.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrModel   = "model"
	attrStatus  = "status"
	attrState   = "state"
	attrScheme  = "scheme"
	attrFormat  = "format"
	attrSuccess = "success"
)

func modelAttr(model string) attribute.KeyValue {
	return attribute.String(attrModel, model)
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality; 0 means the request never completed
	if code == 0 {
		return attribute.String(attrStatus, "transport")
	}
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String(attrState, state)
}

func schemeAttr(scheme string) attribute.KeyValue {
	if scheme == "" {
		scheme = "file"
	}
	return attribute.String(attrScheme, scheme)
}

func formatAttr(format string) attribute.KeyValue {
	return attribute.String(attrFormat, format)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}
