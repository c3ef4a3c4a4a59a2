package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// SpecIndex holds the engine's OpenAPI document indexed by operationId. It
// resolves the HTTP routes for the five engine operations and extracts the
// set of node kinds the document declares, which seeds the catalog.
type SpecIndex struct {
	routes map[string]route
	kinds  []string
}

// LoadSpec parses and validates the engine's OpenAPI document from a file.
func LoadSpec(path string) (*SpecIndex, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: loading spec %s: %w", path, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("engine: validating spec %s: %w", path, err)
	}
	return indexSpec(doc), nil
}

// LoadSpecData parses and validates an OpenAPI document from memory.
func LoadSpecData(data []byte) (*SpecIndex, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("engine: parsing spec: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("engine: validating spec: %w", err)
	}
	return indexSpec(doc), nil
}

func indexSpec(doc *openapi3.T) *SpecIndex {
	idx := &SpecIndex{routes: make(map[string]route)}

	for path, pathItem := range doc.Paths.Map() {
		for method, op := range pathItem.Operations() {
			if op.OperationID == "" {
				continue
			}
			idx.routes[op.OperationID] = route{
				method: method,
				// The engine spec uses {externalId}; the client substitutes {id}.
				pathTemplate: normalizePathParams(path),
			}
		}
	}

	idx.kinds = extractNodeKinds(doc)
	return idx
}

// Route returns the method and path template for the given operationId.
func (idx *SpecIndex) Route(operationID string) (method, pathTemplate string, ok bool) {
	r, found := idx.routes[operationID]
	if !found {
		return "", "", false
	}
	return r.method, r.pathTemplate, true
}

// NodeKinds returns the node kinds declared by the spec, sorted. Empty when
// the document declares none.
func (idx *SpecIndex) NodeKinds() []string {
	out := make([]string, len(idx.kinds))
	copy(out, idx.kinds)
	return out
}

// normalizePathParams rewrites any single path parameter referring to the
// artifact id into the {id} placeholder the client substitutes.
func normalizePathParams(path string) string {
	for _, alias := range []string{"{externalId}", "{external_id}", "{artifactId}", "{artifact_id}"} {
		path = strings.ReplaceAll(path, alias, "{id}")
	}
	return path
}

// extractNodeKinds scans component schemas for an enumerated node kind
// property. The engine documents its supported kinds as the enum of
// Node.kind (or a standalone NodeKind schema).
func extractNodeKinds(doc *openapi3.T) []string {
	if doc.Components == nil {
		return nil
	}

	seen := make(map[string]bool)
	collect := func(schema *openapi3.Schema) {
		if schema == nil {
			return
		}
		for _, v := range schema.Enum {
			if s, ok := v.(string); ok && s != "" {
				seen[s] = true
			}
		}
	}

	for name, ref := range doc.Components.Schemas {
		if ref.Value == nil {
			continue
		}
		if name == "NodeKind" {
			collect(ref.Value)
			continue
		}
		if kindProp, ok := ref.Value.Properties["kind"]; ok && kindProp.Value != nil {
			collect(kindProp.Value)
		}
	}

	if len(seen) == 0 {
		return nil
	}
	kinds := make([]string, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
