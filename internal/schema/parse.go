// Type expression parsing: declarative snapshots describe field types as
// strings like "number" or "list(string)", parsed here into cty types.

package schema

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/opgraph/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// ParseType parses a type expression string into its cty.Type equivalent.
// Supported forms are the primitives (string, number, bool, any), the
// single-argument collection constructors (list, map, set) and the
// object({ key = type, ... }) constructor.
func ParseType(ctx context.Context, src string) (cty.Type, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "type", hcl.InitialPos)
	if diags.HasErrors() {
		return cty.DynamicPseudoType, fmt.Errorf("invalid type expression %q: %w", src, diags)
	}
	return typeFromExpr(ctx, expr)
}

func typeFromExpr(ctx context.Context, expr hcl.Expression) (cty.Type, error) {
	logger := ctxlog.FromContext(ctx)

	switch v := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		logger.Debug("Parsing type expression as a constructor call.", "call", v.Name)
		if v.Name == "object" {
			return objectTypeFromCall(ctx, v)
		}
		if len(v.Args) != 1 {
			return cty.DynamicPseudoType, fmt.Errorf("type constructors (list, map, set) require exactly one argument, got %d", len(v.Args))
		}

		elementType, err := typeFromExpr(ctx, v.Args[0])
		if err != nil {
			return cty.DynamicPseudoType, err
		}
		if elementType == cty.DynamicPseudoType {
			return cty.DynamicPseudoType, fmt.Errorf("collection types cannot contain type 'any'")
		}

		switch v.Name {
		case "list":
			return cty.List(elementType), nil
		case "map":
			return cty.Map(elementType), nil
		case "set":
			return cty.Set(elementType), nil
		default:
			return cty.DynamicPseudoType, fmt.Errorf("unknown type constructor function %q", v.Name)
		}

	case *hclsyntax.ScopeTraversalExpr:
		if len(v.Traversal) != 1 {
			return cty.DynamicPseudoType, fmt.Errorf("invalid type keyword: traversal path is not a single identifier")
		}
		switch name := v.Traversal.RootName(); name {
		case "string":
			return cty.String, nil
		case "number":
			return cty.Number, nil
		case "bool":
			return cty.Bool, nil
		case "any":
			return cty.DynamicPseudoType, nil
		default:
			return cty.DynamicPseudoType, fmt.Errorf("unknown primitive type %q", name)
		}

	default:
		return cty.DynamicPseudoType, fmt.Errorf("unsupported expression for type definition: %T", v)
	}
}

// objectTypeFromCall handles the object({...}) constructor, whose single
// argument must be an object literal mapping attribute names to types.
func objectTypeFromCall(ctx context.Context, call *hclsyntax.FunctionCallExpr) (cty.Type, error) {
	if len(call.Args) != 1 {
		return cty.DynamicPseudoType, fmt.Errorf("the object type constructor requires exactly one argument, got %d", len(call.Args))
	}
	lit, ok := call.Args[0].(*hclsyntax.ObjectConsExpr)
	if !ok {
		return cty.DynamicPseudoType, fmt.Errorf("the object type constructor requires an object literal argument, got %T", call.Args[0])
	}

	attrTypes := make(map[string]cty.Type, len(lit.Items))
	for _, item := range lit.Items {
		name := objectAttrName(item.KeyExpr)
		if name == "" {
			return cty.DynamicPseudoType, fmt.Errorf("invalid key in object type definition: keys must be simple identifiers or quoted strings")
		}
		attrType, err := typeFromExpr(ctx, item.ValueExpr)
		if err != nil {
			return cty.DynamicPseudoType, fmt.Errorf("in object attribute %q: %w", name, err)
		}
		attrTypes[name] = attrType
	}
	return cty.Object(attrTypes), nil
}

// objectAttrName extracts an attribute name from an object literal key,
// accepting bare identifiers and single quoted strings. Anything else
// yields the empty string.
func objectAttrName(keyExpr hclsyntax.Expression) string {
	wrapped, ok := keyExpr.(*hclsyntax.ObjectConsKeyExpr)
	if !ok {
		return ""
	}
	switch key := wrapped.Wrapped.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(key.Traversal) == 1 {
			return key.Traversal.RootName()
		}
	case *hclsyntax.TemplateExpr:
		if len(key.Parts) == 1 {
			if part, ok := key.Parts[0].(*hclsyntax.LiteralValueExpr); ok && part.Val.Type() == cty.String {
				return part.Val.AsString()
			}
		}
	}
	return ""
}
