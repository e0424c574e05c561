package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/conduit/internal/ir"
)

// Compile turns a built CUE value into a Catalog. Schema files named by each
// topic are read from schemas. Every check that can fail is a *ConfigError.
//
// The value is the whole catalog document:
//
//	topic: system_registered: {
//		schema: "schemas/system_registered.schema.json"
//		index: ["payload.owner"]
//		operation: getSystemRegistered: {
//			cardinality: "singleton"
//			filter: id: "{{id}}"
//		}
//	}
func Compile(v cue.Value, schemas fs.FS) (*Catalog, error) {
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	topicsVal := v.LookupPath(cue.ParsePath("topic"))
	if !topicsVal.Exists() {
		return nil, &ConfigError{Code: ErrCodeMissingField, Field: "topic", Message: "catalog declares no topics", Pos: v.Pos()}
	}

	iter, err := topicsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	// Repeated labels unify in CUE, so names are unique by construction and
	// conflicting redeclarations already failed Validate.
	cat := &Catalog{}
	for iter.Next() {
		topic, err := compileTopic(iter.Label(), iter.Value(), schemas)
		if err != nil {
			return nil, err
		}
		cat.Topics = append(cat.Topics, *topic)
	}

	if len(cat.Topics) == 0 {
		return nil, &ConfigError{Code: ErrCodeMissingField, Field: "topic", Message: "catalog declares no topics", Pos: topicsVal.Pos()}
	}
	return cat, nil
}

func compileTopic(name string, v cue.Value, schemas fs.FS) (*Topic, error) {
	field := "topic." + name
	topic := &Topic{Name: name}

	schemaVal := v.LookupPath(cue.ParsePath("schema"))
	if !schemaVal.Exists() {
		return nil, &ConfigError{Code: ErrCodeMissingField, Field: field + ".schema", Message: "schema is required", Pos: v.Pos()}
	}
	schemaFile, err := schemaVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	data, err := fs.ReadFile(schemas, schemaFile)
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeMissingSchema, Field: field + ".schema", Message: err.Error(), Pos: schemaVal.Pos()}
	}
	topic.SchemaFile = schemaFile
	topic.Schema = data

	indexVal := v.LookupPath(cue.ParsePath("index"))
	if indexVal.Exists() {
		list, err := indexVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			path, err := list.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			if err := ir.ValidFieldPath(path); err != nil || path == ir.IDField {
				msg := fmt.Sprintf("index path %q must start with %q", path, ir.PayloadPrefix)
				if err != nil {
					msg = err.Error()
				}
				return nil, &ConfigError{Code: ErrCodeInvalidFieldPath, Field: field + ".index", Message: msg, Pos: list.Value().Pos()}
			}
			topic.Index = append(topic.Index, path)
		}
	}

	opsVal := v.LookupPath(cue.ParsePath("operation"))
	if !opsVal.Exists() {
		return topic, nil
	}
	ops, err := opsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for ops.Next() {
		opName := ops.Label()
		op, err := compileOperation(field+".operation."+opName, opName, ops.Value())
		if err != nil {
			return nil, err
		}
		topic.Operations = append(topic.Operations, *op)
	}
	return topic, nil
}

func compileOperation(field, name string, v cue.Value) (*Operation, error) {
	op := &Operation{Name: name}

	cardVal := v.LookupPath(cue.ParsePath("cardinality"))
	if !cardVal.Exists() {
		return nil, &ConfigError{Code: ErrCodeMissingField, Field: field + ".cardinality", Message: "cardinality is required", Pos: v.Pos()}
	}
	cardStr, err := cardVal.String()
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeInvalidCardinality, Field: field + ".cardinality", Message: err.Error(), Pos: cardVal.Pos()}
	}
	card, err := ir.ParseCardinality(cardStr)
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeInvalidCardinality, Field: field + ".cardinality", Message: err.Error(), Pos: cardVal.Pos()}
	}
	op.Cardinality = card

	op.Filter = ir.IRObject{}
	filterVal := v.LookupPath(cue.ParsePath("filter"))
	if filterVal.Exists() {
		iter, err := filterVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			path := iter.Label()
			if err := ir.ValidFieldPath(path); err != nil || strings.Contains(path, "{{") {
				msg := fmt.Sprintf("filter key %q must not contain a placeholder", path)
				if err != nil {
					msg = err.Error()
				}
				return nil, &ConfigError{Code: ErrCodeInvalidFieldPath, Field: field + ".filter", Message: msg, Pos: iter.Value().Pos()}
			}
			val, err := templateValue(field+".filter."+path, iter.Value())
			if err != nil {
				return nil, err
			}
			if _, ok := val.(ir.IRString); path == "id" && !ok {
				return nil, &ConfigError{Code: ErrCodeInvalidIDFilter, Field: field + ".filter.id",
					Message: "event ids are strings; the id filter must be a string or a placeholder", Pos: iter.Value().Pos()}
			}
			op.Filter[path] = val
		}
	}

	params, err := Params(op.Filter)
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeMalformedPlaceholder, Field: field + ".filter", Message: err.Error(), Pos: filterVal.Pos()}
	}
	op.Params = params
	return op, nil
}

// templateValue converts a concrete CUE value into a template leaf or
// container. Floats are forbidden so filter literals stay canonical.
func templateValue(field string, v cue.Value) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if _, err := ParseTemplate(s); err != nil {
			return nil, &ConfigError{Code: ErrCodeMalformedPlaceholder, Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for i := 0; list.Next(); i++ {
			elem, err := templateValue(fmt.Sprintf("%s[%d]", field, i), list.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			elem, err := templateValue(field+"."+iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &ConfigError{Code: ErrCodeFloatForbidden, Field: field, Message: "float literals are forbidden in filters - use int", Pos: v.Pos()}
	default:
		return nil, &ConfigError{Code: ErrCodeLoadFailed, Field: field, Message: fmt.Sprintf("filter value must be concrete, got %v", v.IncompleteKind()), Pos: v.Pos()}
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Code: ErrCodeLoadFailed, Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	ce := &ConfigError{Code: ErrCodeLoadFailed, Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

// configError unwraps err into a *ConfigError or wraps it as a load failure.
func configError(err error) error {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return err
	}
	return &ConfigError{Code: ErrCodeLoadFailed, Message: err.Error()}
}
