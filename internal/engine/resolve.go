package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/conduit/internal/catalog"
	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/search"
)

// Resolve substitutes args into op's filter template and returns the
// concrete filter. It does not touch storage.
func Resolve(op catalog.Operation, args ir.IRObject) (search.Filter, error) {
	filter := make(search.Filter, len(op.Filter))
	for _, path := range op.Filter.SortedKeys() {
		v, err := substitute(op.Filter[path], args)
		if err != nil {
			if re, ok := asResolutionError(err); ok {
				re.Operation = op.Name
			}
			return nil, err
		}
		filter[path] = v
	}
	return filter, nil
}

func substitute(tmpl ir.IRValue, args ir.IRObject) (ir.IRValue, error) {
	switch v := tmpl.(type) {
	case ir.IRString:
		return substituteString(string(v), args)
	case ir.IRArray:
		out := make(ir.IRArray, len(v))
		for i, elem := range v {
			s, err := substitute(elem, args)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	case ir.IRObject:
		out := make(ir.IRObject, len(v))
		for _, k := range v.SortedKeys() {
			s, err := substitute(v[k], args)
			if err != nil {
				return nil, err
			}
			out[k] = s
		}
		return out, nil
	default:
		return tmpl, nil
	}
}

func substituteString(s string, args ir.IRObject) (ir.IRValue, error) {
	segs, err := catalog.ParseTemplate(s)
	if err != nil {
		return nil, &ResolutionError{Code: ErrCodeMalformedTemplate, Message: err.Error()}
	}

	if name, ok := catalog.WholePlaceholder(segs); ok {
		arg, ok := args[name]
		if !ok {
			return nil, missingArgument(name)
		}
		if arg == nil {
			return ir.IRNull{}, nil
		}
		return arg, nil
	}

	var b strings.Builder
	for _, seg := range segs {
		if seg.Param == "" {
			b.WriteString(seg.Text)
			continue
		}
		arg, ok := args[seg.Param]
		if !ok {
			return nil, missingArgument(seg.Param)
		}
		switch arg.(type) {
		case ir.IRArray, ir.IRObject:
			return nil, &ResolutionError{
				Code:     ErrCodeInvalidArgument,
				Message:  fmt.Sprintf("argument %q is %T and cannot be interpolated into %q", seg.Param, arg, s),
				Argument: seg.Param,
			}
		}
		b.WriteString(ir.Text(arg))
	}
	return ir.IRString(b.String()), nil
}
