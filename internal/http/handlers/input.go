package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// rawInput collects the named fields from a JSON body, or from the query
// string and urlencoded form, without flattening their shape:
//
//	user=alice          -> "alice"
//	user=a&user=b       -> []string{"a", "b"}
//	user[]=a            -> []string{"a"}
//	user[$ne]=x         -> map[string]any{"$ne": "x"}
//
// Shape is preserved so the validator can reject anything that is not a
// plain string.
func rawInput(ctx *gin.Context, fields ...string) map[string]any {
	out := make(map[string]any, len(fields))

	if strings.HasPrefix(ctx.ContentType(), "application/json") {
		var body map[string]any
		if err := ctx.ShouldBindJSON(&body); err != nil {
			return out
		}
		for _, f := range fields {
			if v, ok := body[f]; ok {
				out[f] = v
			}
		}
		return out
	}

	for _, f := range fields {
		if v := rawValue(ctx, f); v != nil {
			out[f] = v
		}
	}
	return out
}

func rawValue(ctx *gin.Context, field string) any {
	if m, ok := ctx.GetPostFormMap(field); ok {
		return toAnyMap(m)
	}
	if m, ok := ctx.GetQueryMap(field); ok {
		return toAnyMap(m)
	}

	if vs, ok := ctx.GetPostFormArray(field + "[]"); ok {
		return vs
	}
	if vs, ok := ctx.GetQueryArray(field + "[]"); ok {
		return vs
	}

	if vs, ok := ctx.GetPostFormArray(field); ok {
		return collapse(vs)
	}
	if vs, ok := ctx.GetQueryArray(field); ok {
		return collapse(vs)
	}

	return nil
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func collapse(vs []string) any {
	if len(vs) == 1 {
		return vs[0]
	}
	return vs
}
