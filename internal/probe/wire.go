package probe

import (
	"fmt"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/sexp"
)

// 进程外探针的请求为 (action subtype [object])，响应为 (status message [cobj])

func encodeRequest(subtype oval.Subtype, req Request) (*sexp.Value, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidAction)
	}
	v := sexp.List(sexp.Int(int64(req.Action())), sexp.String(string(subtype)))
	if r, ok := req.(EvalRequest); ok {
		obj, err := ObjectValue(r.Object)
		if err != nil {
			return nil, err
		}
		v.Append(obj)
	}
	return v, nil
}

func decodeRequest(v *sexp.Value) (Action, oval.Subtype, *sexp.Value, error) {
	code, ok := v.Nth(0).Int64()
	subtype, ok2 := v.Nth(1).Str()
	if !ok || !ok2 {
		return 0, "", nil, fmt.Errorf("%w: malformed request %s", ErrInvalid, v)
	}
	return Action(code), oval.Subtype(subtype), v.Nth(2), nil
}

func encodeResponse(err error, cobj *Cobj) *sexp.Value {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	v := sexp.List(sexp.Int(int64(StatusOf(err))), sexp.String(msg))
	if err == nil && cobj != nil {
		v.Append(cobj.Value())
	}
	return v
}

func decodeResponse(v *sexp.Value) (*Cobj, error) {
	code, ok := v.Nth(0).Int64()
	if !ok {
		return nil, fmt.Errorf("%w: malformed response %s", ErrFatal, v)
	}
	if err := Status(code).Err(); err != nil {
		msg, _ := v.Nth(1).Str()
		return nil, fmt.Errorf("%w (remote: %s)", err, msg)
	}
	if v.Nth(2) == nil {
		return nil, nil
	}
	return CobjFromValue(v.Nth(2))
}
