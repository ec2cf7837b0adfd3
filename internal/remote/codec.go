package remote

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

// ErrPayload is returned for a request or response that does not decode.
var ErrPayload = errors.New("remote: malformed payload")

// Field names of the Act request and response structs.
const (
	fieldState  = "state"
	fieldInput  = "input"
	fieldAction = "action"
	fieldDType  = "dtype"
	fieldShape  = "shape"
	fieldData   = "data"
)

// #region encode
// EncodeTensor converts t to {"dtype", "shape", "data"}.
func EncodeTensor(t *tensor.Tensor) *structpb.Value {
	shape := make([]*structpb.Value, 0, t.Rank())
	for _, d := range t.Shape() {
		shape = append(shape, structpb.NewNumberValue(float64(d)))
	}
	values := t.Data()
	data := make([]*structpb.Value, len(values))
	for i, v := range values {
		data[i] = structpb.NewNumberValue(v)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		fieldDType: structpb.NewStringValue(t.DType().String()),
		fieldShape: structpb.NewListValue(&structpb.ListValue{Values: shape}),
		fieldData:  structpb.NewListValue(&structpb.ListValue{Values: data}),
	}})
}

// EncodeTensors converts ts to a list value.
func EncodeTensors(ts []*tensor.Tensor) *structpb.Value {
	out := make([]*structpb.Value, len(ts))
	for i, t := range ts {
		out[i] = EncodeTensor(t)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: out})
}

// #endregion encode

// #region decode
// DecodeTensor is the inverse of EncodeTensor.
func DecodeTensor(v *structpb.Value) (*tensor.Tensor, error) {
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("%w: tensor is not a struct", ErrPayload)
	}
	dtype, err := tensor.ParseDType(s.GetFields()[fieldDType].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	shapeValues := s.GetFields()[fieldShape].GetListValue().GetValues()
	shape := make([]int, len(shapeValues))
	for i, d := range shapeValues {
		shape[i] = int(d.GetNumberValue())
	}
	dataValues := s.GetFields()[fieldData].GetListValue().GetValues()
	data := make([]float64, len(dataValues))
	for i, x := range dataValues {
		data[i] = x.GetNumberValue()
	}
	t, err := tensor.New(dtype, shape, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	return t, nil
}

// DecodeTensors is the inverse of EncodeTensors.
func DecodeTensors(v *structpb.Value) ([]*tensor.Tensor, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: expected a tensor list", ErrPayload)
	}
	out := make([]*tensor.Tensor, len(list.GetValues()))
	for i, x := range list.GetValues() {
		t, err := DecodeTensor(x)
		if err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// #endregion decode
