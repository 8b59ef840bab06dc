package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts any JSON-encodable value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal struct: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert struct: %w", err)
	}
	return out, nil
}

// FromStruct decodes a Struct into v through its JSON form.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("empty response")
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	return nil
}
