package protocol

import (
	"fmt"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaSet holds the compiled push-channel schemas. A nil set validates
// nothing, so deployments without the schema directory degrade to decoding
// only.
type SchemaSet struct {
	Subscribe  *jsonschema.Schema
	Subscribed *jsonschema.Schema
	Event      *jsonschema.Schema
}

func LoadSchemas(dir string) (*SchemaSet, error) {
	compile := func(name string) (*jsonschema.Schema, error) {
		return jsonschema.Compile(filepath.Join(dir, name))
	}
	var (
		s   SchemaSet
		err error
	)
	if s.Subscribe, err = compile("subscribe.schema.json"); err != nil {
		return nil, fmt.Errorf("protocol: compile subscribe schema: %w", err)
	}
	if s.Subscribed, err = compile("subscribed.schema.json"); err != nil {
		return nil, fmt.Errorf("protocol: compile subscribed schema: %w", err)
	}
	if s.Event, err = compile("event.schema.json"); err != nil {
		return nil, fmt.Errorf("protocol: compile event schema: %w", err)
	}
	return &s, nil
}

// ValidateEvent checks a decoded EVENT message. v must come from a
// json.Unmarshal into any.
func (s *SchemaSet) ValidateEvent(v any) error {
	if s == nil || s.Event == nil {
		return nil
	}
	return s.Event.Validate(v)
}

func (s *SchemaSet) ValidateSubscribe(v any) error {
	if s == nil || s.Subscribe == nil {
		return nil
	}
	return s.Subscribe.Validate(v)
}
