package task

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeProperties decodes compiled properties into a runner's config
// struct. Rendered templates are strings, so scalars are converted weakly
// ("100" fills an int). Keys the struct does not declare are an error.
// Hooks let a runner accept shorthand forms of its own types.
func DecodeProperties(properties map[string]any, out any, hooks ...mapstructure.DecodeHookFunc) error {
	cfg := &mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	}
	if len(hooks) > 0 {
		cfg.DecodeHook = mapstructure.ComposeDecodeHookFunc(hooks...)
	}
	dec, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	if err := dec.Decode(properties); err != nil {
		return fmt.Errorf("invalid properties: %w", err)
	}
	return nil
}

// InvalidProperties is the Result of a runner rejecting its configuration.
func InvalidProperties(err error) Result {
	return FromError(KindDefinition, "invalid_properties", err)
}
