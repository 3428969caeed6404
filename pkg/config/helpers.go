package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blackarch/wordlistctl/pkg/errors"
)

// SetValue sets a configuration value by dotted key, e.g. "settings.workers"
// or "retry.interval". The value is parsed with YAML scalar rules so durations
// ("5s"), sizes ("10MB") and booleans are accepted as written in the file.
func (c *Config) SetValue(key, value string) error {
	if _, ok := c.ToMap()[key]; !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	scalar := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	var doc *yaml.Node
	if section, field, ok := strings.Cut(key, "."); ok {
		doc = &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: section},
			{Kind: yaml.MappingNode, Content: []*yaml.Node{
				{Kind: yaml.ScalarNode, Value: field},
				scalar,
			}},
		}}
	} else {
		doc = &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: key},
			scalar,
		}}
	}

	updated := *c
	if err := doc.Decode(&updated); err != nil {
		return errors.Wrapf(errors.ErrConfigParse, "invalid value for %s: %s", key, value)
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	*c = updated
	return nil
}

// GetValue returns the value for a dotted key as a string.
func (c *Config) GetValue(key string) (string, error) {
	value, ok := c.ToMap()[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return value, nil
}

// Keys returns the sorted dotted keys understood by SetValue and GetValue.
func (c *Config) Keys() []string {
	m := c.ToMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToMap flattens scalar configuration values into "section.key" entries.
// This is useful for displaying the configuration.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)
	flatten(reflect.ValueOf(*c), "", result)
	return result
}

func flatten(v reflect.Value, prefix string, out map[string]string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		name := strings.Split(field.Tag.Get("yaml"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}

		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Struct:
			if prefix == "" {
				flatten(fv, name, out)
			}
		case reflect.Slice:
			// lists such as resolver.rules are edited in the file only
		default:
			out[name] = fmt.Sprint(fv.Interface())
		}
	}
}
