package loader

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// bodyKey holds element text instead of an attribute.
const bodyKey = "body"

// elementNames renames child keys that would collide with an attribute of
// the same element ("id" is both a result map's name and its id mappings).
var elementNames = map[string]string{
	"id-result": "id",
}

func elementName(key string) string {
	if name, ok := elementNames[key]; ok {
		return name
	}
	return key
}

// ParseYAML converts a YAML document into a fragment tree. A mapping is a
// fragment, scalar values are attributes, a nested mapping is one child named
// by its key and a sequence of mappings is one child per item. A sequence of
// scalars becomes a comma separated attribute. An "id-result" key yields "id"
// children. The root is named "mapper"
// when it has a namespace and "configuration" otherwise.
func ParseYAML(name string, data []byte) (*core.Fragment, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{File: name, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ParseError{File: name, Message: "empty document"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{File: name, Line: root.Line, Message: "document root must be a mapping"}
	}

	f, err := convert(name, "configuration", root)
	if err != nil {
		return nil, err
	}
	if _, ok := f.Attr("namespace"); ok {
		f.Name = "mapper"
	}
	return f, nil
}

func convert(file, name string, node *yaml.Node) (*core.Fragment, error) {
	f := core.NewFragment(name, nil)
	f.Line = node.Line

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		switch value.Kind {
		case yaml.ScalarNode:
			if key == bodyKey {
				f.Body = value.Value
				continue
			}
			if value.Tag != "!!null" {
				f.Attrs[key] = value.Value
			}
		case yaml.MappingNode:
			child, err := convert(file, elementName(key), value)
			if err != nil {
				return nil, err
			}
			f.Children = append(f.Children, child)
		case yaml.SequenceNode:
			if err := convertSequence(file, f, key, value); err != nil {
				return nil, err
			}
		case yaml.AliasNode:
			return nil, &ParseError{File: file, Line: value.Line, Message: fmt.Sprintf("aliases are not supported (key %q)", key)}
		}
	}
	return f, nil
}

func convertSequence(file string, parent *core.Fragment, key string, seq *yaml.Node) error {
	var scalars []string
	for _, item := range seq.Content {
		switch item.Kind {
		case yaml.MappingNode:
			child, err := convert(file, elementName(key), item)
			if err != nil {
				return err
			}
			parent.Children = append(parent.Children, child)
		case yaml.ScalarNode:
			scalars = append(scalars, item.Value)
		default:
			return &ParseError{File: file, Line: item.Line, Message: fmt.Sprintf("unsupported sequence item under %q", key)}
		}
	}
	if len(scalars) > 0 {
		if len(scalars) != len(seq.Content) {
			return &ParseError{File: file, Line: seq.Line, Message: fmt.Sprintf("sequence %q mixes scalars and mappings", key)}
		}
		parent.Attrs[key] = strings.Join(scalars, ",")
	}
	return nil
}
