package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// keyKinds lists the settable keys and the scalar kind each expects.
var keyKinds = map[string]string{
	"llm.base_url":          "string",
	"llm.api_key":           "env",
	"llm.model":             "string",
	"llm.max_tokens":        "int",
	"llm.temperature":       "float",
	"agent.max_tool_calls":  "int",
	"agent.timeout":         "duration",
	"agent.note":            "string",
	"grade.use_filter":      "bool",
	"grade.use_multiplier":  "bool",
	"grade.rules":           "string",
	"sessions.enabled":      "bool",
	"sessions.max_age_days": "int",
	"sessions.max_count":    "int",
	"sessions.path":         "string",
	"debug.log_dir":         "string",
	"theme.primary":         "string",
	"theme.secondary":       "string",
	"theme.success":         "string",
	"theme.error":           "string",
	"theme.muted":           "string",
	"theme.spinner":         "string",
}

// Keys returns the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(keyKinds))
	for k := range keyKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateValue checks value against the kind expected for key.
func ValidateValue(key, value string) error {
	kind, ok := keyKinds[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	var probe any
	switch kind {
	case "env":
		if value != "" && !strings.HasPrefix(value, "$") {
			return fmt.Errorf("%s only accepts an environment reference such as ${%s}", key, APIKeyEnv)
		}
		return nil
	case "int":
		probe = new(int)
	case "float":
		probe = new(float64)
	case "bool":
		probe = new(bool)
	case "duration":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return nil
	default:
		return nil
	}
	if err := yaml.Unmarshal([]byte(value), probe); err != nil {
		return fmt.Errorf("invalid %s value for %s: %q", kind, key, value)
	}
	return nil
}

// SetValue writes key = value into the YAML file at path, creating the
// file when missing and keeping existing comments.
func SetValue(path, key, value string) error {
	if err := ValidateValue(key, value); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	root, err := readDocument(path)
	if err != nil {
		return err
	}
	if err := setYAMLValue(root, strings.Split(key, "."), value, keyKinds[key]); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// GetValue returns the scalar stored at key in the file at path.
func GetValue(path, key string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config file does not exist")
		}
		return "", fmt.Errorf("failed to read config: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return "", fmt.Errorf("failed to parse config: %w", err)
	}
	return getYAMLValue(&root, strings.Split(key, "."))
}

func readDocument(path string) (*yaml.Node, error) {
	empty := &yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{{Kind: yaml.MappingNode}},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return empty, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root.Kind == 0 {
		return empty, nil
	}
	return &root, nil
}

func scalarTag(kind string) string {
	switch kind {
	case "int":
		return "!!int"
	case "float":
		return "!!float"
	case "bool":
		return "!!bool"
	}
	return "!!str"
}

// setYAMLValue navigates/creates the path in a yaml.Node tree and sets the value
func setYAMLValue(root *yaml.Node, path []string, value, kind string) error {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("invalid document structure")
	}

	current := root.Content[0]
	if current.Kind != yaml.MappingNode {
		return fmt.Errorf("root is not a mapping")
	}

	for i, part := range path {
		isLast := i == len(path)-1

		found := false
		for j := 0; j < len(current.Content); j += 2 {
			if current.Content[j].Value != part {
				continue
			}
			if isLast {
				valueNode := current.Content[j+1]
				valueNode.Kind = yaml.ScalarNode
				valueNode.Value = value
				valueNode.Tag = scalarTag(kind)
				valueNode.Style = 0
				valueNode.Content = nil
			} else {
				current = current.Content[j+1]
				if current.Kind != yaml.MappingNode {
					current.Kind = yaml.MappingNode
					current.Content = nil
					current.Value = ""
					current.Tag = ""
				}
			}
			found = true
			break
		}
		if found {
			continue
		}

		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: part}
		if isLast {
			current.Content = append(current.Content, keyNode, &yaml.Node{
				Kind:  yaml.ScalarNode,
				Tag:   scalarTag(kind),
				Value: value,
			})
		} else {
			mapping := &yaml.Node{Kind: yaml.MappingNode}
			current.Content = append(current.Content, keyNode, mapping)
			current = mapping
		}
	}
	return nil
}

// getYAMLValue navigates the yaml.Node tree and returns the value at path
func getYAMLValue(root *yaml.Node, path []string) (string, error) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return "", fmt.Errorf("invalid document structure")
	}

	current := root.Content[0]
	for _, part := range path {
		if current.Kind != yaml.MappingNode {
			return "", fmt.Errorf("path not found: expected mapping")
		}
		found := false
		for j := 0; j < len(current.Content); j += 2 {
			if current.Content[j].Value == part {
				current = current.Content[j+1]
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("key not found: %s", part)
		}
	}

	if current.Kind == yaml.ScalarNode {
		return current.Value, nil
	}
	return "", fmt.Errorf("value is not a scalar")
}

// DefaultContent is written by `config init`.
func DefaultContent() string {
	return `# grade-llm configuration
# Run 'grade-llm config set <key> <value>' to modify

llm:
  base_url: https://api.siliconflow.cn/v1
  api_key: ${SILICONFLOW_API_KEY}   # environment references only
  model: ""                         # empty picks a Qwen model from 'grade-llm models'
  max_tokens: 1200
  temperature: 0.6

agent:
  max_tool_calls: 6
  timeout: 3m
  # note: |
  #   我更关心专业课的表现

grade:
  use_filter: false
  use_multiplier: false
  multiplier_keywords: []
  # rules: ~/grades/rules.yaml

sessions:
  enabled: true
  # max_age_days: 90
  # max_count: 200

debug:
  log_dir: ""

# UI theme colors (ANSI 0-255 or hex #RRGGBB)
# theme:
#   primary: "10"
#   muted: "245"
#   spinner: "205"
`
}
