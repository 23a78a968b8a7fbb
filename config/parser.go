package config

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-trade-client/types"
)

// Parser resolves dotted paths against the YAML view of a loaded config.
// Numeric segments index into lists: "poller.jobs.0.operation".
type Parser struct {
	root yaml.Node
}

func NewParser(config *types.ClientConfig) *Parser {
	parser := &Parser{}

	raw, err := yaml.Marshal(config)
	if err != nil {
		return parser
	}

	var doc yaml.Node
	if err = yaml.Unmarshal(raw, &doc); err == nil && len(doc.Content) > 0 {
		parser.root = *doc.Content[0]
	}

	return parser
}

// Lookup returns the node at path and whether it exists. The empty path is
// the whole document.
func (p *Parser) Lookup(path string) (*yaml.Node, bool) {
	node := &p.root
	if node.Kind == 0 {
		return nil, false
	}
	if path == "" {
		return node, true
	}

	for _, segment := range strings.Split(path, ".") {
		next, ok := child(node, segment)
		if !ok {
			return nil, false
		}
		node = next
	}

	if node.Tag == "!!null" {
		return nil, false
	}
	return node, true
}

func (p *Parser) GetValue(path string, defaultValue interface{}) interface{} {
	node, ok := p.Lookup(path)
	if !ok {
		return defaultValue
	}

	var value interface{}
	if err := node.Decode(&value); err != nil {
		return defaultValue
	}
	return value
}

func (p *Parser) GetAs(path string, target interface{}) error {
	node, ok := p.Lookup(path)
	if !ok {
		return types.Errorf(types.ErrConfigNotFound, "path: %s", path)
	}

	if err := node.Decode(target); err != nil {
		return types.Errorf(types.ErrConfigParseFailed, "path %s: %v", path, err)
	}
	return nil
}

func child(node *yaml.Node, segment string) (*yaml.Node, bool) {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == segment {
				return node.Content[i+1], true
			}
		}
	case yaml.SequenceNode:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(node.Content) {
			return nil, false
		}
		return node.Content[index], true
	}
	return nil, false
}
