package provider

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLFile implements a configuration provider backed by a YAML document.
// Nested mappings are flattened into configuration paths so the document
//
//	transport:
//	  http:
//	    port: 8080
//	service:
//	  maxinputlen: 512
//
// provides the values "transport/http/port" = "8080" and
// "service/maxinputlen" = "512". Sequence items are addressed by their index
// ("hosts/0", "hosts/1"). The document is read once; Watch is a no-op.
type YAMLFile struct {
	values map[string]string
}

// NewYAMLFile loads the YAML document stored at filename.
func NewYAMLFile(filename string) (*YAMLFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	p, err := NewYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return p, nil
}

// NewYAML creates a provider from an in-memory YAML document.
func NewYAML(data []byte) (*YAMLFile, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml configuration: %w", err)
	}

	p := &YAMLFile{values: make(map[string]string)}
	switch doc.(type) {
	case nil, map[string]interface{}:
	default:
		return nil, fmt.Errorf("invalid yaml configuration: expected a mapping at the document root")
	}
	flatten("", doc, p.values)
	return p, nil
}

// Get returns the values stored at or below path keyed by their full path.
func (p *YAMLFile) Get(path string) map[string]string {
	path = strings.Trim(path, "/")
	cfg := make(map[string]string)
	for k, v := range p.values {
		if path == "" || k == path || strings.HasPrefix(k, path+"/") {
			cfg[k] = v
		}
	}
	return cfg
}

// Watch is a no-op; configuration files are only read when loaded.
func (p *YAMLFile) Watch(path string, valueSetter func(string, map[string]string)) func() {
	return func() {}
}

func flatten(prefix string, node interface{}, out map[string]string) {
	join := func(segment string) string {
		if prefix == "" {
			return segment
		}
		return prefix + "/" + segment
	}

	switch v := node.(type) {
	case map[string]interface{}:
		for k, child := range v {
			flatten(join(strings.Trim(k, "/")), child, out)
		}
	case []interface{}:
		for i, child := range v {
			flatten(join(strconv.Itoa(i)), child, out)
		}
	case nil:
		if prefix != "" {
			out[prefix] = ""
		}
	default:
		out[prefix] = fmt.Sprint(v)
	}
}
