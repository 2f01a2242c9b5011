package frontmatter

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// UpdateFields sets scalar header fields in place, keeping every other key
// and the body untouched. Content without a header gains a new one.
func UpdateFields(content []byte, updates map[string]any) ([]byte, error) {
	header, body, err := extractFrontmatterString(content)
	if err != nil {
		return nil, err
	}

	if header == "" {
		yamlBytes, err := yaml.Marshal(updates)
		if err != nil {
			return nil, fmt.Errorf("marshaling new frontmatter: %w", err)
		}

		var result bytes.Buffer
		result.WriteString("---\n")
		result.Write(yamlBytes)
		result.WriteString("---\n\n")
		result.Write(body)
		return result.Bytes(), nil
	}

	updatedYAML, err := updateFrontmatterNode([]byte(header), updates)
	if err != nil {
		return nil, err
	}

	var result bytes.Buffer
	result.WriteString("---\n")
	result.WriteString(strings.TrimSpace(string(updatedYAML)))
	result.WriteString("\n---\n")
	result.Write(body)
	return result.Bytes(), nil
}

// UpdateSidecar applies the same field updates to a bare YAML header.
func UpdateSidecar(data []byte, updates map[string]any) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return yaml.Marshal(updates)
	}
	return updateFrontmatterNode(data, updates)
}

// updateFrontmatterNode updates YAML using the Node API to preserve formatting.
func updateFrontmatterNode(yamlData []byte, updates map[string]any) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(yamlData, &root); err != nil {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}

	if len(root.Content) == 0 {
		return nil, fmt.Errorf("no YAML document found")
	}
	doc := root.Content[0]

	for key, value := range updates {
		updateNodeValue(doc, key, value)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}

	return buf.Bytes(), nil
}

// updateNodeValue updates a specific field in a YAML mapping node.
func updateNodeValue(node *yaml.Node, key string, value any) {
	if node.Kind != yaml.MappingNode {
		return
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value == key {
			valueNode := node.Content[i+1]
			valueNode.Kind = yaml.ScalarNode
			valueNode.Style = 0
			valueNode.Content = nil
			valueNode.Value = fmt.Sprint(value)
			valueNode.Tag = resolveYAMLTag(value)
			return
		}
	}

	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key, Tag: "!!str"},
		&yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(value), Tag: resolveYAMLTag(value)},
	)
}

// resolveYAMLTag determines the appropriate YAML tag for a value.
func resolveYAMLTag(value any) string {
	switch value.(type) {
	case int, int64, int32:
		return "!!int"
	case float64, float32:
		return "!!float"
	case bool:
		return "!!bool"
	default:
		return "!!str"
	}
}

// extractFrontmatterString extracts the raw YAML string between delimiters.
func extractFrontmatterString(content []byte) (string, []byte, error) {
	contentStr := string(content)

	if !strings.HasPrefix(contentStr, "---\n") && !strings.HasPrefix(contentStr, "---\r\n") {
		return "", content, nil
	}

	startIdx := strings.Index(contentStr, "\n") + 1

	delim := "\n---\n"
	endIdx := strings.Index(contentStr[startIdx:], delim)
	if endIdx == -1 {
		delim = "\r\n---\r\n"
		endIdx = strings.Index(contentStr[startIdx:], delim)
		if endIdx == -1 {
			return "", nil, fmt.Errorf("invalid frontmatter: no closing delimiter found")
		}
	}
	endIdx += startIdx

	bodyStart := min(endIdx+len(delim), len(contentStr))
	return contentStr[startIdx:endIdx], []byte(contentStr[bodyStart:]), nil
}
