package manifest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	errNotFound  = errors.New("field not found")
	errNotScalar = errors.New("field is not a scalar value")
)

func parse(content []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty document")
	}
	return &doc, nil
}

// lookup finds the node at the dotted path, returning the key node
// too when the last segment indexes a mapping.
func lookup(doc *yaml.Node, fieldPath string) (key, value *yaml.Node, err error) {
	node := doc.Content[0]
	for _, seg := range strings.Split(fieldPath, ".") {
		if node.Kind == yaml.AliasNode {
			return nil, nil, fmt.Errorf("%s: aliases are not supported", fieldPath)
		}
		key = nil
		switch node.Kind {
		case yaml.MappingNode:
			var next *yaml.Node
			for i := 0; i+1 < len(node.Content); i += 2 {
				if node.Content[i].Value == seg {
					key, next = node.Content[i], node.Content[i+1]
					break
				}
			}
			if next == nil {
				return nil, nil, errNotFound
			}
			node = next
		case yaml.SequenceNode:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node.Content) {
				return nil, nil, errNotFound
			}
			node = node.Content[i]
		default:
			return nil, nil, errNotFound
		}
	}
	if node.Kind != yaml.ScalarNode {
		return nil, nil, errNotScalar
	}
	return key, node, nil
}

// readField returns the scalar value at the dotted path.
func readField(doc *yaml.Node, fieldPath string) (string, error) {
	_, node, err := lookup(doc, fieldPath)
	if err != nil {
		return "", err
	}
	return node.Value, nil
}

// setField replaces the text of the scalar at the dotted path with
// the value given, leaving every other byte of content as it was.
func setField(content []byte, fieldPath, value string) ([]byte, error) {
	doc, err := parse(content)
	if err != nil {
		return nil, err
	}
	key, node, err := lookup(doc, fieldPath)
	if err != nil {
		return nil, err
	}
	if node.Value == value && node.Tag == "!!str" {
		return content, nil
	}

	lines := lineOffsets(content)
	if isImplicitNull(node) {
		if key == nil {
			return nil, errors.New("cannot set an empty sequence item")
		}
		at, err := afterKey(content, lines, key)
		if err != nil {
			return nil, err
		}
		return splice(content, at, at, " "+render(value, 0)), nil
	}

	start, err := offset(content, lines, node.Line, node.Column)
	if err != nil {
		return nil, err
	}
	end, err := scalarEnd(content, start, node)
	if err != nil {
		return nil, err
	}
	return splice(content, start, end, render(value, node.Style)), nil
}

func isImplicitNull(node *yaml.Node) bool {
	return node.Tag == "!!null" && node.Value == "" && node.Style == 0
}

func splice(content []byte, start, end int, text string) []byte {
	out := make([]byte, 0, len(content)-(end-start)+len(text))
	out = append(out, content[:start]...)
	out = append(out, text...)
	return append(out, content[end:]...)
}

// lineOffsets returns the byte offset at which each line starts.
func lineOffsets(content []byte) []int {
	offsets := []int{0}
	for i, b := range content {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// offset converts a 1-based line and column, counted in characters,
// to a byte offset.
func offset(content []byte, lines []int, line, column int) (int, error) {
	if line < 1 || line > len(lines) {
		return 0, fmt.Errorf("line %d out of range", line)
	}
	at := lines[line-1]
	for c := 1; c < column; c++ {
		if at >= len(content) || content[at] == '\n' {
			return 0, fmt.Errorf("column %d out of range on line %d", column, line)
		}
		_, size := utf8.DecodeRune(content[at:])
		at += size
	}
	return at, nil
}

func scalarEnd(content []byte, start int, node *yaml.Node) (int, error) {
	lineEnd := bytes.IndexByte(content[start:], '\n')
	if lineEnd < 0 {
		lineEnd = len(content)
	} else {
		lineEnd += start
	}

	switch node.Style {
	case yaml.DoubleQuotedStyle:
		for i := start + 1; i < lineEnd; i++ {
			switch content[i] {
			case '\\':
				i++
			case '"':
				return i + 1, nil
			}
		}
		return 0, errors.New("multi-line quoted values are not supported")
	case yaml.SingleQuotedStyle:
		for i := start + 1; i < lineEnd; i++ {
			if content[i] == '\'' {
				if i+1 < lineEnd && content[i+1] == '\'' {
					i++
					continue
				}
				return i + 1, nil
			}
		}
		return 0, errors.New("multi-line quoted values are not supported")
	case 0:
		end := lineEnd
		if i := bytes.Index(content[start:end], []byte(" #")); i >= 0 {
			end = start + i
		}
		end = trimRight(content, start, end)
		if string(content[start:end]) != node.Value {
			// inside a flow collection the value stops at the next indicator
			if i := bytes.IndexAny(content[start:end], ",]}"); i >= 0 {
				end = trimRight(content, start, start+i)
			}
		}
		if string(content[start:end]) != node.Value {
			return 0, fmt.Errorf("could not locate value %q in the file", node.Value)
		}
		return end, nil
	case yaml.TaggedStyle, yaml.TaggedStyle | yaml.DoubleQuotedStyle, yaml.TaggedStyle | yaml.SingleQuotedStyle:
		return 0, errors.New("explicitly tagged values are not supported")
	default:
		return 0, errors.New("block scalar values are not supported")
	}
}

func trimRight(content []byte, start, end int) int {
	for end > start && strings.ContainsRune(" \t\r", rune(content[end-1])) {
		end--
	}
	return end
}

// afterKey returns the offset just after the colon that follows the
// key node.
func afterKey(content []byte, lines []int, key *yaml.Node) (int, error) {
	start, err := offset(content, lines, key.Line, key.Column)
	if err != nil {
		return 0, err
	}
	for i := start; i < len(content) && content[i] != '\n'; i++ {
		if content[i] == ':' && (i+1 == len(content) || strings.ContainsRune(" \t\r\n", rune(content[i+1]))) {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("could not locate key %q in the file", key.Value)
}

// render writes the value in the quoting style given. Plain values
// that would not read back as the same string are double-quoted.
func render(value string, style yaml.Style) string {
	switch style {
	case yaml.SingleQuotedStyle:
		return "'" + strings.Replace(value, "'", "''", -1) + "'"
	case yaml.DoubleQuotedStyle:
		return doubleQuote(value)
	}
	if plainIsString(value) {
		return value
	}
	return doubleQuote(value)
}

func doubleQuote(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(value) + `"`
}

func plainIsString(value string) bool {
	if value == "" || strings.ContainsAny(value, "\n\r\t") || strings.TrimSpace(value) != value {
		return false
	}
	var n yaml.Node
	if err := yaml.Unmarshal([]byte("v: "+value), &n); err != nil {
		return false
	}
	if len(n.Content) != 1 || len(n.Content[0].Content) != 2 {
		return false
	}
	v := n.Content[0].Content[1]
	return v.Kind == yaml.ScalarNode && v.Tag == "!!str" && v.Style == 0 && v.Value == value
}
