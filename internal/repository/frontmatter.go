package repository

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	frontMatterOpen  = []byte("---\n")
	frontMatterClose = []byte("\n---\n")
)

// frontMatter is the YAML header written at the top of every note file.
type frontMatter struct {
	ID    string  `yaml:"id"`
	Title string  `yaml:"title"`
	Tags  tagList `yaml:"tags"`
}

// tagList accepts both a YAML sequence and the legacy comma-separated scalar
// ("tags: a, b").
type tagList []string

func (t *tagList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var tags []string
		if err := value.Decode(&tags); err != nil {
			return err
		}
		*t = tags
	case yaml.ScalarNode:
		var tags []string
		for _, part := range strings.Split(value.Value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				tags = append(tags, part)
			}
		}
		*t = tags
	default:
		return fmt.Errorf("tags: unsupported yaml node kind %d", value.Kind)
	}
	return nil
}

func encodeNoteFile(fm frontMatter, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(frontMatterOpen)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// decodeNoteFile splits a note file into its header and body. The body is
// returned byte for byte so its hash matches what was written. A file whose
// header is never closed is all body.
func decodeNoteFile(data []byte) (frontMatter, string) {
	var fm frontMatter
	if !bytes.HasPrefix(data, frontMatterOpen) {
		return fm, string(data)
	}

	rest := data[len(frontMatterOpen):]
	var header, body []byte
	switch {
	case bytes.HasPrefix(rest, []byte("---\n")):
		body = rest[4:]
	case bytes.Equal(rest, []byte("---")):
	default:
		idx := bytes.Index(rest, frontMatterClose)
		if idx < 0 {
			if !bytes.HasSuffix(rest, []byte("\n---")) {
				return fm, string(data)
			}
			header = rest[:len(rest)-4]
		} else {
			header = rest[:idx+1]
			body = rest[idx+len(frontMatterClose):]
		}
	}

	if len(bytes.TrimSpace(header)) > 0 {
		if err := yaml.Unmarshal(header, &fm); err != nil {
			// Older servers wrote unquoted values such as "title: Meeting: Q3".
			fm = parseLooseHeader(header)
		}
	}
	return fm, string(body)
}

// parseLooseHeader reads one "key: value" pair per line, splitting on the
// first colon. Tags are comma separated.
func parseLooseHeader(header []byte) frontMatter {
	var fm frontMatter
	for _, line := range strings.Split(string(header), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch strings.TrimSpace(key) {
		case "id":
			fm.ID = value
		case "title":
			fm.Title = value
		case "tags":
			var tags tagList
			for _, part := range strings.Split(value, ",") {
				if part = strings.TrimSpace(part); part != "" {
					tags = append(tags, part)
				}
			}
			fm.Tags = tags
		}
	}
	return fm
}
