package worker

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
)

// topicsFile is the layout of a batch file:
//
//	topics:
//	  - topic: Go generics
//	    tags: [go, generics]
type topicsFile struct {
	Topics []struct {
		Topic string   `yaml:"topic"`
		Tags  []string `yaml:"tags"`
	} `yaml:"topics"`
}

// LoadTopics reads a YAML batch file. Every entry needs a topic.
func LoadTopics(path string) ([]domain.TopicRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics file: %w", err)
	}
	var f topicsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse topics file %s: %w", path, err)
	}
	if len(f.Topics) == 0 {
		return nil, fmt.Errorf("topics file %s lists no topics", path)
	}
	out := make([]domain.TopicRequest, len(f.Topics))
	for i, t := range f.Topics {
		if strings.TrimSpace(t.Topic) == "" {
			return nil, fmt.Errorf("topics file %s: entry %d has no topic", path, i+1)
		}
		tags := t.Tags
		if tags == nil {
			tags = []string{}
		}
		out[i] = domain.TopicRequest{Topic: t.Topic, Tags: tags}
	}
	return out, nil
}
