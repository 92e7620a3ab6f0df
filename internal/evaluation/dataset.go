package evaluation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

// Judgment maps one query to the UIDs considered relevant for it.
type Judgment struct {
	Query        string
	RelevantUIDs UIDSet
}

type datasetFile struct {
	Queries []struct {
		Query        string   `yaml:"query"`
		RelevantUIDs []string `yaml:"relevant_uids"`
	} `yaml:"queries"`
}

// LoadDataset reads judgments from a YAML file.
func LoadDataset(path string) ([]Judgment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading evaluation dataset: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset decodes judgments of the form
//
//	queries:
//	  - query: "..."
//	    relevant_uids: ["<source>::page=<n>::hash=<hex>", ...]
//
// Surrounding whitespace in UIDs is ignored.
func ParseDataset(data []byte) ([]Judgment, error) {
	var f datasetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperrors.Configf("parsing evaluation dataset: %v", err)
	}
	out := make([]Judgment, 0, len(f.Queries))
	for i, q := range f.Queries {
		query := strings.TrimSpace(q.Query)
		if query == "" {
			return nil, apperrors.Configf("evaluation dataset entry %d has no query", i)
		}
		uids := make(UIDSet, len(q.RelevantUIDs))
		for _, u := range q.RelevantUIDs {
			if u = strings.TrimSpace(u); u != "" {
				uids[u] = struct{}{}
			}
		}
		out = append(out, Judgment{Query: query, RelevantUIDs: uids})
	}
	return out, nil
}
