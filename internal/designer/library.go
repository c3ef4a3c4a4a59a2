// Package designer converts a structured Intent into a candidate automation
// graph. Design is a pure function of the intent and the template library
// version: identical input always yields a byte-identical graph.
package designer

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// TemplateNode is one node a template emits, in declared order. Parameters
// are the template's defaults; step parameters from the intent are merged
// over them positionally.
type TemplateNode struct {
	Kind       string         `yaml:"kind"`
	Parameters map[string]any `yaml:"parameters"`
}

// Template is a parametrized graph shape matched against an intent. Matching
// is by trigger plus the exact ordered action list; the first declared match
// wins, never a score.
type Template struct {
	Name    string `yaml:"name"`
	Trigger string `yaml:"trigger"`
	Match   struct {
		Actions []string `yaml:"actions"`
	} `yaml:"match"`
	Steps []TemplateNode `yaml:"steps"`

	checksum string
}

// Matches reports whether the template applies to the intent: same trigger
// and the intent's actions equal the template's match list in order.
func (t *Template) Matches(intent *model.Intent) bool {
	if t.Trigger != intent.Trigger {
		return false
	}
	if len(t.Match.Actions) != len(intent.Steps) {
		return false
	}
	for i, action := range t.Match.Actions {
		if intent.Steps[i].Action != action {
			return false
		}
	}
	return true
}

// Library is an ordered, immutable list of templates with a version string
// derived from the template checksums. Designer determinism is scoped to a
// library version.
type Library struct {
	templates []Template
	version   string
}

// Templates returns the templates in declaration order.
func (l *Library) Templates() []Template {
	return l.templates
}

// Version returns the library version string.
func (l *Library) Version() string {
	return l.version
}

// Len returns the number of templates.
func (l *Library) Len() int {
	return len(l.templates)
}

// LoadLibrary scans the given directories for *.yaml/*.yml template files,
// sorted by path within each directory so declaration order is stable across
// hosts. With no directories configured the compiled-in library is returned.
func LoadLibrary(directories []string) (*Library, error) {
	if len(directories) == 0 {
		return BuiltinLibrary(), nil
	}

	var templates []Template
	for _, dir := range directories {
		var paths []string
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("designer: scanning %s: %w", dir, err)
		}
		sort.Strings(paths)

		for _, path := range paths {
			tpls, err := loadFile(path)
			if err != nil {
				return nil, err
			}
			templates = append(templates, tpls...)
		}
	}

	return newLibrary(templates), nil
}

// loadFile parses one YAML file holding a list of templates (or a single
// template document) and stamps each with the file checksum.
func loadFile(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("designer: reading %s: %w", path, err)
	}

	checksum := fmt.Sprintf("%x", sha256.Sum256(data))

	var doc struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("designer: parsing %s: %w", path, err)
	}

	templates := doc.Templates
	if len(templates) == 0 {
		var single Template
		if err := yaml.Unmarshal(data, &single); err == nil && single.Name != "" {
			templates = []Template{single}
		}
	}

	for i := range templates {
		if templates[i].Name == "" {
			return nil, fmt.Errorf("designer: template without name in %s", path)
		}
		templates[i].checksum = checksum
	}
	return templates, nil
}

// newLibrary builds a Library and derives its version from the template
// checksums in declaration order.
func newLibrary(templates []Template) *Library {
	h := sha256.New()
	for _, t := range templates {
		fmt.Fprintf(h, "%s:%s\n", t.Name, t.checksum)
	}
	return &Library{
		templates: templates,
		version:   fmt.Sprintf("lib-%x", h.Sum(nil)[:8]),
	}
}

// BuiltinLibrary returns the compiled-in template library used for
// zero-config startup. Declaration order is the tie-break, so the more
// specific shapes come first.
func BuiltinLibrary() *Library {
	templates := []Template{
		{
			Name:    "scheduled-report",
			Trigger: model.TriggerSchedule,
			Match: struct {
				Actions []string `yaml:"actions"`
			}{Actions: []string{"fetch", "notify"}},
			Steps: []TemplateNode{
				{Kind: model.KindFetch},
				{Kind: model.KindNotify},
			},
		},
		{
			Name:    "webhook-relay",
			Trigger: model.TriggerWebhook,
			Match: struct {
				Actions []string `yaml:"actions"`
			}{Actions: []string{"transform", "notify"}},
			Steps: []TemplateNode{
				{Kind: model.KindTransform},
				{Kind: model.KindNotify},
			},
		},
		{
			Name:    "event-filtered-alert",
			Trigger: model.TriggerEvent,
			Match: struct {
				Actions []string `yaml:"actions"`
			}{Actions: []string{"filter", "notify"}},
			Steps: []TemplateNode{
				{Kind: model.KindFilter},
				{Kind: model.KindNotify},
			},
		},
	}
	for i := range templates {
		templates[i].checksum = "builtin"
	}
	return newLibrary(templates)
}
