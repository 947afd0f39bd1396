// Package project loads and validates project manifests: the id/title/status/owner/routing/workflow record
// the CLI's task commands resolve a task's project against before driving
// the GateEngine. Grounded
// on the teacher's own config-manifest loading (gopkg.in/yaml.v3 decode
// into a typed struct, same as internal/taskstore's frontmatter parser).
package project

import (
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/Seldon-Engine/aof/internal/aoferrors"
	"github.com/Seldon-Engine/aof/internal/gate"
)

// InboxID is the one reserved project id that does not have to match
// IDPattern.
const InboxID = "_inbox"

// IDPattern is the project id grammar: lowercase letters, digits and
// hyphens, starting with a letter or digit, 2-64 characters total.
var IDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

// ValidateID reports whether id is a legal project id: either the
// reserved InboxID or a string matching IDPattern.
func ValidateID(id string) error {
	if id == InboxID {
		return nil
	}
	if !IDPattern.MatchString(id) {
		return aoferrors.New(aoferrors.KindValidation, "project.ValidateID", "project id \""+id+"\" must match "+IDPattern.String()+" or be "+InboxID, nil)
	}
	return nil
}

// Routing carries a project-level default role/workflow, inherited by
// tasks that don't set their own routing.workflow.
type Routing struct {
	Role     string `yaml:"role,omitempty" json:"role,omitempty"`
	Workflow string `yaml:"workflow,omitempty" json:"workflow,omitempty"`
}

// Manifest is project.yaml's decoded shape. Workflow is optional; a
// project with no workflow block has no gating.
type Manifest struct {
	ID           string            `yaml:"id" json:"id"`
	Title        string            `yaml:"title" json:"title"`
	Status       string            `yaml:"status,omitempty" json:"status,omitempty"`
	Type         string            `yaml:"type,omitempty" json:"type,omitempty"`
	Owner        string            `yaml:"owner,omitempty" json:"owner,omitempty"`
	Participants []string          `yaml:"participants,omitempty" json:"participants,omitempty"`
	ParentID     string            `yaml:"parentId,omitempty" json:"parentId,omitempty"`
	Routing      Routing           `yaml:"routing,omitempty" json:"routing,omitempty"`
	Memory       map[string]any    `yaml:"memory,omitempty" json:"memory,omitempty"`
	Links        map[string]string `yaml:"links,omitempty" json:"links,omitempty"`
	Workflow     *gate.Workflow    `yaml:"workflow,omitempty" json:"workflow,omitempty"`
}

// ManifestFileName is the well-known file name under a project directory.
const ManifestFileName = "project.yaml"

// Dir returns the project directory for id under the Projects/ root.
func Dir(projectsRoot, id string) string { return filepath.Join(projectsRoot, id) }

// Load reads and validates a single project.yaml at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, aoferrors.New(aoferrors.KindNotFound, "project.Load", "no project manifest at "+path, err)
		}
		return nil, aoferrors.New(aoferrors.KindFatalIO, "project.Load", "read "+path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, aoferrors.New(aoferrors.KindValidation, "project.Load", "parse "+path, err)
	}
	if err := ValidateID(m.ID); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadByID loads the manifest for id from <projectsRoot>/<id>/project.yaml.
func LoadByID(projectsRoot, id string) (*Manifest, error) {
	return Load(filepath.Join(Dir(projectsRoot, id), ManifestFileName))
}

// LoadAll scans projectsRoot for every subdirectory containing a
// project.yaml and returns them keyed by id. A subdirectory without a
// manifest is silently skipped (it may be scratch space, not a project).
func LoadAll(projectsRoot string) (map[string]*Manifest, error) {
	entries, err := os.ReadDir(projectsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Manifest{}, nil
		}
		return nil, aoferrors.New(aoferrors.KindFatalIO, "project.LoadAll", "read "+projectsRoot, err)
	}

	out := make(map[string]*Manifest, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifestPath := filepath.Join(projectsRoot, e.Name(), ManifestFileName)
		if _, statErr := os.Stat(manifestPath); statErr != nil {
			continue
		}
		m, loadErr := Load(manifestPath)
		if loadErr != nil {
			return nil, loadErr
		}
		out[m.ID] = m
	}
	return out, nil
}

// ResolveWorkflow returns the gate.Workflow a task should gate against:
// the project's sole Workflow. A manifest holds at most one workflow, so a
// task's routing.workflow is not consulted. ok is false when the project has no workflow
// configured, meaning the project has no gating.
func (m *Manifest) ResolveWorkflow() (gate.Workflow, bool) {
	if m == nil || m.Workflow == nil {
		return gate.Workflow{}, false
	}
	return *m.Workflow, true
}
