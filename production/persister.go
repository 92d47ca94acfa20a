// Package production provides production integrations: persistence, event
// publishing, visualization, and the HTTP basic event processor — adapted
// from comalice/statechartx's internal/production package, which implements
// the same three concerns (JSON/YAML snapshot persistence, channel-based
// event publishing, Graphviz export) against its flat Machine/StateConfig
// types. Here the snapshot shape is a session's active configuration rather
// than a path-string snapshot, since the Chart IR already gives every state
// a stable id.
package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comalice/scxmlcore/ir"
)

// Snapshot is the persisted state of one session: enough to report its
// configuration and resume external bookkeeping, though not enough to
// reconstruct the live ECMAScript data model (goja.Runtime state is not
// serializable; a resumed session re-runs datamodel initialization from the
// chart rather than restoring in-memory variable values).
type Snapshot struct {
	SessionID     string       `json:"session_id" yaml:"session_id"`
	ChartName     string       `json:"chart_name" yaml:"chart_name"`
	ActiveStates  []ir.StateID `json:"active_states" yaml:"active_states"`
	SavedAt       time.Time    `json:"saved_at" yaml:"saved_at"`
}

// Persister is the storage-backend contract every adapter below implements.
type Persister interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, sessionID string) (Snapshot, error)
}

// JSONPersister is a stdlib-only file-based Persister using JSON.
type JSONPersister struct {
	dir string
}

// NewJSONPersister creates a JSONPersister, ensuring dir exists.
func NewJSONPersister(dir string) (*JSONPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("production: mkdir %s: %w", dir, err)
	}
	return &JSONPersister{dir: dir}, nil
}

func (p *JSONPersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("production: json marshal: %w", err)
	}
	fn := filepath.Join(p.dir, snap.SessionID+".json")
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("production: write %s: %w", fn, err)
	}
	return nil
}

func (p *JSONPersister) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	fn := filepath.Join(p.dir, sessionID+".json")
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, fmt.Errorf("production: session %q: %w", sessionID, os.ErrNotExist)
		}
		return Snapshot{}, fmt.Errorf("production: read %s: %w", fn, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("production: json unmarshal: %w", err)
	}
	snap.SessionID = sessionID
	return snap, nil
}

// YAMLPersister is a file-based Persister using YAML, matching the
// teacher's gopkg.in/yaml.v3 usage for its own YAMLPersister.
type YAMLPersister struct {
	dir string
}

// NewYAMLPersister creates a YAMLPersister, ensuring dir exists.
func NewYAMLPersister(dir string) (*YAMLPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("production: mkdir %s: %w", dir, err)
	}
	return &YAMLPersister{dir: dir}, nil
}

func (p *YAMLPersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("production: yaml marshal: %w", err)
	}
	fn := filepath.Join(p.dir, snap.SessionID+".yaml")
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("production: write %s: %w", fn, err)
	}
	return nil
}

func (p *YAMLPersister) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	fn := filepath.Join(p.dir, sessionID+".yaml")
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, fmt.Errorf("production: session %q: %w", sessionID, os.ErrNotExist)
		}
		return Snapshot{}, fmt.Errorf("production: read %s: %w", fn, err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("production: yaml unmarshal: %w", err)
	}
	snap.SessionID = sessionID
	return snap, nil
}

// SnapshotOf builds a Snapshot from a live session.
func SnapshotOf(sessionID, chartName string, active []ir.StateID) Snapshot {
	return Snapshot{SessionID: sessionID, ChartName: chartName, ActiveStates: active, SavedAt: time.Now()}
}
