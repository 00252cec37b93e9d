package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/weiihann/primlat/config"
	"github.com/weiihann/primlat/harness"
)

// ManifestFile is the name of the manifest in the output directory.
const ManifestFile = "manifest.json"

// Host identifies the machine a run was measured on.
type Host struct {
	Hostname string `json:"hostname"`
	Kernel   string `json:"kernel"`
	Machine  string `json:"machine"`
	CPUs     int    `json:"cpus"`
}

// Manifest describes one primlat invocation.
type Manifest struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Host      Host           `json:"host"`
	Config    *config.Config `json:"config"`
	Runs      []ManifestRun  `json:"runs"`
}

// ManifestRun is the record of one measured primitive.
type ManifestRun struct {
	harness.Run

	Artifact    string `json:"artifact"`
	SampleCount int    `json:"samples"`
	Error       string `json:"error,omitempty"`
}

// NewManifestRun records run as written to artifact. err is the integrity
// error that truncated it, if any.
func NewManifestRun(run *harness.Run, artifact string, err error) ManifestRun {
	mr := ManifestRun{
		Run:         *run,
		Artifact:    artifact,
		SampleCount: len(run.Samples),
	}

	if err != nil {
		mr.Error = err.Error()
	}

	return mr
}

// WriteManifest writes m to path as indented JSON.
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}
