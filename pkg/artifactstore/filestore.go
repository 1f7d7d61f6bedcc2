package artifactstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/seasonal/forecastd/pkg/forecaster"
	"github.com/seasonal/forecastd/pkg/models"
)

// Envelope identification. Loads reject anything else.
const (
	Format        = "forecastd/piecewise-fourier"
	FormatVersion = 1
)

const filePrefix = "forecast-"

// envelope is the on-disk form of an artifact
type envelope struct {
	Format        string          `json:"format"`
	FormatVersion int             `json:"format_version"`
	Model         string          `json:"model"`
	TrainedAt     time.Time       `json:"trained_at"`
	SHA256        string          `json:"sha256"`
	Payload       json.RawMessage `json:"payload"`
}

// Info describes a stored artifact
type Info struct {
	Model     string    `json:"model"`
	TrainedAt time.Time `json:"trained_at"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
}

// FileStore keeps one artifact file per model name in a directory. Replacement goes
// through a temp file in the same directory followed by rename, so readers see either
// the previous artifact or the new one in full.
type FileStore struct {
	basePath string
}

// NewFileStore creates the artifact directory if needed
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Path returns the file path of the artifact for name
func (fs *FileStore) Path(name string) string {
	return filepath.Join(fs.basePath, filePrefix+name+".json")
}

// Save atomically replaces the artifact for name
func (fs *FileStore) Save(name string, m *forecaster.Model) (*Info, error) {
	if err := models.ValidateModelName(name); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	sum := sha256.Sum256(payload)

	env := envelope{
		Format:        Format,
		FormatVersion: FormatVersion,
		Model:         name,
		TrainedAt:     time.Now().UTC(),
		SHA256:        hex.EncodeToString(sum[:]),
		Payload:       payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact envelope: %w", err)
	}

	if err := fs.writeAtomic(fs.Path(name), data); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	return &Info{
		Model:     name,
		TrainedAt: env.TrainedAt,
		SHA256:    env.SHA256,
		Size:      int64(len(data)),
	}, nil
}

func (fs *FileStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(fs.basePath, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// Load reads and verifies the artifact for name. A missing, foreign, outdated or
// corrupted file is reported as a no_artifact error carrying the reason.
func (fs *FileStore) Load(name string) (*forecaster.Model, *Info, error) {
	if err := models.ValidateModelName(name); err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(fs.Path(name))
	if os.IsNotExist(err) {
		return nil, nil, models.NoArtifact(name, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, models.NoArtifact(name, fmt.Errorf("artifact is not readable: %w", err))
	}
	if env.Format != Format || env.FormatVersion != FormatVersion {
		return nil, nil, models.NoArtifact(name, fmt.Errorf("artifact format %s v%d is not supported (want %s v%d)",
			env.Format, env.FormatVersion, Format, FormatVersion))
	}

	sum := sha256.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.SHA256 {
		return nil, nil, models.NoArtifact(name, fmt.Errorf("artifact checksum mismatch"))
	}

	var m forecaster.Model
	if err := json.Unmarshal(env.Payload, &m); err != nil {
		return nil, nil, models.NoArtifact(name, fmt.Errorf("artifact payload is not readable: %w", err))
	}

	return &m, &Info{
		Model:     env.Model,
		TrainedAt: env.TrainedAt,
		SHA256:    env.SHA256,
		Size:      int64(len(data)),
	}, nil
}

// Exists reports whether an artifact file is present for name
func (fs *FileStore) Exists(name string) bool {
	if models.ValidateModelName(name) != nil {
		return false
	}
	_, err := os.Stat(fs.Path(name))
	return err == nil
}

// Delete removes the artifact for name. A missing file is not an error.
func (fs *FileStore) Delete(name string) error {
	if err := models.ValidateModelName(name); err != nil {
		return err
	}
	if err := os.Remove(fs.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// List returns the names of all stored artifacts
func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	var names []string
	for _, entry := range entries {
		n := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(n, filePrefix) || filepath.Ext(n) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(n, filePrefix), ".json"))
	}
	return names, nil
}

// HumanSize formats a byte count with binary units and two decimals, PiB at most
func HumanSize(n int64) string {
	units := []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}
	size := float64(n)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}
