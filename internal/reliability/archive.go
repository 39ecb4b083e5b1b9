package reliability

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ManifestVersion is the manifest format version.
const ManifestVersion = "1.0.0"

// ManifestFile is the entry name of the manifest inside an archive.
const ManifestFile = "manifest.json"

// Manifest describes the contents of a published run.
type Manifest struct {
	RunID     string         `json:"run_id"`
	Version   string         `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata describes one archived file.
type FileMetadata struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Checksum returns the sha256 of a file in "sha256:<hex>" form.
func Checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

// BuildManifest checksums every regular file directly under dir, sorted by name.
// Temporary files and the manifest itself are skipped.
func BuildManifest(runID, dir string) (Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	m := Manifest{
		RunID:     runID,
		Version:   ManifestVersion,
		CreatedAt: time.Now().UTC(),
		Files:     make([]FileMetadata, 0, len(entries)),
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || name == ManifestFile || strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := entry.Info()
		if err != nil {
			return Manifest{}, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		sum, err := Checksum(path)
		if err != nil {
			return Manifest{}, fmt.Errorf("failed to checksum %s: %w", name, err)
		}
		m.Files = append(m.Files, FileMetadata{Name: name, SizeBytes: info.Size(), Checksum: sum})
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Name < m.Files[j].Name })
	return m, nil
}

// WriteArchive writes a tar.gz of the manifest's files, read from dir, followed by
// the manifest JSON itself.
func WriteArchive(w io.Writer, dir string, m Manifest, manifestJSON []byte) error {
	gzipWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, f := range m.Files {
		if err := addFile(tarWriter, filepath.Join(dir, f.Name), f.Name); err != nil {
			return fmt.Errorf("failed to add %s: %w", f.Name, err)
		}
	}

	header := &tar.Header{
		Name:    ManifestFile,
		Mode:    0644,
		Size:    int64(len(manifestJSON)),
		ModTime: m.CreatedAt,
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write manifest header: %w", err)
	}
	if _, err := tarWriter.Write(manifestJSON); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to close tar writer: %w", err)
	}
	return gzipWriter.Close()
}

func addFile(tw *tar.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}
