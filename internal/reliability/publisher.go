package reliability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	archivePrefix   = "factorlab-run-"
	archiveSuffix   = ".tar.gz"
	timestampLayout = "2006-01-02-150405"

	// MinRunsToKeep survive rotation regardless of age
	MinRunsToKeep = 3
)

// RunArchive is a published run found in the bucket.
type RunArchive struct {
	Key       string
	Timestamp time.Time
	SizeBytes int64
	AgeHours  int64
}

// ArtifactPublisher packs a run's output directory into a tar.gz with a checksum
// manifest and uploads it to an object store.
type ArtifactPublisher struct {
	store  ObjectStore
	prefix string
	now    func() time.Time
	log    zerolog.Logger
}

// NewArtifactPublisher creates a publisher writing under prefix.
func NewArtifactPublisher(store ObjectStore, prefix string, log zerolog.Logger) *ArtifactPublisher {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ArtifactPublisher{
		store:  store,
		prefix: prefix,
		now:    time.Now,
		log:    log.With().Str("service", "artifact_publisher").Logger(),
	}
}

// ArchiveKey is the object key for a run published at ts.
func (p *ArtifactPublisher) ArchiveKey(runID string, ts time.Time) string {
	return p.prefix + archivePrefix + ts.UTC().Format(timestampLayout) + "-" + runID + archiveSuffix
}

// Publish writes manifest.json into dir and uploads the archive.
func (p *ArtifactPublisher) Publish(ctx context.Context, runID, dir string) error {
	startTime := time.Now()

	manifest, err := BuildManifest(runID, dir)
	if err != nil {
		return err
	}
	if len(manifest.Files) == 0 {
		return fmt.Errorf("nothing to publish in %s", dir)
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), manifestJSON, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	archiveFile, err := os.CreateTemp("", "factorlab-run-*"+archiveSuffix)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer os.Remove(archiveFile.Name())
	defer archiveFile.Close()

	if err := WriteArchive(archiveFile, dir, manifest, manifestJSON); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	info, err := archiveFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}
	if _, err := archiveFile.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind archive: %w", err)
	}

	key := p.ArchiveKey(runID, p.now())
	if err := p.store.Upload(ctx, key, archiveFile, info.Size()); err != nil {
		return err
	}

	p.log.Info().
		Str("run_id", runID).
		Str("key", key).
		Int("files", len(manifest.Files)).
		Int64("size_bytes", info.Size()).
		Dur("duration", time.Since(startTime)).
		Msg("Run artifacts published")
	return nil
}

// ListRuns lists published runs, newest first. Keys that do not parse are skipped.
func (p *ArtifactPublisher) ListRuns(ctx context.Context) ([]RunArchive, error) {
	objects, err := p.store.List(ctx, p.prefix+archivePrefix)
	if err != nil {
		return nil, err
	}

	now := p.now()
	runs := make([]RunArchive, 0, len(objects))
	for _, obj := range objects {
		ts, ok := parseArchiveKey(strings.TrimPrefix(obj.Key, p.prefix))
		if !ok {
			p.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from key")
			continue
		}
		runs = append(runs, RunArchive{
			Key:       obj.Key,
			Timestamp: ts,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func parseArchiveKey(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
		return time.Time{}, false
	}
	rest := strings.TrimPrefix(name, archivePrefix)
	if len(rest) < len(timestampLayout) {
		return time.Time{}, false
	}
	ts, err := time.Parse(timestampLayout, rest[:len(timestampLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// RotateOldRuns deletes runs older than retentionDays, always keeping the newest
// MinRunsToKeep. A retention of 0 keeps everything.
func (p *ArtifactPublisher) RotateOldRuns(ctx context.Context, retentionDays int) (int, error) {
	runs, err := p.ListRuns(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}
	if retentionDays <= 0 || len(runs) <= MinRunsToKeep {
		return 0, nil
	}

	cutoff := p.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, run := range runs[MinRunsToKeep:] {
		if !run.Timestamp.Before(cutoff) {
			continue
		}
		if err := p.store.Delete(ctx, run.Key); err != nil {
			p.log.Error().Err(err).Str("key", run.Key).Msg("Failed to delete old run")
			continue
		}
		deleted++
	}

	p.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(runs)-deleted).
		Msg("Run rotation completed")
	return deleted, nil
}

// RotationJob prunes old published runs on a schedule.
type RotationJob struct {
	publisher     *ArtifactPublisher
	retentionDays int
	log           zerolog.Logger
}

// NewRotationJob creates a new rotation job
func NewRotationJob(publisher *ArtifactPublisher, retentionDays int, log zerolog.Logger) *RotationJob {
	return &RotationJob{
		publisher:     publisher,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "artifact_rotation").Logger(),
	}
}

// Run executes the rotation
func (j *RotationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	_, err := j.publisher.RotateOldRuns(ctx, j.retentionDays)
	return err
}

// Name returns the job name
func (j *RotationJob) Name() string {
	return "artifact_rotation"
}
