package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// backupFormatVersion identifies the layout of backup-metadata.json, bumped
// whenever a field is added or removed so an old RestoreService can refuse
// to touch a backup it no longer understands.
const backupFormatVersion = "1.0.0"

// sentinelBuildVersion is stamped into every backup's metadata so an
// operator restoring months later knows which build produced it.
const sentinelBuildVersion = "0.1.0"

// minBackupsToKeep bounds RotateOldBackups: no matter how old they are, the
// most recent minBackupsToKeep backups are never deleted.
const minBackupsToKeep = 3

// DatabaseMetadata describes one database file inside a backup archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupMetadata is serialized as backup-metadata.json at the root of every
// backup archive, and is what RestoreService reads to validate a staged
// restore before it touches any production database file.
type BackupMetadata struct {
	Timestamp       time.Time          `json:"timestamp"`
	Version         string             `json:"version"`
	SentinelVersion string             `json:"sentinel_version"`
	Databases       []DatabaseMetadata `json:"databases"`
}

// BackupInfo is what ListBackups reports for each archive sitting in R2 -
// just enough to render a backups page or decide what to rotate.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// R2BackupService turns a BackupService's local snapshots into a single
// checksummed, gzip-compressed tar archive and ships it to Cloudflare R2,
// mirroring the two-phase design RestoreService expects on the way back in.
type R2BackupService struct {
	r2Client      *R2Client
	backupService *BackupService
	dataDir       string
	log           zerolog.Logger
}

// NewR2BackupService builds an R2BackupService. backupService may be nil in
// tests that only exercise checksum/archive helpers.
func NewR2BackupService(r2Client *R2Client, backupService *BackupService, dataDir string, log zerolog.Logger) *R2BackupService {
	return &R2BackupService{
		r2Client:      r2Client,
		backupService: backupService,
		dataDir:       dataDir,
		log:           log.With().Str("service", "r2_backup").Logger(),
	}
}

// GetR2Client exposes the underlying R2Client for callers that need to
// reach for operations (TestConnection, Delete, Download) this service
// doesn't itself wrap.
func (s *R2BackupService) GetR2Client() *R2Client {
	return s.r2Client
}

// CreateAndUploadBackup refreshes the local snapshot via backupService,
// archives it alongside a backup-metadata.json manifest, and uploads the
// result to R2 under a sentinel-backup-<timestamp>.tar.gz key.
func (s *R2BackupService) CreateAndUploadBackup(ctx context.Context) error {
	if s.backupService == nil {
		return fmt.Errorf("backup service not configured")
	}
	if err := s.backupService.DailyBackup(); err != nil {
		return fmt.Errorf("local backup failed: %w", err)
	}

	snapshotDir := s.backupService.LocalBackupDir()
	names := s.backupService.DatabaseNames()

	databases := make([]DatabaseMetadata, 0, len(names))
	for _, name := range names {
		filename := name + ".db"
		path := filepath.Join(snapshotDir, filename)

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", filename, err)
		}
		checksum, err := s.calculateChecksum(path)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", filename, err)
		}
		databases = append(databases, DatabaseMetadata{
			Name:      name,
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadata := BackupMetadata{
		Timestamp:       time.Now().UTC(),
		Version:         backupFormatVersion,
		SentinelVersion: sentinelBuildVersion,
		Databases:       databases,
	}

	metadataPath := filepath.Join(snapshotDir, "backup-metadata.json")
	if err := writeJSON(metadataPath, metadata); err != nil {
		return fmt.Errorf("write backup metadata: %w", err)
	}

	items := make([]string, 0, len(databases)+1)
	items = append(items, "backup-metadata.json")
	for _, db := range databases {
		items = append(items, db.Filename)
	}

	filename := fmt.Sprintf("sentinel-backup-%s.tar.gz", metadata.Timestamp.Format("2006-01-02-150405"))
	archivePath := filepath.Join(snapshotDir, filename)
	if err := s.createArchive(archivePath, snapshotDir, items); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer os.Remove(archivePath)

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	archiveInfo, err := archiveFile.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	if err := s.r2Client.Upload(ctx, filename, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	s.log.Info().
		Str("filename", filename).
		Int64("size_bytes", archiveInfo.Size()).
		Int("databases", len(databases)).
		Msg("backup uploaded to r2")
	return nil
}

// ListBackups lists every sentinel-backup-*.tar.gz object in R2, newest
// first.
func (s *R2BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.r2Client.List(ctx, "sentinel-backup-")
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		info := BackupInfo{Filename: *obj.Key}
		if obj.Size != nil {
			info.SizeBytes = *obj.Size
		}
		if obj.LastModified != nil {
			info.Timestamp = *obj.LastModified
		}
		backups = append(backups, info)
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

// RotateOldBackups deletes backups beyond minBackupsToKeep that are also
// older than retentionDays. retentionDays == 0 means "keep everything
// beyond the minimum forever" - rotation never deletes purely on count.
func (s *R2BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("list backups for rotation: %w", err)
	}
	if len(backups) <= minBackupsToKeep || retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	for i, b := range backups {
		if i < minBackupsToKeep {
			continue
		}
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.r2Client.Delete(ctx, b.Filename); err != nil {
			s.log.Warn().Err(err).Str("filename", b.Filename).Msg("failed to delete aged backup")
			continue
		}
		s.log.Info().Str("filename", b.Filename).Msg("rotated aged backup")
	}
	return nil
}

// calculateChecksum returns a sha256:<hex> digest of the file at path.
func (s *R2BackupService) calculateChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// createArchive writes a gzip-compressed tar to archivePath containing
// each of items, read from sourcePath.
func (s *R2BackupService) createArchive(archivePath, sourcePath string, items []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create %s: %w", archivePath, err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, item := range items {
		if err := addFileToArchive(tw, sourcePath, item); err != nil {
			return err
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, sourcePath, item string) error {
	full := filepath.Join(sourcePath, item)

	info, err := os.Stat(full)
	if err != nil {
		return fmt.Errorf("stat %s: %w", item, err)
	}

	file, err := os.Open(full)
	if err != nil {
		return fmt.Errorf("open %s: %w", item, err)
	}
	defer file.Close()

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = item

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
