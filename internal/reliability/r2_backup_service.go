package reliability

import (
	"archive/tar"
	"bytes"
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

// backupMetadataVersion is the on-disk shape version of BackupMetadata,
// independent of the application's own version.
const backupMetadataVersion = "1.0.0"

// BackupService enumerates the files one backup snapshot must contain: the
// instrument catalog database and the persisted etf_metrics/<TICKER>.json
// snapshots (spec.md §6), not the teacher's 8 sqlite databases.
type BackupService struct {
	dataDir      string
	metricsDir   string
	catalogDBName string
}

// NewBackupService builds a BackupService rooted at dataDir.
func NewBackupService(dataDir, metricsDir, catalogDBName string) *BackupService {
	if catalogDBName == "" {
		catalogDBName = "catalog"
	}
	return &BackupService{dataDir: dataDir, metricsDir: metricsDir, catalogDBName: catalogDBName}
}

// Files lists the backup set: the catalog database plus every persisted
// metric snapshot, relative to dataDir.
func (s *BackupService) Files() ([]string, error) {
	files := []string{s.catalogDBName + ".db"}

	metricsPath := filepath.Join(s.dataDir, s.metricsDir)
	entries, err := os.ReadDir(metricsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return files, nil
		}
		return nil, fmt.Errorf("list metrics snapshots: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(s.metricsDir, e.Name()))
	}
	return files, nil
}

// DatabaseMetadata records one backed-up file's identity and checksum, kept
// as the teacher's field name for the concept even though it now also
// covers the non-sqlite metric snapshot files.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupMetadata is the manifest stored alongside each backup archive.
type BackupMetadata struct {
	Timestamp  time.Time          `json:"timestamp"`
	Version    string             `json:"version"`
	AppVersion string             `json:"app_version"`
	Databases  []DatabaseMetadata `json:"databases"`
}

// BackupInfo describes one backup archive found in R2.
type BackupInfo struct {
	Filename  string
	Timestamp time.Time
	SizeBytes int64
}

// R2BackupService orchestrates archiving the backup set, uploading it to
// R2, and rotating old backups per a retention policy.
type R2BackupService struct {
	r2Client      *R2Client
	backupService *BackupService
	dataDir       string
	appVersion    string
	log           zerolog.Logger
}

// NewR2BackupService builds an R2BackupService.
func NewR2BackupService(r2Client *R2Client, backupService *BackupService, dataDir string, log zerolog.Logger) *R2BackupService {
	return &R2BackupService{
		r2Client:      r2Client,
		backupService: backupService,
		dataDir:       dataDir,
		appVersion:    "0.1.0",
		log:           log.With().Str("service", "r2_backup").Logger(),
	}
}

// CreateBackup archives the backup set, uploads it plus its metadata
// manifest to R2, and returns the resulting BackupInfo.
func (s *R2BackupService) CreateBackup(ctx context.Context) (*BackupInfo, error) {
	files, err := s.backupService.Files()
	if err != nil {
		return nil, fmt.Errorf("enumerate backup files: %w", err)
	}

	now := time.Now().UTC()
	archiveName := fmt.Sprintf("rebalancer-backup-%s.tar.gz", now.Format("2006-01-02-150405"))
	archivePath := filepath.Join(os.TempDir(), archiveName)
	defer os.Remove(archivePath)

	if err := s.createArchive(archivePath, s.dataDir, files); err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	metadata := BackupMetadata{Timestamp: now, Version: backupMetadataVersion, AppVersion: s.appVersion}
	for _, f := range files {
		fullPath := filepath.Join(s.dataDir, f)
		info, err := os.Stat(fullPath)
		if err != nil {
			s.log.Warn().Err(err).Str("file", f).Msg("skipping missing backup member")
			continue
		}
		checksum, err := s.calculateChecksum(fullPath)
		if err != nil {
			return nil, fmt.Errorf("checksum %s: %w", f, err)
		}
		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      filepath.Base(f),
			Filename:  f,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("reopen archive: %w", err)
	}
	defer archiveFile.Close()

	archiveInfo, err := archiveFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	if err := s.r2Client.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return nil, fmt.Errorf("upload archive: %w", err)
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	metadataKey := archiveName + ".metadata.json"
	if err := s.r2Client.Upload(ctx, metadataKey, bytes.NewReader(metadataJSON), int64(len(metadataJSON))); err != nil {
		return nil, fmt.Errorf("upload metadata: %w", err)
	}

	return &BackupInfo{Filename: archiveName, Timestamp: now, SizeBytes: archiveInfo.Size()}, nil
}

// RotateOldBackups deletes backups older than retentionDays, always
// keeping at least minBackupsToKeep regardless of age.
const minBackupsToKeep = 3

func (s *R2BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	objects, err := s.r2Client.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	var backups []BackupInfo
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		key := *obj.Key
		if filepath.Ext(key) == ".json" {
			continue // metadata sidecar, not a backup archive
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		var ts time.Time
		if obj.LastModified != nil {
			ts = *obj.LastModified
		}
		backups = append(backups, BackupInfo{Filename: key, Timestamp: ts, SizeBytes: size})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })

	if retentionDays <= 0 || len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, b := range backups[minBackupsToKeep:] {
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.r2Client.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("file", b.Filename).Msg("failed to delete expired backup")
			continue
		}
		_ = s.r2Client.Delete(ctx, b.Filename+".metadata.json")
		s.log.Info().Str("file", b.Filename).Msg("expired backup rotated out")
	}
	return nil
}

func (s *R2BackupService) calculateChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

func (s *R2BackupService) createArchive(archivePath, sourceDir string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create %s: %w", archivePath, err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	for _, rel := range files {
		fullPath := filepath.Join(sourceDir, rel)
		info, err := os.Stat(fullPath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", fullPath, err)
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("tar header for %s: %w", rel, err)
		}
		header.Name = rel
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write tar header for %s: %w", rel, err)
		}
		f, err := os.Open(fullPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", fullPath, err)
		}
		_, copyErr := io.Copy(tw, f)
		f.Close()
		if copyErr != nil {
			return fmt.Errorf("write %s to archive: %w", rel, copyErr)
		}
	}
	return nil
}
