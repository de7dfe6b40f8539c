package reliability

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aristath/sentinel/internal/database"
	"github.com/rs/zerolog"
)

// BackupService makes local, on-disk copies of every database it is given.
// It is the first phase of a backup: a plain file copy next to a WAL
// checkpoint, with no cloud upload involved. R2BackupService wraps a
// BackupService to archive and ship the result to Cloudflare R2.
type BackupService struct {
	databases map[string]*database.DB
	dataDir   string
	backupDir string
	log       zerolog.Logger

	mu           sync.Mutex
	lastBackupAt string // YYYY-MM-DD of the last successful DailyBackup
}

// NewBackupService builds a BackupService over databases, keyed by the
// friendly name each will be backed up under (e.g. "monitors" -> monitors.db
// inside backupDir).
func NewBackupService(databases map[string]*database.DB, dataDir, backupDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: databases,
		dataDir:   dataDir,
		backupDir: backupDir,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// DailyBackup checkpoints every database's WAL and copies its file into
// backupDir, overwriting whatever snapshot was there before. It is safe to
// call more than once a day; each call simply refreshes the snapshot.
func (s *BackupService) DailyBackup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	names := s.sortedNames()
	for _, name := range names {
		db := s.databases[name]
		if db == nil {
			continue
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			s.log.Warn().Err(err).Str("database", name).Msg("wal checkpoint failed before backup")
		}

		if err := s.copyDatabaseFile(db.Path(), filepath.Join(s.backupDir, name+".db")); err != nil {
			return fmt.Errorf("backup %s: %w", name, err)
		}
		s.log.Debug().Str("database", name).Msg("local backup refreshed")
	}

	s.lastBackupAt = time.Now().Format("2006-01-02")
	s.log.Info().Int("databases", len(names)).Str("backup_dir", s.backupDir).Msg("daily backup completed")
	return nil
}

// LocalBackupDir returns the directory DailyBackup writes snapshots into.
func (s *BackupService) LocalBackupDir() string {
	return s.backupDir
}

// DatabaseNames returns the backed-up database names in stable order.
func (s *BackupService) DatabaseNames() []string {
	return s.sortedNames()
}

func (s *BackupService) sortedNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *BackupService) copyDatabaseFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
