package reliability

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/sentinel/internal/database"
	"github.com/rs/zerolog"
)

func newTestDatabase(t *testing.T, dir, name string) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBackupServiceDailyBackupCopiesEveryDatabase(t *testing.T) {
	dataDir := t.TempDir()
	backupDir := filepath.Join(dataDir, "backups")

	databases := map[string]*database.DB{
		"monitors": newTestDatabase(t, dataDir, "monitors"),
		"events":   newTestDatabase(t, dataDir, "events"),
	}

	service := NewBackupService(databases, dataDir, backupDir, zerolog.New(io.Discard))

	if err := service.DailyBackup(); err != nil {
		t.Fatalf("DailyBackup: %v", err)
	}

	for _, name := range []string{"monitors", "events"} {
		if _, err := os.Stat(filepath.Join(backupDir, name+".db")); err != nil {
			t.Errorf("expected backup copy of %s: %v", name, err)
		}
	}
}

func TestBackupServiceDatabaseNamesSorted(t *testing.T) {
	dataDir := t.TempDir()
	databases := map[string]*database.DB{
		"zeta":  newTestDatabase(t, dataDir, "zeta"),
		"alpha": newTestDatabase(t, dataDir, "alpha"),
	}

	service := NewBackupService(databases, dataDir, filepath.Join(dataDir, "backups"), zerolog.New(io.Discard))

	names := service.DatabaseNames()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("expected sorted [alpha zeta], got %v", names)
	}
}
