package store

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/sentinel/internal/domain"
)

// CodeModuleRepository persists domain.CodeModule rows.
type CodeModuleRepository struct {
	db *DB
}

func NewCodeModuleRepository(db *DB) *CodeModuleRepository {
	return &CodeModuleRepository{db: db}
}

// Upsert creates or replaces the code module bound to a monitor.
func (r *CodeModuleRepository) Upsert(ctx context.Context, monitorID int64, registrationName, code string, additionalFiles map[string]string) error {
	encoded, err := msgpack.Marshal(additionalFiles)
	if err != nil {
		return fmt.Errorf("encode additional files: %w", err)
	}

	var existing int64
	err = r.db.conn.QueryRowContext(ctx, `SELECT id FROM code_modules WHERE monitor_id = ?`, monitorID).Scan(&existing)
	switch {
	case err == nil:
		_, err = r.db.conn.ExecContext(ctx,
			`UPDATE code_modules SET registration_name = ?, code = ?, additional_files = ? WHERE id = ?`,
			registrationName, code, encoded, existing)
		return err
	default:
		_, err = r.db.conn.ExecContext(ctx,
			`INSERT INTO code_modules (monitor_id, registration_name, code, additional_files) VALUES (?, ?, ?, ?)`,
			monitorID, registrationName, code, encoded)
		return err
	}
}

// GetByMonitorID loads the code module bound to a monitor.
func (r *CodeModuleRepository) GetByMonitorID(ctx context.Context, monitorID int64) (domain.CodeModule, error) {
	var cm domain.CodeModule
	var additional []byte
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT id, monitor_id, registration_name, code, additional_files FROM code_modules WHERE monitor_id = ?`,
		monitorID).Scan(&cm.ID, &cm.MonitorID, &cm.RegistrationName, &cm.Code, &additional)
	if err != nil {
		return cm, err
	}
	if len(additional) > 0 {
		if err := msgpack.Unmarshal(additional, &cm.AdditionalFiles); err != nil {
			return cm, fmt.Errorf("decode additional files: %w", err)
		}
	}
	return cm, nil
}

// GetAll loads every registered code module, used at startup to rebuild
// the monitor registry.
func (r *CodeModuleRepository) GetAll(ctx context.Context) ([]domain.CodeModule, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT id, monitor_id, registration_name, code, additional_files FROM code_modules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []domain.CodeModule
	for rows.Next() {
		var cm domain.CodeModule
		var additional []byte
		if err := rows.Scan(&cm.ID, &cm.MonitorID, &cm.RegistrationName, &cm.Code, &additional); err != nil {
			return nil, err
		}
		if len(additional) > 0 {
			if err := msgpack.Unmarshal(additional, &cm.AdditionalFiles); err != nil {
				return nil, fmt.Errorf("decode additional files: %w", err)
			}
		}
		modules = append(modules, cm)
	}
	return modules, rows.Err()
}
