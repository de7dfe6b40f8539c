package routine

import (
	"context"
	"fmt"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
)

// solveRoutine evaluates IsSolved against every active issue's current
// data, closing those it considers resolved. Mirrors monitor_handler.py's
// _issues_solve_routine. A monitor with IsSolved == nil (not Solvable)
// never auto-closes issues; they wait for a manual solve_issues action.
func (e *Engine) solveRoutine(ctx context.Context, m *domain.Monitor, module monitor.Module) error {
	if module.IsSolved == nil || len(m.ActiveIssues) == 0 {
		return nil
	}

	sess, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()

	publish := e.publishIssue(m.ID)
	now := e.now()
	for i := range m.ActiveIssues {
		issue := &m.ActiveIssues[i]
		if !module.IsSolved(issue.Data) {
			continue
		}
		eventName := issue.Solve(now)
		if err := e.issues.Save(ctx, sess, *issue, eventName, publish); err != nil {
			return fmt.Errorf("save solved issue %d: %w", issue.ID, err)
		}
	}
	return sess.Commit()
}
