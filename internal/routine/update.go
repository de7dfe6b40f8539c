package routine

import (
	"context"
	"fmt"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
)

// updateRoutine refreshes the data of every active issue by calling the
// module's Update function, applying the surviving updates within one
// transaction. Mirrors monitor_handler.py's _update_routine.
func (e *Engine) updateRoutine(ctx context.Context, m *domain.Monitor, module monitor.Module) error {
	issuesData := make([]map[string]any, len(m.ActiveIssues))
	for i, issue := range m.ActiveIssues {
		issuesData[i] = issue.Data
	}

	raw, err := module.Update(ctx, issuesData)
	if err != nil {
		return fmt.Errorf("update function: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	activeByModelID := make(map[string]int, len(m.ActiveIssues))
	for i, issue := range m.ActiveIssues {
		activeByModelID[issue.ModelID] = i
	}

	modelIDKey := module.IssueOptions.ModelIDKey
	seen := make(map[string]bool, len(raw))
	type pendingUpdate struct {
		issueIndex int
		data       map[string]any
	}
	var pending []pendingUpdate

	for _, rawIssueData := range raw {
		data := asJSONMap(rawIssueData)
		if data == nil {
			e.log.Warn().Str("monitor", m.Name).Msg("invalid issue data from update function, expected an object")
			continue
		}

		modelID, ok := modelIDValue(data, modelIDKey)
		if !ok {
			e.log.Warn().Str("monitor", m.Name).Str("model_id_key", modelIDKey).
				Msg("update function returned data missing the model id key, skipping")
			continue
		}
		if seen[modelID] {
			e.log.Warn().Str("model_id", modelID).Msg("duplicate model id in update batch, skipping")
			continue
		}
		seen[modelID] = true

		idx, ok := activeByModelID[modelID]
		if !ok {
			e.log.Warn().Str("model_id", modelID).
				Msg("update returned a model id with no matching active issue, skipping")
			continue
		}
		pending = append(pending, pendingUpdate{issueIndex: idx, data: data})
	}

	if len(pending) == 0 {
		return nil
	}

	sess, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()

	publish := e.publishIssue(m.ID)
	for _, p := range pending {
		issue := &m.ActiveIssues[p.issueIndex]
		isSolved := module.IsSolved != nil && module.IsSolved(p.data)
		eventName := issue.UpdateData(p.data, isSolved)
		if err := e.issues.Save(ctx, sess, *issue, eventName, publish); err != nil {
			return fmt.Errorf("save updated issue %d: %w", issue.ID, err)
		}
	}
	return sess.Commit()
}
