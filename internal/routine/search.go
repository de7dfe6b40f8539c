package routine

import (
	"context"
	"fmt"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
)

// searchRoutine calls the module's Search function and creates new active
// issues for whatever candidates survive validation, deduplication and
// the monitor's issues-creation limit. Mirrors monitor_handler.py's
// _search_routine.
func (e *Engine) searchRoutine(ctx context.Context, m *domain.Monitor, module monitor.Module) error {
	raw, err := module.Search(ctx)
	if err != nil {
		return fmt.Errorf("search function: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	activeModelIDs := make(map[string]bool, len(m.ActiveIssues))
	for _, issue := range m.ActiveIssues {
		activeModelIDs[issue.ModelID] = true
	}

	modelIDKey := module.IssueOptions.ModelIDKey
	seen := make(map[string]bool, len(raw))

	type candidate struct {
		modelID string
		data    map[string]any
	}
	var candidates []candidate

	for _, rawIssueData := range raw {
		data := asJSONMap(rawIssueData)
		if data == nil {
			e.log.Warn().Str("monitor", m.Name).Msg("invalid issue data from search function, expected an object")
			continue
		}

		modelID, ok := modelIDValue(data, modelIDKey)
		if !ok {
			e.log.Warn().Str("monitor", m.Name).Str("model_id_key", modelIDKey).
				Msg("search function returned data missing the model id key, skipping")
			continue
		}
		if activeModelIDs[modelID] {
			continue
		}
		if seen[modelID] {
			e.log.Warn().Str("model_id", modelID).Msg("duplicate model id in search batch, skipping")
			continue
		}
		seen[modelID] = true

		if module.IssueOptions.Unique {
			unique, err := e.issues.IsUnique(ctx, m.ID, modelID)
			if err != nil {
				return fmt.Errorf("check issue uniqueness: %w", err)
			}
			if !unique {
				continue
			}
		}

		if module.IsSolved != nil && module.IsSolved(data) {
			continue
		}

		candidates = append(candidates, candidate{modelID: modelID, data: data})
	}

	if len(candidates) == 0 {
		return nil
	}

	maxIssues := module.MonitorOptions.MaxIssuesCreation
	if maxIssues <= 0 {
		maxIssues = e.defaultMaxIssuesCreation
	}
	if len(candidates) > maxIssues {
		e.log.Warn().Str("monitor", m.Name).Int("found", len(candidates)).Int("limit", maxIssues).
			Msg("search found more issues than max_issues_creation allows, truncating")
		candidates = candidates[:maxIssues]
	}

	sess, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()

	publish := e.publishIssue(m.ID)
	created := make([]domain.Issue, 0, len(candidates))
	for _, c := range candidates {
		issue, err := e.issues.Create(ctx, sess, m.ID, c.modelID, c.data, e.now(), publish)
		if err != nil {
			return fmt.Errorf("create issue %q: %w", c.modelID, err)
		}
		created = append(created, issue)
	}
	if err := sess.Commit(); err != nil {
		return err
	}

	m.AddIssues(created...)
	return nil
}
