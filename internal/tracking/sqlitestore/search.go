package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/stele-ml/stele/internal/runquery"
	"github.com/stele-ml/stele/internal/tracking"
)

// SearchRuns executes a typed filter against the runs table.
//
// Every query carries a deterministic ORDER BY: the caller's time
// ordering plus a run_id tiebreak so equal start times cannot flip
// result order between calls. All values are parameterized, never
// interpolated.
func (s *Store) SearchRuns(ctx context.Context, q tracking.SearchQuery) ([]tracking.Run, error) {
	if err := runquery.Validate(q.Filter); err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}

	var (
		where  []string
		params []any
	)

	if len(q.ExperimentIDs) > 0 {
		placeholders := strings.Repeat("?, ", len(q.ExperimentIDs))
		where = append(where, fmt.Sprintf("runs.experiment_id IN (%s)", placeholders[:len(placeholders)-2]))
		for _, id := range q.ExperimentIDs {
			params = append(params, id)
		}
	}

	if q.Filter != nil {
		filterSQL, filterParams, err := compileFilter(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("search runs: %w", err)
		}
		where = append(where, filterSQL)
		params = append(params, filterParams...)
	}

	order, err := orderClause(q.OrderBy)
	if err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}

	sqlStr := `
		SELECT run_id, experiment_id, name, status, start_time, end_time
		FROM runs
	`
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}
	sqlStr += " ORDER BY " + order
	if q.MaxResults > 0 {
		sqlStr += " LIMIT ?"
		params = append(params, q.MaxResults)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, params...)
	if err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}
	defer rows.Close()

	var runs []tracking.Run
	for rows.Next() {
		var (
			run   tracking.Run
			start int64
			end   sql.NullInt64
		)
		err := rows.Scan(&run.RunID, &run.ExperimentID, &run.Name, (*string)(&run.Status), &start, &end)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartTime = fromMillis(start)
		run.EndTime = fromNullMillis(end)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	// Hydrate tags after the scan loop: sqlite with MaxOpenConns(1)
	// cannot nest queries inside an open rows cursor.
	for i := range runs {
		runs[i].Tags, err = s.loadTags(ctx, runs[i].RunID)
		if err != nil {
			return nil, fmt.Errorf("search runs: %w", err)
		}
		runs[i].Metrics, err = s.loadMetrics(ctx, runs[i].RunID)
		if err != nil {
			return nil, fmt.Errorf("search runs: %w", err)
		}
	}

	if runs == nil {
		runs = []tracking.Run{}
	}
	return runs, nil
}

func orderClause(o tracking.OrderBy) (string, error) {
	switch o {
	case tracking.OrderStartTimeDesc, "":
		return "start_time DESC, run_id COLLATE BINARY ASC", nil
	case tracking.OrderStartTimeAsc:
		return "start_time ASC, run_id COLLATE BINARY ASC", nil
	default:
		return "", fmt.Errorf("unsupported order %q", o)
	}
}

// compileFilter converts a runquery.Filter into a parameterized SQL
// fragment over the runs table. Tag predicates compile to EXISTS
// subqueries against run_tags so multiple tag filters compose as
// independent conjuncts.
func compileFilter(f runquery.Filter) (string, []any, error) {
	switch filter := f.(type) {
	case runquery.TagEquals:
		sqlStr := `EXISTS (
			SELECT 1 FROM run_tags t
			WHERE t.run_id = runs.run_id AND t.key = ? AND t.value = ?
		)`
		return sqlStr, []any{filter.Key, filter.Value}, nil
	case *runquery.TagEquals:
		return compileFilter(*filter)
	case runquery.AttrEquals:
		col, err := attrColumn(filter.Attr)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("runs.%s = ?", col), []any{filter.Value}, nil
	case *runquery.AttrEquals:
		return compileFilter(*filter)
	case runquery.And:
		if len(filter.Filters) == 0 {
			return "1 = 1", nil, nil
		}
		var (
			parts  []string
			params []any
		)
		for _, elem := range filter.Filters {
			sqlStr, elemParams, err := compileFilter(elem)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sqlStr)
			params = append(params, elemParams...)
		}
		return "(" + strings.Join(parts, " AND ") + ")", params, nil
	case *runquery.And:
		return compileFilter(*filter)
	default:
		return "", nil, fmt.Errorf("unsupported filter type: %T", f)
	}
}

func attrColumn(a runquery.Attr) (string, error) {
	switch a {
	case runquery.AttrRunID:
		return "run_id", nil
	case runquery.AttrExperimentID:
		return "experiment_id", nil
	case runquery.AttrStatus:
		return "status", nil
	default:
		return "", fmt.Errorf("unknown run attribute %q", a)
	}
}
