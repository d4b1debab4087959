package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"recut/internal/matching"
	"recut/internal/project"
	"recut/internal/services"
	"recut/internal/timeline"
)

const projectColumns = "id, name, source_reference, target_language, video_path, render_path, stage, failure_step, failure_last_good, failure_reason, failed_at, targets_json, timeline_duration, revision, created_at, updated_at"

// Create inserts a new project at revision 1.
func (s *Store) Create(ctx context.Context, p *project.Project) error {
	if p == nil {
		return errors.New("project is nil")
	}
	now := time.Now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM projects WHERE id = ?", p.ID).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return services.Wrap(services.ErrConflict, "store", "create", fmt.Sprintf("project %q already exists", p.ID), nil)
		}
		header, err := headerArgs(p)
		if err != nil {
			return err
		}
		args := append(header, int64(1), formatTime(now), formatTime(now))
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...,
		); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		return writeChildren(ctx, tx, p)
	})
	if err != nil {
		return err
	}
	p.Revision = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// Save writes p if its revision still matches the stored one and bumps the
// revision. A stale copy fails with services.ErrConflict.
func (s *Store) Save(ctx context.Context, p *project.Project) error {
	if p == nil {
		return errors.New("project is nil")
	}
	now := time.Now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		header, err := headerArgs(p)
		if err != nil {
			return err
		}
		// header[0] is the id; the UPDATE wants it last.
		args := append(header[1:], formatTime(now), header[0], p.Revision)
		res, err := tx.ExecContext(ctx,
			`UPDATE projects SET
                name = ?, source_reference = ?, target_language = ?, video_path = ?, render_path = ?,
                stage = ?, failure_step = ?, failure_last_good = ?, failure_reason = ?, failed_at = ?,
                targets_json = ?, timeline_duration = ?, revision = revision + 1, updated_at = ?
            WHERE id = ? AND revision = ?`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var current int64
			switch err := tx.QueryRowContext(ctx, "SELECT revision FROM projects WHERE id = ?", p.ID).Scan(&current); {
			case errors.Is(err, sql.ErrNoRows):
				return services.Wrap(services.ErrNotFound, "store", "save", fmt.Sprintf("project %q", p.ID), nil)
			case err != nil:
				return err
			}
			return services.Wrap(services.ErrConflict, "store", "save",
				fmt.Sprintf("project %q changed concurrently (have revision %d, stored %d)", p.ID, p.Revision, current), nil)
		}
		for _, table := range childTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE project_id = ?", p.ID); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return writeChildren(ctx, tx, p)
	})
	if err != nil {
		return err
	}
	p.Revision++
	p.UpdatedAt = now
	return nil
}

var childTables = []string{"scenes", "scene_matches", "match_candidates", "transcript_segments", "script_entries", "dispatches"}

// Get loads a project with every child record.
func (s *Store) Get(ctx context.Context, id string) (*project.Project, error) {
	ctx = ensureContext(ctx)
	var p *project.Project
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
		header, duration, err := scanProject(row)
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "store", "get", fmt.Sprintf("project %q", id), nil)
		}
		if err != nil {
			return err
		}
		if err := s.loadChildren(ctx, header, duration); err != nil {
			return err
		}
		p = header
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns every project ordered by most recent update.
func (s *Store) List(ctx context.Context) ([]*project.Project, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM projects ORDER BY updated_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*project.Project, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Delete removes a project and its records.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return services.Wrap(services.ErrNotFound, "store", "delete", fmt.Sprintf("project %q", id), nil)
		}
		return nil
	})
}

// StageCounts tallies projects per stage.
func (s *Store) StageCounts(ctx context.Context) (map[project.Stage]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT stage, COUNT(1) FROM projects GROUP BY stage")
	if err != nil {
		return nil, fmt.Errorf("count stages: %w", err)
	}
	defer rows.Close()
	counts := make(map[project.Stage]int)
	for rows.Next() {
		var (
			stage string
			count int
		)
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		counts[project.Stage(stage)] = count
	}
	return counts, rows.Err()
}

func headerArgs(p *project.Project) ([]any, error) {
	var targets any
	if len(p.Targets) > 0 {
		data, err := json.Marshal(p.Targets)
		if err != nil {
			return nil, fmt.Errorf("encode targets: %w", err)
		}
		targets = string(data)
	}
	var (
		failStep, failLastGood, failReason, failedAt any
		duration                                     any
	)
	if p.Failure != nil {
		failStep = string(p.Failure.Step)
		failLastGood = string(p.Failure.LastGood)
		failReason = p.Failure.Reason
		failedAt = formatTime(p.Failure.At)
	}
	if p.Timeline != nil {
		duration = p.Timeline.Duration()
	}
	return []any{
		p.ID,
		p.Name,
		p.SourceReference,
		nullableString(p.TargetLanguage),
		nullableString(p.VideoPath),
		nullableString(p.RenderPath),
		string(p.Stage),
		failStep,
		failLastGood,
		failReason,
		failedAt,
		targets,
		duration,
	}, nil
}

func writeChildren(ctx context.Context, tx *sql.Tx, p *project.Project) error {
	for _, scene := range p.Timeline.Scenes() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO scenes (project_id, scene_index, start_time, end_time) VALUES (?, ?, ?, ?)",
			p.ID, scene.Index, scene.Start, scene.End,
		); err != nil {
			return fmt.Errorf("insert scene %d: %w", scene.Index, err)
		}
	}
	for i := 0; i < p.SceneCount(); i++ {
		if m, ok := p.Match(i); ok {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO scene_matches (project_id, scene_index, state, best_score) VALUES (?, ?, ?, ?)",
				p.ID, i, string(m.State), m.BestScore,
			); err != nil {
				return fmt.Errorf("insert match %d: %w", i, err)
			}
			for _, c := range m.Candidates {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO match_candidates (project_id, scene_index, rank, source_episode_id, source_start, source_end, confidence)
                     VALUES (?, ?, ?, ?, ?, ?, ?)`,
					p.ID, i, c.Rank, c.EpisodeID, c.SourceStart, c.SourceEnd, c.Confidence,
				); err != nil {
					return fmt.Errorf("insert candidate %d/%d: %w", i, c.Rank, err)
				}
			}
		}
		if seg, ok := p.TranscriptSegment(i); ok {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO transcript_segments (project_id, scene_index, text, language, original_duration) VALUES (?, ?, ?, ?, ?)",
				p.ID, i, seg.Text, nullableString(seg.Language), seg.OriginalDuration,
			); err != nil {
				return fmt.Errorf("insert transcript %d: %w", i, err)
			}
		}
		if entry, ok := p.ScriptEntry(i); ok {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO script_entries (project_id, scene_index, text, language, estimated_duration, original_duration, speed_ratio, classification)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID, i, entry.Text, nullableString(entry.Language), entry.EstimatedDuration, entry.OriginalDuration, entry.SpeedRatio, string(entry.Classification),
			); err != nil {
				return fmt.Errorf("insert script %d: %w", i, err)
			}
		}
	}
	for _, d := range p.Dispatches {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO dispatches (id, project_id, platform, status, detail, dispatched_at) VALUES (?, ?, ?, ?, ?, ?)",
			d.ID, p.ID, d.Platform, string(d.Status), nullableString(d.Detail), formatTime(d.At),
		); err != nil {
			return fmt.Errorf("insert dispatch %s: %w", d.ID, err)
		}
	}
	return nil
}

func (s *Store) loadChildren(ctx context.Context, p *project.Project, duration sql.NullFloat64) error {
	scenes, err := queryScenes(ctx, s.db, p.ID)
	if err != nil {
		return err
	}
	if len(scenes) > 0 {
		if !duration.Valid {
			return fmt.Errorf("project %q has scenes but no timeline duration", p.ID)
		}
		tl, err := timeline.New(scenes, duration.Float64)
		if err != nil {
			return fmt.Errorf("restore timeline for %q: %w", p.ID, err)
		}
		p.Timeline = tl
	}
	n := len(scenes)
	if n > 0 {
		p.Matches = make([]*matching.Result, n)
		p.Transcript = make([]*project.TranscriptSegment, n)
		p.Script = make([]*project.ScriptEntry, n)
	}

	if err := queryEach(ctx, s.db, "SELECT scene_index, state, best_score FROM scene_matches WHERE project_id = ? ORDER BY scene_index", p.ID,
		func(scan func(...any) error) error {
			var (
				idx   int
				state string
				best  float64
			)
			if err := scan(&idx, &state, &best); err != nil {
				return err
			}
			if idx < 0 || idx >= n {
				return fmt.Errorf("match row for missing scene %d", idx)
			}
			parsed, err := matching.ParseState(state)
			if err != nil {
				return err
			}
			p.Matches[idx] = &matching.Result{SceneIndex: idx, State: parsed, BestScore: best}
			return nil
		}); err != nil {
		return err
	}

	if err := queryEach(ctx, s.db,
		"SELECT scene_index, rank, source_episode_id, source_start, source_end, confidence FROM match_candidates WHERE project_id = ? ORDER BY scene_index, rank", p.ID,
		func(scan func(...any) error) error {
			var (
				idx int
				c   matching.Candidate
			)
			if err := scan(&idx, &c.Rank, &c.EpisodeID, &c.SourceStart, &c.SourceEnd, &c.Confidence); err != nil {
				return err
			}
			if idx < 0 || idx >= n || p.Matches[idx] == nil {
				return fmt.Errorf("candidate row for scene %d has no match", idx)
			}
			p.Matches[idx].Candidates = append(p.Matches[idx].Candidates, c)
			return nil
		}); err != nil {
		return err
	}

	if err := queryEach(ctx, s.db,
		"SELECT scene_index, text, language, original_duration FROM transcript_segments WHERE project_id = ? ORDER BY scene_index", p.ID,
		func(scan func(...any) error) error {
			var (
				seg  project.TranscriptSegment
				lang sql.NullString
			)
			if err := scan(&seg.SceneIndex, &seg.Text, &lang, &seg.OriginalDuration); err != nil {
				return err
			}
			if seg.SceneIndex < 0 || seg.SceneIndex >= n {
				return fmt.Errorf("transcript row for missing scene %d", seg.SceneIndex)
			}
			seg.Language = lang.String
			p.Transcript[seg.SceneIndex] = &seg
			return nil
		}); err != nil {
		return err
	}

	if err := queryEach(ctx, s.db,
		"SELECT scene_index, text, language, estimated_duration, original_duration, speed_ratio, classification FROM script_entries WHERE project_id = ? ORDER BY scene_index", p.ID,
		func(scan func(...any) error) error {
			var (
				entry project.ScriptEntry
				lang  sql.NullString
				class string
			)
			if err := scan(&entry.SceneIndex, &entry.Text, &lang, &entry.EstimatedDuration, &entry.OriginalDuration, &entry.SpeedRatio, &class); err != nil {
				return err
			}
			if entry.SceneIndex < 0 || entry.SceneIndex >= n {
				return fmt.Errorf("script row for missing scene %d", entry.SceneIndex)
			}
			entry.Language = lang.String
			entry.Classification = reconcileClass(class)
			p.Script[entry.SceneIndex] = &entry
			return nil
		}); err != nil {
		return err
	}

	if err := queryEach(ctx, s.db,
		"SELECT id, platform, status, detail, dispatched_at FROM dispatches WHERE project_id = ? ORDER BY dispatched_at, id", p.ID,
		func(scan func(...any) error) error {
			var (
				d      project.Dispatch
				status string
				detail sql.NullString
				atRaw  string
			)
			if err := scan(&d.ID, &d.Platform, &status, &detail, &atRaw); err != nil {
				return err
			}
			d.Status = project.DispatchStatus(status)
			d.Detail = detail.String
			if at, err := parseTimeString(atRaw); err == nil {
				d.At = at
			}
			p.Dispatches = append(p.Dispatches, d)
			return nil
		}); err != nil {
		return err
	}
	return nil
}

func queryScenes(ctx context.Context, db *sql.DB, projectID string) ([]timeline.Scene, error) {
	var scenes []timeline.Scene
	err := queryEach(ctx, db, "SELECT scene_index, start_time, end_time FROM scenes WHERE project_id = ? ORDER BY scene_index", projectID,
		func(scan func(...any) error) error {
			var scene timeline.Scene
			if err := scan(&scene.Index, &scene.Start, &scene.End); err != nil {
				return err
			}
			scenes = append(scenes, scene)
			return nil
		})
	if err != nil {
		return nil, err
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].Index < scenes[j].Index })
	return scenes, nil
}

func queryEach(ctx context.Context, db *sql.DB, query, projectID string, fn func(scan func(...any) error) error) error {
	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows.Scan); err != nil {
			return err
		}
	}
	return rows.Err()
}
