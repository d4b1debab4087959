package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"recut/internal/project"
	"recut/internal/reconcile"
)

func scanProject(scanner interface{ Scan(dest ...any) error }) (*project.Project, sql.NullFloat64, error) {
	var (
		p               project.Project
		targetLanguage  sql.NullString
		videoPath       sql.NullString
		renderPath      sql.NullString
		stage           string
		failureStep     sql.NullString
		failureLastGood sql.NullString
		failureReason   sql.NullString
		failedAtRaw     sql.NullString
		targetsJSON     sql.NullString
		duration        sql.NullFloat64
		createdRaw      string
		updatedRaw      string
	)
	if err := scanner.Scan(
		&p.ID,
		&p.Name,
		&p.SourceReference,
		&targetLanguage,
		&videoPath,
		&renderPath,
		&stage,
		&failureStep,
		&failureLastGood,
		&failureReason,
		&failedAtRaw,
		&targetsJSON,
		&duration,
		&p.Revision,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, duration, err
	}

	parsed, ok := project.ParseStage(stage)
	if !ok {
		return nil, duration, fmt.Errorf("project %q has unknown stage %q", p.ID, stage)
	}
	p.Stage = parsed
	p.TargetLanguage = targetLanguage.String
	p.VideoPath = videoPath.String
	p.RenderPath = renderPath.String
	if failureStep.Valid {
		p.Failure = &project.Failure{
			Step:     project.Step(failureStep.String),
			LastGood: project.Stage(failureLastGood.String),
			Reason:   failureReason.String,
		}
		if at, err := parseTimeString(failedAtRaw.String); err == nil {
			p.Failure.At = at
		}
	}
	if targetsJSON.Valid && targetsJSON.String != "" {
		if err := json.Unmarshal([]byte(targetsJSON.String), &p.Targets); err != nil {
			return nil, duration, fmt.Errorf("decode targets for %q: %w", p.ID, err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		p.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		p.UpdatedAt = updated
	}
	return &p, duration, nil
}

func reconcileClass(value string) reconcile.Classification {
	switch c := reconcile.Classification(value); c {
	case reconcile.Acceptable, reconcile.Caution, reconcile.Unacceptable:
		return c
	}
	return reconcile.Unacceptable
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	return time.Parse(time.RFC3339Nano, value)
}
