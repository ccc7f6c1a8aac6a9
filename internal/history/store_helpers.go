package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run           Run
		failedStage   sql.NullString
		errorMessage  sql.NullString
		summary       sql.NullString
		analysisMode  sql.NullString
		requestJSON   sql.NullString
		strategyLabel sql.NullString
		strategyQuery sql.NullString
		modelID       sql.NullString
		modelName     sql.NullString
		modelCategory sql.NullString
		modelScore    sql.NullFloat64
		choiceKind    sql.NullString
		choiceReason  sql.NullString
		variantLabel  sql.NullString
		variantURL    sql.NullString
		modelPath     sql.NullString
		modelSHA      sql.NullString
		bomPath       sql.NullString
		documentPath  sql.NullString
		runDir        sql.NullString
		startedRaw    string
		finishedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&run.RunID,
		&run.Prompt,
		&run.Status,
		&run.State,
		&failedStage,
		&errorMessage,
		&summary,
		&analysisMode,
		&requestJSON,
		&strategyLabel,
		&strategyQuery,
		&modelID,
		&modelName,
		&modelCategory,
		&modelScore,
		&choiceKind,
		&choiceReason,
		&variantLabel,
		&variantURL,
		&modelPath,
		&modelSHA,
		&run.StepCount,
		&bomPath,
		&documentPath,
		&runDir,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Run{}, err
	}
	run.FailedStage = failedStage.String
	run.ErrorMessage = errorMessage.String
	run.Summary = summary.String
	run.AnalysisMode = analysisMode.String
	run.RequestJSON = requestJSON.String
	run.StrategyLabel = strategyLabel.String
	run.StrategyQuery = strategyQuery.String
	run.ModelID = modelID.String
	run.ModelName = modelName.String
	run.ModelCategory = modelCategory.String
	run.ModelScore = modelScore.Float64
	run.ChoiceKind = choiceKind.String
	run.ChoiceReason = choiceReason.String
	run.VariantLabel = variantLabel.String
	run.VariantURL = variantURL.String
	run.ModelPath = modelPath.String
	run.ModelSHA256 = modelSHA.String
	run.BOMPath = bomPath.String
	run.DocumentPath = documentPath.String
	run.RunDir = runDir.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = finished
		}
	}
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
