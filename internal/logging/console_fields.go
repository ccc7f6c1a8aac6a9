package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

// Keys shown first, in this order, on info-level console lines.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldDecisionType,
	"decision_result",
	"decision_reason",
	FieldStrategy,
	"query",
	"candidate",
	"score",
	"variant",
	"steps",
	"step_ceiling",
	"stage_duration",
	FieldErrorHint,
	FieldImpact,
	"error",
}

// selectFields returns formatted fields for a console line and a count of
// entries hidden at info level. Debug lines show everything.
func selectFields(attrs []kv, debug bool) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	take := func(idx int) {
		used[idx] = true
		attr := attrs[idx]
		if skipKey(attr.key) {
			return
		}
		val := formatValue(attr.value)
		if !debug && (isDebugOnlyKey(attr.key) || len(result) >= infoAttrLimit || hideLongValue(attr.key, val)) {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key, debug), value: val})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				take(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			take(idx)
		}
	}
	return result, hidden
}

func skipKey(key string) bool {
	switch key {
	case "", FieldRunID, FieldStage, FieldComponent:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	switch key {
	case FieldCorrelationID, "detail_ref", "retrieval_ref", "args", "stdout", "stderr":
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir")
}

func hideLongValue(key, value string) bool {
	switch key {
	case "error", FieldErrorHint:
		return false
	}
	return len(value) > 120
}

func displayLabel(key string, raw bool) string {
	if raw {
		return key
	}
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldDecisionType, "decision_result":
		return "Decision"
	case "decision_reason":
		return "Reason"
	case FieldErrorHint:
		return "Hint"
	case "stage_duration":
		return "Duration"
	case "step_ceiling":
		return "Ceiling"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for i, part := range parts {
		if part == "" {
			continue
		}
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func attrString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return formatValue(v)
	}
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().In(time.Local).Format(consoleTimestampLayout)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r < ' ' || r == '"' {
			return true
		}
	}
	return false
}
