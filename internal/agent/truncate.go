package agent

import (
	"encoding/json"
	"fmt"
)

const (
	truncationNoticeEstimate = 120
	truncationSearchWindow   = 500
	minAvailableLen          = 100
)

// truncatableFields are the JSON array fields of tool results that can be cut at
// item boundaries, with the noun used in the truncation notice.
var truncatableFields = []struct {
	key      string
	itemType string
}{
	{key: "rows", itemType: "rows"},
	{key: "sample_rows", itemType: "rows"},
	{key: "tableList", itemType: "tables"},
	{key: "columns", itemType: "columns"},
}

// truncateToolResult shortens a tool result to at most maxLen characters. JSON results
// with a known array field keep whole items; anything else is cut at a nearby boundary.
func truncateToolResult(result string, maxLen int) string {
	if len(result) <= maxLen {
		return result
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(result), &data); err != nil {
		return truncateAtBoundary(result, maxLen)
	}

	for _, field := range truncatableFields {
		if _, ok := data[field.key].([]any); ok {
			return truncateArrayField(data, field.key, field.itemType, maxLen)
		}
	}
	return truncateGenericJSON(data, maxLen)
}

// truncateArrayField keeps as many leading items of data[key] as fit in maxLen.
func truncateArrayField(data map[string]any, key, itemType string, maxLen int) string {
	items := data[key].([]any)

	baseData := make(map[string]any, len(data))
	for k, v := range data {
		baseData[k] = v
	}
	baseData[key] = []any{}
	baseJSON, _ := json.Marshal(baseData)
	baseSize := len(baseJSON) - 2

	availableLen := maxLen - baseSize - truncationNoticeEstimate
	if availableLen < minAvailableLen {
		return truncateGenericJSON(data, maxLen)
	}

	kept := make([]any, 0)
	currentLen := 0
	for _, item := range items {
		itemJSON, err := json.Marshal(item)
		if err != nil {
			continue
		}
		estimatedSize := len(itemJSON) + 2
		if currentLen+estimatedSize > availableLen && len(kept) > 0 {
			break
		}
		kept = append(kept, item)
		currentLen += estimatedSize
	}

	data[key] = kept
	resultJSON, err := json.Marshal(data)
	if err != nil {
		return truncateGenericJSON(data, maxLen)
	}
	result := string(resultJSON)

	if len(kept) < len(items) {
		notice := formatTruncationNotice(itemType, len(kept), len(items))
		for len(kept) > 0 && len(result)+len(notice) > maxLen {
			kept = kept[:len(kept)-1]
			data[key] = kept
			resultJSON, _ = json.Marshal(data)
			result = string(resultJSON)
			notice = formatTruncationNotice(itemType, len(kept), len(items))
		}
		result += notice
	}

	if len(result) > maxLen {
		return truncateGenericJSON(data, maxLen)
	}
	return result
}

func truncateGenericJSON(data map[string]any, maxLen int) string {
	resultJSON, err := json.Marshal(data)
	if err != nil {
		return truncateAtBoundary(fmt.Sprint(data), maxLen)
	}
	return truncateAtBoundary(string(resultJSON), maxLen)
}

func truncateAtBoundary(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}

	cutoff := maxLen - truncationNoticeEstimate
	if cutoff < 0 {
		cutoff = maxLen / 2
	}

	bestBoundary := cutoff
	searchWindow := min(truncationSearchWindow, cutoff)

	for i := cutoff; i > cutoff-searchWindow && i > 0; i-- {
		if text[i] == '\n' || text[i] == '}' || text[i] == ']' {
			bestBoundary = i + 1
			break
		}
		if bestBoundary == cutoff && (text[i] == ',' || text[i] == ' ') {
			bestBoundary = i + 1
		}
	}

	truncated := text[:bestBoundary]
	notice := fmt.Sprintf("\n\n[Result truncated from %d to %d characters to avoid token limits]", len(text), len(truncated))

	if len(truncated)+len(notice) > maxLen {
		cutoff = maxLen - len(notice)
		if cutoff > 0 {
			truncated = text[:cutoff]
		}
	}

	return truncated + notice
}

// formatTruncationNotice creates a truncation notice message.
func formatTruncationNotice(itemType string, shown, total int) string {
	return fmt.Sprintf("\n\n[Result truncated: showing %d of %d %s to avoid token limits]", shown, total, itemType)
}
