package reports

import "sort"

// JSONSchema returns the strict JSON schema sent with structuring requests.
// Strict mode needs every property listed as required, so optional fields are nullable instead.
func JSONSchema(kind Kind) (name string, schema map[string]any) {
	switch kind {
	case KindWorkerCentric:
		return "worker_safety_report", workerSchema()
	default:
		return "activity_safety_report", activitySchema()
	}
}

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func arrayOf(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func str() map[string]any { return map[string]any{"type": "string"} }
func num() map[string]any { return map[string]any{"type": "number"} }

func activitySchema() map[string]any {
	score := map[string]any{"type": []string{"number", "string"}}
	summary := arrayOf(str())
	summary["minItems"] = SummaryBulletCount
	summary["maxItems"] = SummaryBulletCount
	return object(map[string]any{
		"Metadata": object(map[string]any{
			"Work_Description":    str(),
			"Stream_Duration_Sec": num(),
			"Gen_Summary":         summary,
		}),
		"Recharts_Pie": arrayOf(object(map[string]any{
			"name":    str(),
			"value":   num(),
			"seconds": num(),
		})),
		"Recharts_Timeline": arrayOf(object(map[string]any{
			"category": str(),
			"start":    num(),
			"end":      num(),
			"task":     str(),
		})),
		"Scores": object(map[string]any{
			"Prod_Score": score,
			"Qual_Score": score,
			"Safe_Score": score,
		}),
		"Descriptions": object(map[string]any{
			"Prod_Desc": str(),
			"Qual_Desc": str(),
			"Safe_Desc": str(),
		}),
	})
}

func workerSchema() map[string]any {
	return object(map[string]any{
		"summary": str(),
		"workers": arrayOf(object(map[string]any{
			"id":          str(),
			"description": str(),
			"actions": arrayOf(object(map[string]any{
				"action":    str(),
				"startTime": str(),
				"endTime":   str(),
				"duration":  str(),
				"notes":     map[string]any{"type": []string{"string", "null"}},
			})),
		})),
		"hazards": map[string]any{
			"type": []string{"array", "null"},
			"items": object(map[string]any{
				"description": str(),
				"severity": map[string]any{
					"type": "string",
					"enum": []string{string(SeverityLow), string(SeverityMedium), string(SeverityHigh), string(SeverityCritical)},
				},
				"timestamp": str(),
			}),
		},
		"metrics": object(map[string]any{
			"totalWorkers":  map[string]any{"type": "integer"},
			"totalActions":  map[string]any{"type": "integer"},
			"videoDuration": str(),
			"keyFindings":   arrayOf(str()),
		}),
	})
}
