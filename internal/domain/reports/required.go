package reports

import (
	"encoding/json"
	"fmt"
)

// field describes one key a structured payload must carry. Optional keys may be
// absent or null; every other key must be present with a non-null value.
type field struct {
	name     string
	optional bool
	fields   []field // object members
	items    []field // members of each object in an array
}

var activityFields = []field{
	{name: "Metadata", fields: []field{
		{name: "Work_Description"},
		{name: "Stream_Duration_Sec"},
		{name: "Gen_Summary"},
	}},
	{name: "Recharts_Pie", items: []field{
		{name: "name"},
		{name: "value"},
		{name: "seconds"},
	}},
	{name: "Recharts_Timeline", items: []field{
		{name: "category"},
		{name: "start"},
		{name: "end"},
		{name: "task"},
	}},
	{name: "Scores", fields: []field{
		{name: "Prod_Score"},
		{name: "Qual_Score"},
		{name: "Safe_Score"},
	}},
	{name: "Descriptions", fields: []field{
		{name: "Prod_Desc"},
		{name: "Qual_Desc"},
		{name: "Safe_Desc"},
	}},
}

var workerFields = []field{
	{name: "summary"},
	{name: "workers", items: []field{
		{name: "id"},
		{name: "description"},
		{name: "actions", items: []field{
			{name: "action"},
			{name: "startTime"},
			{name: "endTime"},
			{name: "duration"},
			{name: "notes", optional: true},
		}},
	}},
	{name: "hazards", optional: true, items: []field{
		{name: "description"},
		{name: "severity"},
		{name: "timestamp"},
	}},
	{name: "metrics", fields: []field{
		{name: "totalWorkers"},
		{name: "totalActions"},
		{name: "videoDuration"},
		{name: "keyFindings"},
	}},
}

func requiredFields(kind Kind) []field {
	switch kind {
	case KindActivity:
		return activityFields
	case KindWorkerCentric:
		return workerFields
	default:
		return nil
	}
}

// checkPresence reports every required key that is missing or null in raw.
// A zero value decoded from an absent key never counts as present.
func checkPresence(kind Kind, raw []byte) ([]string, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	var v violations
	walkPresence(doc, "", requiredFields(kind), &v)
	return v.list, nil
}

func walkPresence(obj map[string]any, prefix string, fields []field, v *violations) {
	for _, f := range fields {
		path := f.name
		if prefix != "" {
			path = prefix + "." + f.name
		}
		val, ok := obj[f.name]
		if !ok || val == nil {
			v.check(f.optional, path+" is required")
			continue
		}
		switch x := val.(type) {
		case map[string]any:
			if f.fields != nil {
				walkPresence(x, path, f.fields, v)
			}
		case []any:
			for i, item := range x {
				itemPath := fmt.Sprintf("%s[%d]", path, i)
				if item == nil {
					v.check(false, itemPath+" must not be null")
					continue
				}
				if m, ok := item.(map[string]any); ok && f.items != nil {
					walkPresence(m, itemPath, f.items, v)
				}
			}
		}
	}
}
