package records

import "kvedit/internal/kvstore"

// HasFields reports whether record carries every listed field. Empty values count.
func HasFields(record kvstore.Record, fields []string) bool {
	for _, field := range fields {
		if _, ok := record[field]; !ok {
			return false
		}
	}
	return true
}

// AllHaveFields reports whether every record carries every listed field.
func AllHaveFields(rows []kvstore.Record, fields []string) bool {
	for _, row := range rows {
		if !HasFields(row, fields) {
			return false
		}
	}
	return true
}

// MissingFields returns the listed fields absent from at least one record,
// in the order they were listed.
func MissingFields(rows []kvstore.Record, fields []string) []string {
	var missing []string
	for _, field := range fields {
		for _, row := range rows {
			if _, ok := row[field]; !ok {
				missing = append(missing, field)
				break
			}
		}
	}
	return missing
}

// Project copies each record keeping only the listed fields. Fields the
// source record lacks are left out of the copy.
func Project(rows []kvstore.Record, fields []string) []kvstore.Record {
	out := make([]kvstore.Record, 0, len(rows))
	for _, row := range rows {
		projected := make(kvstore.Record, len(fields))
		for _, field := range fields {
			if value, ok := row[field]; ok {
				projected[field] = value
			}
		}
		out = append(out, projected)
	}
	return out
}

// Without returns the fields minus the excluded names.
func Without(fields []string, exclude ...string) []string {
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		skip := false
		for _, ex := range exclude {
			if field == ex {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, field)
		}
	}
	return out
}
