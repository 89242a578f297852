package db

import (
	"database/sql"
	"encoding/json"

	"github.com/edustack/practice-api/utils"
)

// encodeJSON marshals v for storage in a nullable TEXT column. Nil and
// empty values are stored as NULL.
func encodeJSON(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		utils.LogError("Failed to marshal JSON column: %v", err)
		return nil
	}
	if string(data) == "null" || string(data) == "{}" || string(data) == "[]" {
		return nil
	}
	return string(data)
}

// decodeJSON unmarshals a nullable TEXT column into target, ignoring NULLs
// and logging (not failing) on malformed content.
func decodeJSON(raw sql.NullString, target any) {
	if !raw.Valid || raw.String == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw.String), target); err != nil {
		utils.LogError("Failed to unmarshal JSON column: %v", err)
	}
}
