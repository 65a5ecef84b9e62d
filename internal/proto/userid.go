package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// UserID is a user identifier that clients send either as a JSON number or
// a string. Integer IDs are written back as numbers, anything else as a
// string.
type UserID string

func (id UserID) MarshalJSON() ([]byte, error) {
	s := string(id)
	if s != "" && s == canonicalInt(s) {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("userId must be a number or string: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

func canonicalInt(s string) string {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatInt(n, 10)
}
