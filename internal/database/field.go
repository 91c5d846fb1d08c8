package database

import (
	"database/sql/driver"
	"encoding/json"

	"moff.io/wallet-pairing/pkg/errors"
)

type JSONBMap map[string]interface{}

func (j JSONBMap) Value() (driver.Value, error) {
	valueString, err := json.Marshal(j)
	return string(valueString), err
}

func (j *JSONBMap) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*j = nil
		return nil
	default:
		return errors.Errorf("scan jsonb from %T", value)
	}
	return json.Unmarshal(data, j)
}
