package common

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// MustGetJSONString renders m as JSON for log lines, "{}" on failure.
func MustGetJSONString(m interface{}) string {
	if m == nil {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		log.Error(err)
		return "{}"
	}
	return string(data)
}
