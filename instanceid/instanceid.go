package instanceid

import (
	"github.com/google/uuid"
)

// nolint:gochecknoglobals
var instanceID = uuid.New()

// String instance id of the running process as string
func String() string {
	return instanceID.String()
}
