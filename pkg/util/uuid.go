package util

import (
	"github.com/google/uuid"
)

// ContentID is a name based uuid of the given bytes, identical inputs share an id
func ContentID(value []byte) string {
	return uuid.NewMD5(uuid.NameSpaceOID, value).String()
}
