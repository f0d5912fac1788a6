package util

import "github.com/gofrs/uuid/v5"

func NewID() string {
	return uuid.Must(uuid.NewV4()).String()
}
