// Package models holds the GORM row types mirroring the goose migrations.
package models

import "github.com/google/uuid"

// assignID gives a row a random id unless the caller already chose one.
func assignID(id *uuid.UUID) error {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	return nil
}
