// Package ids mints stable identifiers for player characters.
package ids

import "github.com/google/uuid"

func NewCharacterID() string {
	return "char_" + uuid.NewString()
}
