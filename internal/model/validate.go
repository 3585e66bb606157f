package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Normalize canonicalizes enum spellings before validation.
func (in *PickupRequestInput) Normalize() {
	if t, err := ParseWasteType(string(in.WasteType)); err == nil {
		in.WasteType = t
	}
}

// Validate normalizes and checks a pickup request input.
func (in *PickupRequestInput) Validate() error {
	in.Normalize()
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("invalid pickup request: %w", err)
	}
	return nil
}
