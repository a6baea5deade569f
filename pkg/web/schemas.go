package web

import (
	"fmt"
	"strings"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

const stringID = `{"type": "string", "minLength": 1}`

const positiveInt = `{"type": "integer", "minimum": 1}`

const money = `{"type": ["string", "number"]}`

const timestamp = `{"type": "string", "format": "date-time"}`

var payloadSchemas = map[models.ItemKind]string{
	models.ItemKindReorder: `{
		"type": "object",
		"required": ["unit_id", "suggested_quantity"],
		"properties": {
			"unit_id": ` + stringID + `,
			"item_code": {"type": "string"},
			"suggested_quantity": ` + positiveInt + `,
			"unit_cost": ` + money + `,
			"estimated_cost": ` + money + `,
			"proposed_supplier_id": {"type": "string"}
		}
	}`,
	models.ItemKindReallocation: `{
		"type": "object",
		"required": ["from_staff_id", "to_staff_id", "load_to_move"],
		"properties": {
			"from_staff_id": ` + stringID + `,
			"to_staff_id": ` + stringID + `,
			"from_department": {"type": "string"},
			"target_department": {"type": "string"},
			"load_to_move": ` + positiveInt + `
		}
	}`,
	models.ItemKindShiftAdjustment: `{
		"type": "object",
		"required": ["staff_id", "mode"],
		"properties": {
			"staff_id": ` + stringID + `,
			"department_id": {"type": "string"},
			"mode": {"enum": ["extend", "pull_forward"]},
			"proposed_shift_start": ` + timestamp + `,
			"proposed_shift_end": ` + timestamp + `
		}
	}`,
	models.ItemKindTransfer: `{
		"type": "object",
		"required": ["resource_kind"],
		"properties": {
			"resource_kind": {"enum": ["supply", "bed", "equipment"]},
			"from_unit_id": {"type": "string"},
			"to_unit_id": {"type": "string"},
			"suggested_quantity": ` + positiveInt + `,
			"unit_type": {"type": "string"},
			"target_department": {"type": "string"},
			"requested_by": {"type": "string"}
		}
	}`,
	models.ItemKindPurchaseOrder: `{
		"type": "object",
		"required": ["supplier_id", "lines"],
		"properties": {
			"supplier_id": ` + stringID + `,
			"lines": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["unit_id", "quantity"],
					"properties": {
						"unit_id": ` + stringID + `,
						"quantity": ` + positiveInt + `,
						"unit_cost": ` + money + `
					}
				}
			}
		}
	}`,
}

// PayloadValidator checks a raw item payload against the JSON schema of its kind.
type PayloadValidator struct {
	schemas map[models.ItemKind]*gojsonschema.Schema
}

func NewPayloadValidator() (*PayloadValidator, error) {
	schemas := make(map[models.ItemKind]*gojsonschema.Schema, len(payloadSchemas))

	for kind, variant := range payloadSchemas {
		document := fmt.Sprintf(`{
			"type": "object",
			"required": [%q],
			"additionalProperties": false,
			"properties": {%q: %s}
		}`, kind, kind, variant)

		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s payload schema: %w", kind, err)
		}

		schemas[kind] = schema
	}

	return &PayloadValidator{schemas: schemas}, nil
}

// Validate returns the schema violations of raw joined in one error.
func (v *PayloadValidator) Validate(kind models.ItemKind, raw []byte) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("unknown kind %q", kind)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}

	return fmt.Errorf("invalid %s payload: %s", kind, strings.Join(violations, "; "))
}
