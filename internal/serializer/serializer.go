package serializer

import (
	"fmt"

	"github.com/rpattn/extmodels/internal/domain"
)

// Flatten merges a record's attribute bag into its outward-facing
// representation, beside the declared fields. Bag entries win on a name
// clash, matching how the bag overlays the base representation.
func Flatten(record domain.Record) map[string]any {
	out := map[string]any{
		"id":          record.ID.String(),
		"tenant_id":   record.TenantID.String(),
		"entity_kind": record.EntityKind,
		"name":        record.Name,
	}
	if record.SchemaVersion != nil {
		out["schema_version"] = *record.SchemaVersion
	}
	for k, v := range record.Attributes {
		out[k] = v
	}
	return out
}

// Split partitions an inbound flat payload into declared fields and the
// extension bag by checking the schema's property names. With no schema the
// whole payload is declared; there is no bag to route into.
func Split(payload map[string]any, schema *domain.SchemaDocument) (map[string]any, map[string]any, error) {
	declared := make(map[string]any, len(payload))
	bag := make(map[string]any)

	if schema == nil {
		for k, v := range payload {
			declared[k] = v
		}
		return declared, bag, nil
	}

	properties, err := schema.Properties()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read schema properties: %w", err)
	}

	for k, v := range payload {
		if _, ok := properties[k]; ok {
			bag[k] = v
			continue
		}
		declared[k] = v
	}
	return declared, bag, nil
}
