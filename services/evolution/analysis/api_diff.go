// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"fmt"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

// compareAPISurfaces computes the structural differences between two API
// surfaces: added, removed, modified, deprecated, and undeprecated
// operations. Comparison is purely structural (name, parameters, return
// shape); documentation and ordering changes are invisible here.
func compareAPISurfaces(prev, curr []datatypes.APISignature) []APIChange {
	changes := make([]APIChange, 0)

	prevByName := make(map[string]datatypes.APISignature, len(prev))
	for _, sig := range prev {
		prevByName[sig.Name] = sig
	}
	currByName := make(map[string]datatypes.APISignature, len(curr))
	for _, sig := range curr {
		currByName[sig.Name] = sig
	}

	// Removed operations.
	for _, sig := range prev {
		if _, ok := currByName[sig.Name]; !ok {
			changes = append(changes, APIChange{
				Kind:      APIRemoved,
				Operation: sig.Name,
				Breaking:  true,
			})
		}
	}

	for _, sig := range curr {
		old, existed := prevByName[sig.Name]
		if !existed {
			changes = append(changes, APIChange{
				Kind:      APIAdded,
				Operation: sig.Name,
				Breaking:  false,
			})
			continue
		}

		changes = append(changes, compareSignatures(old, sig)...)

		if !old.Deprecated && sig.Deprecated {
			changes = append(changes, APIChange{
				Kind:      APIDeprecated,
				Operation: sig.Name,
				Breaking:  false,
			})
		}
		if old.Deprecated && !sig.Deprecated {
			changes = append(changes, APIChange{
				Kind:      APIUndeprecated,
				Operation: sig.Name,
				Breaking:  false,
			})
		}
	}

	return changes
}

// compareSignatures applies the fixed modification rule table to one
// operation present in both surfaces:
//
//   - parameter removed            -> breaking
//   - parameter type changed       -> breaking
//   - return type changed          -> breaking
//   - optional -> required, no default -> breaking
//   - parameter added optionally   -> non-breaking
func compareSignatures(old, new datatypes.APISignature) []APIChange {
	changes := make([]APIChange, 0)

	oldParams := make(map[string]datatypes.Parameter, len(old.Parameters))
	for _, p := range old.Parameters {
		oldParams[p.Name] = p
	}
	newParams := make(map[string]datatypes.Parameter, len(new.Parameters))
	for _, p := range new.Parameters {
		newParams[p.Name] = p
	}

	for _, p := range old.Parameters {
		if _, ok := newParams[p.Name]; !ok {
			changes = append(changes, APIChange{
				Kind:      APIParamRemoved,
				Operation: old.Name,
				Detail:    p.Name,
				Breaking:  true,
			})
		}
	}

	for _, p := range new.Parameters {
		prev, existed := oldParams[p.Name]
		if !existed {
			// Newly required parameters without a default are treated as
			// a required-ness tightening, not a benign addition.
			breaking := p.Required && !p.HasDefault
			kind := APIParamAdded
			if breaking {
				kind = APIRequiredTightened
			}
			changes = append(changes, APIChange{
				Kind:      kind,
				Operation: old.Name,
				Detail:    p.Name,
				Breaking:  breaking,
			})
			continue
		}

		if prev.Type != p.Type {
			changes = append(changes, APIChange{
				Kind:      APIParamTypeChanged,
				Operation: old.Name,
				Detail:    fmt.Sprintf("%s: %s -> %s", p.Name, prev.Type, p.Type),
				Breaking:  true,
			})
		}

		if !prev.Required && p.Required && !p.HasDefault {
			changes = append(changes, APIChange{
				Kind:      APIRequiredTightened,
				Operation: old.Name,
				Detail:    p.Name,
				Breaking:  true,
			})
		}
	}

	if old.ReturnType != new.ReturnType {
		changes = append(changes, APIChange{
			Kind:      APIReturnTypeChanged,
			Operation: old.Name,
			Detail:    fmt.Sprintf("%s -> %s", old.ReturnType, new.ReturnType),
			Breaking:  true,
		})
	}

	return changes
}

// apiChangeSeverity maps an API change to its breaking-change severity.
// Removed operations and return-type changes are critical; parameter
// removals, type changes, and required-ness tightening are high.
func apiChangeSeverity(kind APIChangeKind) Severity {
	switch kind {
	case APIRemoved, APIReturnTypeChanged:
		return SeverityCritical
	case APIParamRemoved, APIParamTypeChanged, APIRequiredTightened:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// apiMigrationHint suggests the caller-side fix for a breaking API change.
func apiMigrationHint(change APIChange) string {
	switch change.Kind {
	case APIRemoved:
		return fmt.Sprintf("replace calls to removed operation %q", change.Operation)
	case APIReturnTypeChanged:
		return fmt.Sprintf("adapt handling of %q return value (%s)", change.Operation, change.Detail)
	case APIParamRemoved:
		return fmt.Sprintf("drop argument %q when calling %q", change.Detail, change.Operation)
	case APIParamTypeChanged:
		return fmt.Sprintf("convert argument for %q (%s)", change.Operation, change.Detail)
	case APIRequiredTightened:
		return fmt.Sprintf("supply now-required argument %q to %q", change.Detail, change.Operation)
	default:
		return ""
	}
}
