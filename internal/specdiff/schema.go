package specdiff

import (
	"fmt"
	"sort"

	"github.com/kamilpajak/fring/internal/openapi"
)

// compareSchemas recursively diffs two schemas, recording path-qualified
// changes (e.g. "Product.properties.sku") into the schemas bucket.
func (d *differ) compareSchemas(path string, oldS, newS *openapi.Schema, endpoints []string) {
	switch {
	case oldS == nil && newS == nil:
		return
	case oldS == nil:
		d.record(&d.diff.Schemas.Added, Change{
			Type:              ChangeFieldAdded,
			Path:              path,
			Severity:          SeverityMinor,
			Description:       fmt.Sprintf("schema was added at %s", path),
			AffectedEndpoints: endpoints,
		})
		return
	case newS == nil:
		d.record(&d.diff.Schemas.Removed, Change{
			Type:              ChangeFieldRemoved,
			Path:              path,
			Severity:          SeverityBreaking,
			Description:       fmt.Sprintf("schema was removed at %s", path),
			AffectedEndpoints: endpoints,
		})
		return
	}

	if oldS.Type != newS.Type && oldS.Type != "" && newS.Type != "" {
		d.record(&d.diff.Schemas.Modified, Change{
			Type:              ChangeTypeChanged,
			Path:              path + ".type",
			OldValue:          oldS.Type,
			NewValue:          newS.Type,
			Severity:          d.policy.ForTypeChange(oldS.Type, newS.Type),
			Description:       fmt.Sprintf("%s type changed from %s to %s", path, oldS.Type, newS.Type),
			AffectedEndpoints: endpoints,
		})
	}

	if oldS.Deprecated != newS.Deprecated {
		sev := SeverityMinor
		desc := fmt.Sprintf("%s is no longer deprecated", path)
		if newS.Deprecated {
			sev = SeverityMajor
			desc = fmt.Sprintf("%s is now deprecated", path)
		}
		d.record(&d.diff.Schemas.Modified, Change{
			Type:              ChangeDeprecatedChanged,
			Path:              path + ".deprecated",
			OldValue:          oldS.Deprecated,
			NewValue:          newS.Deprecated,
			Severity:          sev,
			Description:       desc,
			AffectedEndpoints: endpoints,
		})
	}

	d.compareProperties(path, oldS, newS, endpoints)
	d.compareRequired(path, oldS, newS, endpoints)
	d.compareEnums(path, oldS, newS, endpoints)

	if oldS.Items != nil || newS.Items != nil {
		d.compareSchemas(path+".items", oldS.Items, newS.Items, endpoints)
	}
	d.compareVariants(path+".allOf", oldS.AllOf, newS.AllOf, endpoints)
	d.compareVariants(path+".oneOf", oldS.OneOf, newS.OneOf, endpoints)
	d.compareVariants(path+".anyOf", oldS.AnyOf, newS.AnyOf, endpoints)
}

func (d *differ) compareProperties(path string, oldS, newS *openapi.Schema, endpoints []string) {
	requiredInNew := stringSet(newS.Required)

	names := make([]string, 0, len(oldS.Properties)+len(newS.Properties))
	for name := range oldS.Properties {
		names = append(names, name)
	}
	for name := range newS.Properties {
		if _, ok := oldS.Properties[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var removed, added []string
	for _, name := range names {
		_, inOld := oldS.Properties[name]
		_, inNew := newS.Properties[name]
		switch {
		case inOld && !inNew:
			removed = append(removed, name)
		case !inOld && inNew:
			added = append(added, name)
		default:
			d.compareSchemas(path+".properties."+name, oldS.Properties[name], newS.Properties[name], endpoints)
		}
	}

	// Pair removed/added properties of identical shape as renames so the
	// healer gets an old->new mapping instead of two opaque changes.
	renamedOld := make(map[string]string)
	renamedNew := make(map[string]bool)
	for _, oldName := range removed {
		oldProp := oldS.Properties[oldName]
		for _, newName := range added {
			if renamedNew[newName] {
				continue
			}
			newProp := newS.Properties[newName]
			if oldProp != nil && newProp != nil &&
				oldProp.Type == newProp.Type && oldProp.Format == newProp.Format {
				renamedOld[oldName] = newName
				renamedNew[newName] = true
				break
			}
		}
	}

	for _, name := range removed {
		propPath := path + ".properties." + name
		if newName, ok := renamedOld[name]; ok {
			d.record(&d.diff.Schemas.Modified, Change{
				Type:              ChangeFieldRenamed,
				Path:              propPath,
				OldValue:          name,
				NewValue:          newName,
				Severity:          SeverityBreaking,
				Description:       fmt.Sprintf("property %q was renamed to %q in %s", name, newName, path),
				AffectedEndpoints: endpoints,
				SuggestedFix:      fmt.Sprintf("replace field %q with %q", name, newName),
			})
			continue
		}
		d.record(&d.diff.Schemas.Removed, Change{
			Type:              ChangeFieldRemoved,
			Path:              propPath,
			OldValue:          name,
			Severity:          SeverityBreaking,
			Description:       fmt.Sprintf("property %q was removed from %s", name, path),
			AffectedEndpoints: endpoints,
			SuggestedFix:      fmt.Sprintf("stop referencing field %q", name),
		})
	}

	for _, name := range added {
		if renamedNew[name] {
			continue
		}
		propPath := path + ".properties." + name
		sev := SeverityMinor
		desc := fmt.Sprintf("property %q was added to %s", name, path)
		if requiredInNew[name] {
			sev = SeverityBreaking
			desc = fmt.Sprintf("required property %q was added to %s", name, path)
		}
		d.record(&d.diff.Schemas.Added, Change{
			Type:              ChangeFieldAdded,
			Path:              propPath,
			NewValue:          name,
			Severity:          sev,
			Description:       desc,
			AffectedEndpoints: endpoints,
		})
	}
}

func (d *differ) compareRequired(path string, oldS, newS *openapi.Schema, endpoints []string) {
	oldRequired := stringSet(oldS.Required)
	newRequired := stringSet(newS.Required)

	names := make([]string, 0, len(oldRequired)+len(newRequired))
	for name := range oldRequired {
		names = append(names, name)
	}
	for name := range newRequired {
		if !oldRequired[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		// Newly added properties are covered by compareProperties.
		if _, existed := oldS.Properties[name]; !existed {
			continue
		}
		switch {
		case !oldRequired[name] && newRequired[name]:
			d.record(&d.diff.Schemas.Modified, Change{
				Type:              ChangeRequiredChanged,
				Path:              path + ".required." + name,
				OldValue:          false,
				NewValue:          true,
				Severity:          SeverityBreaking,
				Description:       fmt.Sprintf("property %q is now required in %s", name, path),
				AffectedEndpoints: endpoints,
				SuggestedFix:      fmt.Sprintf("always include field %q", name),
			})
		case oldRequired[name] && !newRequired[name]:
			d.record(&d.diff.Schemas.Modified, Change{
				Type:              ChangeRequiredChanged,
				Path:              path + ".required." + name,
				OldValue:          true,
				NewValue:          false,
				Severity:          SeverityMinor,
				Description:       fmt.Sprintf("property %q is no longer required in %s", name, path),
				AffectedEndpoints: endpoints,
			})
		}
	}
}

func (d *differ) compareEnums(path string, oldS, newS *openapi.Schema, endpoints []string) {
	if len(oldS.Enum) == 0 && len(newS.Enum) == 0 {
		return
	}
	oldVals := enumSet(oldS.Enum)
	newVals := enumSet(newS.Enum)

	var removed, added []string
	for _, v := range oldS.Enum {
		if !newVals[fmt.Sprint(v)] {
			removed = append(removed, fmt.Sprint(v))
		}
	}
	for _, v := range newS.Enum {
		if !oldVals[fmt.Sprint(v)] {
			added = append(added, fmt.Sprint(v))
		}
	}

	if len(removed) > 0 {
		d.record(&d.diff.Schemas.Modified, Change{
			Type:              ChangeEnumChanged,
			Path:              path + ".enum",
			OldValue:          removed,
			Severity:          SeverityBreaking,
			Description:       fmt.Sprintf("enum values %v were removed from %s", removed, path),
			AffectedEndpoints: endpoints,
			SuggestedFix:      fmt.Sprintf("stop using enum values %v", removed),
		})
	}
	if len(added) > 0 {
		d.record(&d.diff.Schemas.Modified, Change{
			Type:              ChangeEnumChanged,
			Path:              path + ".enum.added",
			NewValue:          added,
			Severity:          SeverityMinor,
			Description:       fmt.Sprintf("enum values %v were added to %s", added, path),
			AffectedEndpoints: endpoints,
		})
	}
}

func (d *differ) compareVariants(path string, oldVariants, newVariants []*openapi.Schema, endpoints []string) {
	if len(oldVariants) == 0 && len(newVariants) == 0 {
		return
	}
	if len(oldVariants) != len(newVariants) {
		sev := SeverityBreaking
		if len(newVariants) > len(oldVariants) {
			sev = SeverityMinor
		}
		d.record(&d.diff.Schemas.Modified, Change{
			Type:              ChangeValueChanged,
			Path:              path,
			OldValue:          len(oldVariants),
			NewValue:          len(newVariants),
			Severity:          sev,
			Description:       fmt.Sprintf("%s variant count changed from %d to %d", path, len(oldVariants), len(newVariants)),
			AffectedEndpoints: endpoints,
		})
	}
	for i := 0; i < len(oldVariants) && i < len(newVariants); i++ {
		d.compareSchemas(fmt.Sprintf("%s[%d]", path, i), oldVariants[i], newVariants[i], endpoints)
	}
}

func stringSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func enumSet(values []any) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[fmt.Sprint(v)] = true
	}
	return set
}
