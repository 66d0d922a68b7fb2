package specdiff

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/kamilpajak/fring/internal/openapi"
)

// Option configures a comparison.
type Option func(*differ)

// WithSeverityPolicy overrides the default type-transition severity table.
func WithSeverityPolicy(p SeverityPolicy) Option {
	return func(d *differ) { d.policy = p }
}

type changeKey struct {
	typ  ChangeType
	path string
}

type differ struct {
	policy SeverityPolicy
	diff   *SpecDiff
	seen   map[changeKey]struct{}
}

// Compare walks both specs structurally and produces a classified diff.
// It is a total function: once both operands are valid spec objects the
// comparison cannot fail.
func Compare(oldSpec, newSpec *openapi.Spec, opts ...Option) *SpecDiff {
	d := &differ{
		policy: DefaultSeverityPolicy(),
		diff: &SpecDiff{
			OldVersion: oldSpec.Info.Version,
			NewVersion: newSpec.Info.Version,
		},
		seen: make(map[changeKey]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.compareMetadata(oldSpec, newSpec)
	d.compareEndpoints(oldSpec, newSpec)
	d.compareComponentSchemas(oldSpec, newSpec)
	d.compareSecuritySchemes(oldSpec, newSpec)

	d.diff.recount()
	return d.diff
}

// record appends a change to the given list unless an identical
// (type, path) change was already recorded.
func (d *differ) record(list *[]Change, c Change) {
	key := changeKey{typ: c.Type, path: c.Path}
	if _, dup := d.seen[key]; dup {
		return
	}
	d.seen[key] = struct{}{}
	*list = append(*list, c)
}

func (d *differ) compareMetadata(oldSpec, newSpec *openapi.Spec) {
	type field struct {
		path     string
		old, new string
	}
	fields := []field{
		{"openapi", oldSpec.Version(), newSpec.Version()},
		{"info.title", oldSpec.Info.Title, newSpec.Info.Title},
		{"info.description", oldSpec.Info.Description, newSpec.Info.Description},
		{"info.version", oldSpec.Info.Version, newSpec.Info.Version},
	}
	if oldSpec.Info.Contact != nil || newSpec.Info.Contact != nil {
		oldContact, newContact := oldSpec.Info.Contact, newSpec.Info.Contact
		if oldContact == nil {
			oldContact = &openapi.Contact{}
		}
		if newContact == nil {
			newContact = &openapi.Contact{}
		}
		fields = append(fields,
			field{"info.contact.name", oldContact.Name, newContact.Name},
			field{"info.contact.email", oldContact.Email, newContact.Email},
			field{"info.contact.url", oldContact.URL, newContact.URL},
		)
	}

	for _, f := range fields {
		if f.old == f.new {
			continue
		}
		d.record(&d.diff.Metadata.Modified, Change{
			Type:        ChangeValueChanged,
			Path:        f.path,
			OldValue:    f.old,
			NewValue:    f.new,
			Severity:    SeverityPatch,
			Description: fmt.Sprintf("%s changed from %q to %q", f.path, f.old, f.new),
		})
	}
}

// endpointRef renders the "METHOD /path" reference used across the diff.
func endpointRef(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

func (d *differ) compareEndpoints(oldSpec, newSpec *openapi.Spec) {
	type opKey struct{ method, path string }
	oldOps := make(map[opKey]*openapi.Operation)
	newOps := make(map[opKey]*openapi.Operation)
	for path, item := range oldSpec.Paths {
		for method, op := range item.Operations() {
			oldOps[opKey{method, path}] = op
		}
	}
	for path, item := range newSpec.Paths {
		for method, op := range item.Operations() {
			newOps[opKey{method, path}] = op
		}
	}

	keys := make([]opKey, 0, len(oldOps)+len(newOps))
	for k := range oldOps {
		keys = append(keys, k)
	}
	for k := range newOps {
		if _, ok := oldOps[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].path != keys[j].path {
			return keys[i].path < keys[j].path
		}
		return keys[i].method < keys[j].method
	})

	for _, k := range keys {
		ref := endpointRef(k.method, k.path)
		oldOp, inOld := oldOps[k]
		newOp, inNew := newOps[k]
		switch {
		case inOld && !inNew:
			d.record(&d.diff.Endpoints.Removed, Change{
				Type:              ChangeFieldRemoved,
				Path:              ref,
				OldValue:          k.method,
				Severity:          SeverityBreaking,
				Description:       fmt.Sprintf("endpoint %s was removed", ref),
				AffectedEndpoints: []string{ref},
				SuggestedFix:      "remove or rewrite tests that call " + ref,
			})
		case !inOld && inNew:
			d.record(&d.diff.Endpoints.Added, Change{
				Type:              ChangeFieldAdded,
				Path:              ref,
				NewValue:          k.method,
				Severity:          SeverityMinor,
				Description:       fmt.Sprintf("endpoint %s was added", ref),
				AffectedEndpoints: []string{ref},
			})
		default:
			d.compareOperations(k.method, k.path, oldOp, newOp,
				pathParameters(oldSpec.Paths[k.path]), pathParameters(newSpec.Paths[k.path]))
		}
	}
}

func pathParameters(item openapi.PathItem) []openapi.Parameter {
	return item.Parameters
}

func (d *differ) compareOperations(method, path string, oldOp, newOp *openapi.Operation, oldShared, newShared []openapi.Parameter) {
	ref := endpointRef(method, path)

	if oldOp.Deprecated != newOp.Deprecated {
		sev := SeverityMinor
		desc := fmt.Sprintf("%s is no longer deprecated", ref)
		if newOp.Deprecated {
			sev = SeverityMajor
			desc = fmt.Sprintf("%s is now deprecated", ref)
		}
		d.record(&d.diff.Endpoints.Modified, Change{
			Type:              ChangeDeprecatedChanged,
			Path:              ref,
			OldValue:          oldOp.Deprecated,
			NewValue:          newOp.Deprecated,
			Severity:          sev,
			Description:       desc,
			AffectedEndpoints: []string{ref},
		})
	}

	d.compareParameters(ref, mergeParameters(oldShared, oldOp.Parameters), mergeParameters(newShared, newOp.Parameters))
	d.compareRequestBodies(ref, oldOp.RequestBody, newOp.RequestBody)
	d.compareResponses(ref, oldOp.Responses, newOp.Responses)
	d.compareOperationSecurity(ref, oldOp.Security, newOp.Security)
}

// mergeParameters overlays operation parameters on path-level ones,
// keyed by (in, name).
func mergeParameters(shared, own []openapi.Parameter) []openapi.Parameter {
	merged := make(map[string]openapi.Parameter, len(shared)+len(own))
	order := make([]string, 0, len(shared)+len(own))
	for _, p := range shared {
		key := p.In + ":" + p.Name
		if _, ok := merged[key]; !ok {
			order = append(order, key)
		}
		merged[key] = p
	}
	for _, p := range own {
		key := p.In + ":" + p.Name
		if _, ok := merged[key]; !ok {
			order = append(order, key)
		}
		merged[key] = p
	}
	out := make([]openapi.Parameter, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out
}

func schemaType(s *openapi.Schema) string {
	if s == nil {
		return ""
	}
	return s.Type
}

func (d *differ) compareParameters(ref string, oldParams, newParams []openapi.Parameter) {
	oldByName := make(map[string]openapi.Parameter, len(oldParams))
	for _, p := range oldParams {
		oldByName[p.Name] = p
	}
	newByName := make(map[string]openapi.Parameter, len(newParams))
	for _, p := range newParams {
		newByName[p.Name] = p
	}

	var removed []openapi.Parameter
	for _, oldP := range oldParams {
		if _, ok := newByName[oldP.Name]; !ok {
			removed = append(removed, oldP)
		}
	}
	var added []openapi.Parameter
	for _, newP := range newParams {
		if _, ok := oldByName[newP.Name]; !ok {
			added = append(added, newP)
		}
	}

	// Pair a removed parameter with an added one of identical shape as a
	// rename. This is the strongest rule-healing signal the diff offers.
	renamedOld := make(map[string]string)
	renamedNew := make(map[string]bool)
	for _, oldP := range removed {
		for _, newP := range added {
			if renamedNew[newP.Name] {
				continue
			}
			if oldP.In == newP.In && oldP.Required == newP.Required &&
				schemaType(oldP.Schema) == schemaType(newP.Schema) {
				renamedOld[oldP.Name] = newP.Name
				renamedNew[newP.Name] = true
				break
			}
		}
	}

	for _, oldP := range removed {
		paramPath := ref + ".parameters." + oldP.Name
		if newName, ok := renamedOld[oldP.Name]; ok {
			d.record(&d.diff.Parameters.Modified, Change{
				Type:              ChangeFieldRenamed,
				Path:              paramPath,
				OldValue:          oldP.Name,
				NewValue:          newName,
				Severity:          SeverityBreaking,
				Description:       fmt.Sprintf("parameter %q was renamed to %q on %s", oldP.Name, newName, ref),
				AffectedEndpoints: []string{ref},
				SuggestedFix:      fmt.Sprintf("replace parameter %q with %q", oldP.Name, newName),
			})
			continue
		}
		d.record(&d.diff.Parameters.Removed, Change{
			Type:              ChangeFieldRemoved,
			Path:              paramPath,
			OldValue:          oldP.Name,
			Severity:          SeverityBreaking,
			Description:       fmt.Sprintf("parameter %q was removed from %s", oldP.Name, ref),
			AffectedEndpoints: []string{ref},
			SuggestedFix:      fmt.Sprintf("stop sending parameter %q", oldP.Name),
		})
	}

	for _, newP := range added {
		if renamedNew[newP.Name] {
			continue
		}
		paramPath := ref + ".parameters." + newP.Name
		sev := SeverityMinor
		desc := fmt.Sprintf("optional parameter %q was added to %s", newP.Name, ref)
		fix := ""
		if newP.Required {
			sev = SeverityBreaking
			desc = fmt.Sprintf("required parameter %q was added to %s", newP.Name, ref)
			fix = fmt.Sprintf("add required parameter %q to requests", newP.Name)
		}
		d.record(&d.diff.Parameters.Added, Change{
			Type:              ChangeFieldAdded,
			Path:              paramPath,
			NewValue:          newP.Name,
			Severity:          sev,
			Description:       desc,
			AffectedEndpoints: []string{ref},
			SuggestedFix:      fix,
		})
	}

	for _, oldP := range oldParams {
		newP, ok := newByName[oldP.Name]
		if !ok {
			continue
		}
		paramPath := ref + ".parameters." + oldP.Name

		if oldP.In != newP.In {
			d.record(&d.diff.Parameters.Modified, Change{
				Type:              ChangeValueChanged,
				Path:              paramPath + ".in",
				OldValue:          oldP.In,
				NewValue:          newP.In,
				Severity:          SeverityBreaking,
				Description:       fmt.Sprintf("parameter %q moved from %s to %s on %s", oldP.Name, oldP.In, newP.In, ref),
				AffectedEndpoints: []string{ref},
				SuggestedFix:      fmt.Sprintf("send %q as a %s parameter", oldP.Name, newP.In),
			})
		}

		oldType, newType := schemaType(oldP.Schema), schemaType(newP.Schema)
		if oldType != newType && oldType != "" && newType != "" {
			d.record(&d.diff.Parameters.Modified, Change{
				Type:              ChangeTypeChanged,
				Path:              paramPath + ".type",
				OldValue:          oldType,
				NewValue:          newType,
				Severity:          d.policy.ForTypeChange(oldType, newType),
				Description:       fmt.Sprintf("parameter %q type changed from %s to %s on %s", oldP.Name, oldType, newType, ref),
				AffectedEndpoints: []string{ref},
				SuggestedFix:      fmt.Sprintf("send %q as %s", oldP.Name, newType),
			})
		}

		if oldP.Required != newP.Required {
			sev := SeverityMinor
			desc := fmt.Sprintf("parameter %q is now optional on %s", oldP.Name, ref)
			fix := ""
			if newP.Required {
				sev = SeverityBreaking
				desc = fmt.Sprintf("parameter %q is now required on %s", oldP.Name, ref)
				fix = fmt.Sprintf("always send parameter %q", oldP.Name)
			}
			d.record(&d.diff.Parameters.Modified, Change{
				Type:              ChangeRequiredChanged,
				Path:              paramPath + ".required",
				OldValue:          oldP.Required,
				NewValue:          newP.Required,
				Severity:          sev,
				Description:       desc,
				AffectedEndpoints: []string{ref},
				SuggestedFix:      fix,
			})
		}
	}
}

func (d *differ) compareRequestBodies(ref string, oldBody, newBody *openapi.RequestBody) {
	switch {
	case oldBody == nil && newBody == nil:
		return
	case oldBody == nil:
		sev := SeverityMinor
		if newBody.Required {
			sev = SeverityBreaking
		}
		d.record(&d.diff.Parameters.Added, Change{
			Type:              ChangeFieldAdded,
			Path:              ref + ".requestBody",
			Severity:          sev,
			Description:       fmt.Sprintf("request body was added to %s", ref),
			AffectedEndpoints: []string{ref},
		})
		return
	case newBody == nil:
		d.record(&d.diff.Parameters.Removed, Change{
			Type:              ChangeFieldRemoved,
			Path:              ref + ".requestBody",
			Severity:          SeverityBreaking,
			Description:       fmt.Sprintf("request body was removed from %s", ref),
			AffectedEndpoints: []string{ref},
		})
		return
	}

	if oldBody.Required != newBody.Required {
		sev := SeverityMinor
		desc := fmt.Sprintf("request body is now optional on %s", ref)
		if newBody.Required {
			sev = SeverityBreaking
			desc = fmt.Sprintf("request body is now required on %s", ref)
		}
		d.record(&d.diff.Parameters.Modified, Change{
			Type:              ChangeRequiredChanged,
			Path:              ref + ".requestBody.required",
			OldValue:          oldBody.Required,
			NewValue:          newBody.Required,
			Severity:          sev,
			Description:       desc,
			AffectedEndpoints: []string{ref},
		})
	}

	for mediaType, oldMT := range oldBody.Content {
		newMT, ok := newBody.Content[mediaType]
		if !ok {
			continue
		}
		d.compareSchemas(ref+".requestBody", oldMT.Schema, newMT.Schema, []string{ref})
	}
}

func (d *differ) compareResponses(ref string, oldResponses, newResponses map[string]openapi.Response) {
	codes := make([]string, 0, len(oldResponses)+len(newResponses))
	for code := range oldResponses {
		codes = append(codes, code)
	}
	for code := range newResponses {
		if _, ok := oldResponses[code]; !ok {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	for _, code := range codes {
		oldResp, inOld := oldResponses[code]
		newResp, inNew := newResponses[code]
		respPath := ref + ".responses." + code
		switch {
		case inOld && !inNew:
			d.record(&d.diff.Endpoints.Removed, Change{
				Type:              ChangeFieldRemoved,
				Path:              respPath,
				OldValue:          code,
				Severity:          SeverityBreaking,
				Description:       fmt.Sprintf("response %s was removed from %s", code, ref),
				AffectedEndpoints: []string{ref},
				SuggestedFix:      "update expected status codes for " + ref,
			})
		case !inOld && inNew:
			d.record(&d.diff.Endpoints.Added, Change{
				Type:              ChangeFieldAdded,
				Path:              respPath,
				NewValue:          code,
				Severity:          SeverityMinor,
				Description:       fmt.Sprintf("response %s was added to %s", code, ref),
				AffectedEndpoints: []string{ref},
			})
		default:
			for mediaType, oldMT := range oldResp.Content {
				newMT, ok := newResp.Content[mediaType]
				if !ok {
					continue
				}
				d.compareSchemas(respPath, oldMT.Schema, newMT.Schema, []string{ref})
			}
		}
	}
}

func (d *differ) compareOperationSecurity(ref string, oldSec, newSec []openapi.SecurityRequirement) {
	if reflect.DeepEqual(oldSec, newSec) {
		return
	}
	var sev Severity
	var desc string
	switch {
	case len(oldSec) == 0:
		sev = SeverityBreaking
		desc = fmt.Sprintf("%s now requires authentication", ref)
	case len(newSec) == 0:
		sev = SeverityMinor
		desc = fmt.Sprintf("%s no longer requires authentication", ref)
	default:
		sev = SeverityMajor
		desc = fmt.Sprintf("security requirements changed on %s", ref)
	}
	d.record(&d.diff.Auth.Modified, Change{
		Type:              ChangeValueChanged,
		Path:              ref + ".security",
		OldValue:          oldSec,
		NewValue:          newSec,
		Severity:          sev,
		Description:       desc,
		AffectedEndpoints: []string{ref},
	})
}

func (d *differ) compareComponentSchemas(oldSpec, newSpec *openapi.Spec) {
	oldSchemas := componentSchemas(oldSpec)
	newSchemas := componentSchemas(newSpec)

	names := make([]string, 0, len(oldSchemas)+len(newSchemas))
	for name := range oldSchemas {
		names = append(names, name)
	}
	for name := range newSchemas {
		if _, ok := oldSchemas[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		oldS, inOld := oldSchemas[name]
		newS, inNew := newSchemas[name]
		switch {
		case inOld && !inNew:
			d.record(&d.diff.Schemas.Removed, Change{
				Type:        ChangeFieldRemoved,
				Path:        name,
				OldValue:    name,
				Severity:    SeverityBreaking,
				Description: fmt.Sprintf("schema %q was removed", name),
			})
		case !inOld && inNew:
			d.record(&d.diff.Schemas.Added, Change{
				Type:        ChangeFieldAdded,
				Path:        name,
				NewValue:    name,
				Severity:    SeverityMinor,
				Description: fmt.Sprintf("schema %q was added", name),
			})
		default:
			d.compareSchemas(name, oldS, newS, nil)
		}
	}
}

func componentSchemas(s *openapi.Spec) map[string]*openapi.Schema {
	if s.Components == nil {
		return nil
	}
	return s.Components.Schemas
}

func (d *differ) compareSecuritySchemes(oldSpec, newSpec *openapi.Spec) {
	oldSchemes := securitySchemes(oldSpec)
	newSchemes := securitySchemes(newSpec)

	names := make([]string, 0, len(oldSchemes)+len(newSchemes))
	for name := range oldSchemes {
		names = append(names, name)
	}
	for name := range newSchemes {
		if _, ok := oldSchemes[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		oldScheme, inOld := oldSchemes[name]
		newScheme, inNew := newSchemes[name]
		schemePath := "securitySchemes." + name
		switch {
		case inOld && !inNew:
			d.record(&d.diff.Auth.Removed, Change{
				Type:        ChangeFieldRemoved,
				Path:        schemePath,
				OldValue:    oldScheme.Type,
				Severity:    SeverityBreaking,
				Description: fmt.Sprintf("security scheme %q was removed", name),
			})
		case !inOld && inNew:
			d.record(&d.diff.Auth.Added, Change{
				Type:        ChangeFieldAdded,
				Path:        schemePath,
				NewValue:    newScheme.Type,
				Severity:    SeverityMinor,
				Description: fmt.Sprintf("security scheme %q was added", name),
			})
		case oldScheme.Type != newScheme.Type || oldScheme.Scheme != newScheme.Scheme:
			d.record(&d.diff.Auth.Modified, Change{
				Type:        ChangeTypeChanged,
				Path:        schemePath,
				OldValue:    oldScheme.Type,
				NewValue:    newScheme.Type,
				Severity:    SeverityBreaking,
				Description: fmt.Sprintf("security scheme %q changed type from %s to %s", name, oldScheme.Type, newScheme.Type),
			})
		}
	}
}

func securitySchemes(s *openapi.Spec) map[string]openapi.SecurityScheme {
	if s.Components == nil {
		return nil
	}
	return s.Components.SecuritySchemes
}
