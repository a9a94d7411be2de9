package internal

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/mahino/scalar"
)

// Blueprint entity paths. These are the arrays the structural policy
// governs in a multi-service deployment blueprint.
var (
	blueprintServicePath    = scalar.MustParsePath("spec.resources.service_definition_list")
	blueprintPackagePath    = scalar.MustParsePath("spec.resources.package_definition_list")
	blueprintSubstratePath  = scalar.MustParsePath("spec.resources.substrate_definition_list")
	blueprintProfilePath    = scalar.MustParsePath("spec.resources.app_profile_list")
	blueprintDeploymentPath = scalar.MustParsePath("spec.resources.app_profile_list.deployment_create_list")

	// Arrays inside a blueprint that must never be scaled.
	blueprintNonScalablePaths = []scalar.EntityPath{
		scalar.MustParsePath("spec.resources.credential_definition_list"),
		scalar.MustParsePath("spec.resources.default_credential_local_reference"),
	}
)

var scaledNamePattern = regexp.MustCompile(`^scaled_.+_\d{8}_\d{6}$`)

// BlueprintPolicy encodes the derived-count invariants of deployment
// blueprints: total deployments = profiles x deployments-per-profile,
// substrate and package counts forced equal to total deployments, and
// package-to-service assignment always round-robin on package index.
type BlueprintPolicy struct {
	cfg    scalar.BlueprintConfig
	logger *zap.SugaredLogger
}

// NewBlueprintPolicy creates the policy layer.
func NewBlueprintPolicy(cfg scalar.BlueprintConfig, logger *zap.SugaredLogger) *BlueprintPolicy {
	if logger == nil {
		logger = zap.S()
	}
	return &BlueprintPolicy{cfg: cfg, logger: logger}
}

// IsBlueprint reports whether a document has the blueprint shape the
// policy recognizes.
func (p *BlueprintPolicy) IsBlueprint(doc scalar.Document) bool {
	return len(CollectAtPath(doc, blueprintServicePath)) > 0 &&
		len(CollectAtPath(doc, blueprintProfilePath)) > 0
}

// NonScalablePaths returns blueprint arrays excluded from discovery.
func (p *BlueprintPolicy) NonScalablePaths() []scalar.EntityPath {
	return blueprintNonScalablePaths
}

// DeriveCounts injects the policy's derived counts into a copy of the
// caller's count map. Caller-supplied counts for the substrate and
// package paths are overridden (with a warning when they contradict the
// derived value); in single-VM mode the profile and per-profile
// deployment counts are forced to 1 as well.
func (p *BlueprintPolicy) DeriveCounts(doc scalar.Document, counts scalar.EntityCountMap) (scalar.EntityCountMap, []scalar.Warning) {
	derived := make(scalar.EntityCountMap, len(counts)+4)
	for k, v := range counts {
		derived[k] = v
	}
	var warnings []scalar.Warning

	serviceCount := p.currentLen(doc, blueprintServicePath)
	serviceCount = derived.CountFor(blueprintServicePath, serviceCount)

	profileCount := derived.CountFor(blueprintProfilePath, p.currentLen(doc, blueprintProfilePath))
	perProfile := derived.CountFor(blueprintDeploymentPath, maxInt(serviceCount, 1))

	if p.cfg.SingleVMMode {
		for _, forced := range []struct {
			path scalar.EntityPath
			n    int
		}{
			{blueprintProfilePath, 1},
			{blueprintDeploymentPath, 1},
		} {
			if supplied, ok := derived[forced.path.String()]; ok && supplied != 1 {
				warnings = append(warnings, scalar.Warning{
					Type:    scalar.WarningCountIgnored,
					Path:    forced.path.String(),
					Message: fmt.Sprintf("single-VM mode forces count to 1, ignoring %d", supplied),
				})
			}
		}
		profileCount = 1
		perProfile = 1
	}

	totalDeployments := profileCount * perProfile
	for _, forced := range []scalar.EntityPath{blueprintSubstratePath, blueprintPackagePath} {
		if supplied, ok := derived[forced.String()]; ok && supplied != totalDeployments {
			warnings = append(warnings, scalar.Warning{
				Type:    scalar.WarningCountIgnored,
				Path:    forced.String(),
				Message: fmt.Sprintf("count is derived from deployments (%d), ignoring %d", totalDeployments, supplied),
			})
		}
		derived[forced.String()] = totalDeployments
	}
	derived[blueprintProfilePath.String()] = profileCount
	derived[blueprintDeploymentPath.String()] = perProfile

	p.logger.Infow("derived blueprint counts",
		"profiles", profileCount,
		"deployments_per_profile", perProfile,
		"total_deployments", totalDeployments,
		"services", serviceCount)
	return derived, warnings
}

// Finish wires the scaled blueprint together: packages reference
// services round-robin, deployment i references substrate i and package
// i, the document UUID is regenerated, the name is timestamped, and the
// layout grid is rebuilt for the new deployments.
func (p *BlueprintPolicy) Finish(doc scalar.Document, gen *IDGenerator) []scalar.Warning {
	var warnings []scalar.Warning

	services := p.elements(doc, blueprintServicePath)
	packages := p.elements(doc, blueprintPackagePath)
	substrates := p.elements(doc, blueprintSubstratePath)
	deployments := p.elements(doc, blueprintDeploymentPath)

	if len(services) > 0 {
		p.assignPackagesToServices(packages, services)
	} else if len(packages) > 0 {
		warnings = append(warnings, scalar.Warning{
			Type:    scalar.WarningInvalidPath,
			Path:    blueprintServicePath.String(),
			Message: "no services to assign packages to",
		})
	}

	warnings = append(warnings, p.wireDeployments(deployments, substrates, packages)...)
	p.refreshMetadata(doc, gen)
	p.rebuildLayout(doc, deployments)
	return warnings
}

// assignPackagesToServices points package i at service i mod s. Every
// app_service entry of the package's local reference list is updated
// with the chosen service's uuid and name.
func (p *BlueprintPolicy) assignPackagesToServices(packages, services []map[string]any) {
	for i, pkg := range packages {
		service := services[i%len(services)]
		refs, _ := pkg["service_local_reference_list"].([]any)
		for _, ref := range refs {
			refObj, ok := ref.(map[string]any)
			if !ok {
				continue
			}
			if kind, _ := refObj["kind"].(string); kind != "" && kind != "app_service" {
				continue
			}
			if uuid, ok := service["uuid"].(string); ok {
				refObj["uuid"] = uuid
			}
			if name, ok := service["name"].(string); ok {
				refObj["name"] = name
			}
		}
	}
}

// wireDeployments assigns deployment i to substrate i and package i,
// one-to-one on the global deployment index.
func (p *BlueprintPolicy) wireDeployments(deployments, substrates, packages []map[string]any) []scalar.Warning {
	var warnings []scalar.Warning
	for i, deployment := range deployments {
		if i < len(substrates) {
			if uuid, ok := substrates[i]["uuid"].(string); ok {
				setReference(deployment, "substrate_local_reference", uuid)
			}
		} else {
			warnings = append(warnings, scalar.Warning{
				Type:    scalar.WarningInvalidPath,
				Path:    blueprintSubstratePath.String(),
				Message: fmt.Sprintf("deployment %d has no matching substrate", i),
			})
		}
		if i < len(packages) {
			if uuid, ok := packages[i]["uuid"].(string); ok {
				setReferenceList(deployment, "package_local_reference_list", uuid)
			}
		} else {
			warnings = append(warnings, scalar.Warning{
				Type:    scalar.WarningInvalidPath,
				Path:    blueprintPackagePath.String(),
				Message: fmt.Sprintf("deployment %d has no matching package", i),
			})
		}
	}
	return warnings
}

// refreshMetadata regenerates the document UUID and stamps the name so
// generated blueprints never collide with their template.
func (p *BlueprintPolicy) refreshMetadata(doc scalar.Document, gen *IDGenerator) {
	metadata, ok := doc["metadata"].(map[string]any)
	if !ok {
		return
	}
	if _, exists := metadata["uuid"]; exists {
		metadata["uuid"] = gen.NewUUID()
	}
	if name, ok := metadata["name"].(string); ok && name != "" && !scaledNamePattern.MatchString(name) {
		metadata["name"] = fmt.Sprintf("scaled_%s_%s", name, time.Now().Format("20060102_150405"))
	}
}

// rebuildLayout lays deployments out on a grid when the template carried
// no layout, stepping right per deployment and wrapping to a new row.
func (p *BlueprintPolicy) rebuildLayout(doc scalar.Document, deployments []map[string]any) {
	metadata, ok := doc["metadata"].(map[string]any)
	if !ok {
		return
	}
	if attrs, ok := metadata["client_attrs"].(map[string]any); ok && len(attrs) > 0 {
		return
	}

	step := p.cfg.LayoutGridStep
	row := p.cfg.LayoutGridRow
	attrs := make(map[string]any, len(deployments))
	for i, deployment := range deployments {
		uuid, ok := deployment["uuid"].(string)
		if !ok || uuid == "" {
			continue
		}
		attrs[uuid] = map[string]any{
			"x": float64((i % row) * step),
			"y": float64((i / row) * step),
		}
	}
	if len(attrs) > 0 {
		metadata["client_attrs"] = attrs
	}
}

func (p *BlueprintPolicy) elements(doc scalar.Document, path scalar.EntityPath) []map[string]any {
	var out []map[string]any
	for _, value := range CollectAtPath(doc, path) {
		arr, ok := value.([]any)
		if !ok {
			continue
		}
		for _, elem := range arr {
			if obj, ok := elem.(map[string]any); ok {
				out = append(out, obj)
			}
		}
	}
	return out
}

func (p *BlueprintPolicy) currentLen(doc scalar.Document, path scalar.EntityPath) int {
	for _, value := range CollectAtPath(doc, path) {
		if arr, ok := value.([]any); ok {
			return len(arr)
		}
	}
	return 0
}

func setReference(obj map[string]any, field, uuid string) {
	ref, ok := obj[field].(map[string]any)
	if !ok {
		ref = map[string]any{}
		obj[field] = ref
	}
	ref["uuid"] = uuid
}

func setReferenceList(obj map[string]any, field, uuid string) {
	refs, ok := obj[field].([]any)
	if !ok || len(refs) == 0 {
		obj[field] = []any{map[string]any{"uuid": uuid}}
		return
	}
	if ref, ok := refs[0].(map[string]any); ok {
		ref["uuid"] = uuid
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
