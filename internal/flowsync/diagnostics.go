package flowsync

import (
	"fmt"
	"strings"
)

// DiagnosticWarning represents a non-fatal issue detected before a run.
type DiagnosticWarning struct {
	Category string
	Message  string
	Hint     string
}

// String formats the warning for display.
func (w DiagnosticWarning) String() string {
	if w.Hint != "" {
		return fmt.Sprintf("[%s] %s (hint: %s)", w.Category, w.Message, w.Hint)
	}
	return fmt.Sprintf("[%s] %s", w.Category, w.Message)
}

// Diagnose checks the configuration for op and returns warnings. Unlike
// Validate, these do not stop a run; they point at settings that are
// likely to produce a surprising result.
func Diagnose(cfg *Config, op string) []DiagnosticWarning {
	var warnings []DiagnosticWarning
	warnings = append(warnings, diagnoseRegion(cfg)...)
	warnings = append(warnings, diagnoseMarker(cfg, op)...)
	warnings = append(warnings, diagnoseStages(cfg, op)...)
	warnings = append(warnings, diagnoseObjectMap(cfg)...)
	return warnings
}

func diagnoseRegion(cfg *Config) []DiagnosticWarning {
	if cfg.Region == "" || cfg.RegionShort() != "" {
		return nil
	}
	return []DiagnosticWarning{{
		Category: ErrCategoryConfiguration,
		Message:  fmt.Sprintf("region %q has no short name; function names will not be trimmed", cfg.Region),
		Hint:     "add it under region_short_names",
	}}
}

func diagnoseMarker(cfg *Config, op string) []DiagnosticWarning {
	if op != OpDeploy || cfg.Marker() != "" {
		return nil
	}
	return []DiagnosticWarning{{
		Category: ErrCategoryConfiguration,
		Message:  "managed_marker is empty; every flow in the capability can be overwritten",
		Hint:     fmt.Sprintf("remove the override to restrict updates to names ending in %s", DefaultManagedMarker),
	}}
}

func diagnoseStages(cfg *Config, op string) []DiagnosticWarning {
	if op != OpExport {
		return nil
	}
	if len(cfg.Stages) == 0 {
		return []DiagnosticWarning{{
			Category: ErrCategoryConfiguration,
			Message:  "stages is empty; function names are exported with their stage",
			Hint:     "list every deployment stage so exports are portable",
		}}
	}
	stage := cfg.EffectiveStage()
	for _, s := range cfg.Stages {
		if s == stage {
			return nil
		}
	}
	return []DiagnosticWarning{{
		Category: ErrCategoryConfiguration,
		Message:  fmt.Sprintf("stage %q is not in stages %s", stage, strings.Join(cfg.Stages, ", ")),
	}}
}

func diagnoseObjectMap(cfg *Config) []DiagnosticWarning {
	limit := cfg.ObjectMap.PayloadLimit
	if limit == 0 || limit <= DefaultObjectMapLimit {
		return nil
	}
	return []DiagnosticWarning{{
		Category: ErrCategoryConfiguration,
		Message:  fmt.Sprintf("object_map.payload_limit %d exceeds the %d bytes Connect accepts", limit, DefaultObjectMapLimit),
		Hint:     "Connect will reject the update; lower the limit or disable inject_all",
	}}
}

// FormatWarnings returns a multi-line string from a list of warnings,
// suitable for display to the user.
func FormatWarnings(warnings []DiagnosticWarning) string {
	if len(warnings) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d diagnostic warning(s):\n", len(warnings))
	for i, w := range warnings {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, w.String())
	}
	return b.String()
}
