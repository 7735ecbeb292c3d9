package flowsync

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds everything a run needs. It is assembled from an optional
// YAML file, then environment variables, then flags.
type Config struct {
	Region      string `yaml:"region" validate:"required"`
	Environment string `yaml:"environment" validate:"required"`
	Capability  string `yaml:"capability"`
	IVR         string `yaml:"ivr"`
	AccountID   string `yaml:"account_id" validate:"omitempty,numeric,len=12"`
	InstanceID  string `yaml:"instance_id" validate:"omitempty,uuid"`

	// Bucket or DocumentsDir locates the document store.
	Bucket       string `yaml:"bucket" validate:"required_without=DocumentsDir"`
	DocumentsDir string `yaml:"documents_dir"`

	// Stage is substituted for ${STAGE}. Defaults to Environment.
	Stage string `yaml:"stage"`
	// Stages lists every deployment stage; export strips them from
	// function names.
	Stages           []string          `yaml:"stages" validate:"dive,required"`
	RegionShortNames map[string]string `yaml:"region_short_names"`
	// ManagedMarker overrides DefaultManagedMarker. An explicit empty string
	// lets every scoped resource be updated.
	ManagedMarker *string           `yaml:"managed_marker"`
	Filters       FilterConfig      `yaml:"filters"`
	ObjectMap     ObjectMapConfig   `yaml:"object_map"`
	FailFast      bool              `yaml:"fail_fast"`
	SkipUnchanged bool              `yaml:"skip_unchanged"`
	Tags          map[string]string `yaml:"tags"`
	Tracing       TracingConfig     `yaml:"tracing"`
	Metrics       MetricsConfig     `yaml:"metrics"`
}

// FilterConfig holds release filters applied on export.
type FilterConfig struct {
	Flows   []string `yaml:"flows"`
	Modules []string `yaml:"modules"`
}

// ObjectMapConfig tunes the object-map stage.
type ObjectMapConfig struct {
	InjectAll    bool `yaml:"inject_all"`
	PayloadLimit int  `yaml:"payload_limit" validate:"gte=0"`
}

// Trace exporter names.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
	TraceExporterOTLP   = "otlp"
)

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=none stdout otlp"`
	Endpoint string `yaml:"endpoint"`
}

// MetricsConfig names the textfile the run's metrics are written to.
type MetricsConfig struct {
	File string `yaml:"file"`
}

// Operations a config is validated for.
const (
	OpDeploy = "deploy"
	OpPlan   = "plan"
	OpRender = "render"
	OpExport = "export"
)

var regionRE = regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-\d+$`)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadConfigFile reads a YAML config. Unknown keys are rejected.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config bytes. Empty input yields a zero Config.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config YAML: %w", err)
	}
	return &cfg, nil
}

// Marker returns the effective managed marker.
func (c *Config) Marker() string {
	if c.ManagedMarker == nil {
		return DefaultManagedMarker
	}
	return *c.ManagedMarker
}

// EffectiveStage returns Stage, or Environment when unset.
func (c *Config) EffectiveStage() string {
	if c.Stage != "" {
		return c.Stage
	}
	return c.Environment
}

// RegionShort returns the abbreviation for the configured region.
func (c *Config) RegionShort() string {
	if short, ok := c.RegionShortNames[c.Region]; ok {
		return short
	}
	return defaultRegionShortNames[c.Region]
}

// Validate checks the config for op and returns any errors.
func (c *Config) Validate(op string) []string {
	var errs []string

	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, describeFieldError(fe))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if c.Region != "" && !regionRE.MatchString(c.Region) {
		errs = append(errs, fmt.Sprintf("region %q does not match expected format (e.g. us-east-1)", c.Region))
	}

	switch op {
	case OpDeploy, OpPlan, OpRender:
		if c.Capability == "" {
			errs = append(errs, "capability is required")
		} else if err := validateIdentifier(c.Capability, "capability"); err != nil {
			errs = append(errs, err.Error())
		}
		if c.IVR == "" {
			errs = append(errs, "ivr is required")
		} else if err := validateIdentifier(c.IVR, "ivr"); err != nil {
			errs = append(errs, err.Error())
		}
	case OpExport:
		if c.InstanceID == "" && c.IVR == "" {
			errs = append(errs, "export needs instance_id, or ivr to look it up")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown operation %q", op))
	}

	if c.InstanceID == "" && c.IVR != "" && c.RegionShort() == "" && c.Region != "" {
		errs = append(errs, fmt.Sprintf(
			"instance_id is not set and region %q has no short name to build the parameter path; set region_short_names", c.Region))
	}

	errs = append(errs, validateTags(c.Tags)...)
	return errs
}

// describeFieldError renders a validator failure using the YAML key name.
func describeFieldError(fe validator.FieldError) string {
	field := yamlKey(fe.StructField())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_without":
		return "one of bucket or documents_dir is required"
	case "oneof":
		return fmt.Sprintf("%s %q must be one of: %s", field, fe.Value(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s %q is not a UUID", field, fe.Value())
	case "numeric", "len":
		return fmt.Sprintf("%s %q must be a 12-digit account id", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag())
	}
}

var yamlKeys = map[string]string{
	"Region":       "region",
	"Environment":  "environment",
	"AccountID":    "account_id",
	"InstanceID":   "instance_id",
	"Bucket":       "bucket",
	"Stages":       "stages",
	"PayloadLimit": "object_map.payload_limit",
	"Exporter":     "tracing.exporter",
}

// yamlKey maps a struct field name to its YAML key. Slice element fields
// such as "Stages[1]" keep their index.
func yamlKey(field string) string {
	base, index, _ := strings.Cut(field, "[")
	if k, ok := yamlKeys[base]; ok {
		if index != "" {
			return k + "[" + index
		}
		return k
	}
	return field
}

// maxTagKeyLen is the maximum allowed length for a tag key.
const maxTagKeyLen = 128

// maxTagValueLen is the maximum allowed length for a tag value.
const maxTagValueLen = 256

// maxTagCount is the maximum number of tags Connect accepts per resource,
// less the provisioning tag.
const maxTagCount = 49

// validateTags checks user-defined tags for valid keys and values.
func validateTags(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	var errs []string
	if len(tags) > maxTagCount {
		errs = append(errs, fmt.Sprintf("tags: at most %d tags allowed, got %d", maxTagCount, len(tags)))
	}
	for _, k := range sortedKeys(tags) {
		if k == "" {
			errs = append(errs, "tags: key must not be empty")
		}
		if len(k) > maxTagKeyLen {
			errs = append(errs, fmt.Sprintf("tags: key %q exceeds max length %d", k, maxTagKeyLen))
		}
		if len(tags[k]) > maxTagValueLen {
			errs = append(errs, fmt.Sprintf("tags: value for key %q exceeds max length %d", k, maxTagValueLen))
		}
		if k == TagKeyProvisioned {
			errs = append(errs, fmt.Sprintf("tags: key %q is reserved", k))
		}
	}
	return errs
}

// DeployOptions derives the driver options for a validated config.
func (c *Config) DeployOptions(env Env) DeployOptions {
	return DeployOptions{
		Capability: c.Capability,
		IVR:        c.IVR,
		Env:        env,
		Marker:     c.Marker(),
		Inventory: InventoryOptions{
			Region:           env.Region,
			AccountID:        env.AccountID,
			Stage:            env.Stage,
			RegionShortNames: c.RegionShortNames,
		},
		Stages: StageOptions{
			InjectAll:    c.ObjectMap.InjectAll,
			PayloadLimit: c.ObjectMap.PayloadLimit,
		},
		Tags:          c.Tags,
		FailFast:      c.FailFast,
		SkipUnchanged: c.SkipUnchanged,
	}
}

// ExportOptions derives the exporter options.
func (c *Config) ExportOptions() ExportOptions {
	return ExportOptions{
		FlowFilters:   c.Filters.Flows,
		ModuleFilters: c.Filters.Modules,
		Stages:        c.Stages,
	}
}
