package main

import (
	"os"

	"github.com/AltairaLabs/connect-flowsync/internal/flowsync"
)

// Environment variable names. The TF_VAR_ forms are read as fallbacks so a
// Terraform-driven pipeline can call the binary without remapping.
const (
	envConfigFile   = "FLOWSYNC_CONFIG"
	envAWSRegion    = "AWS_REGION"
	envEnvironment  = "ENVIRONMENT"
	envCapability   = "CAPABILITY_ID"
	envTFCapability = "TF_VAR_capability_id"
	envIVR          = "IVR_ID"
	envTFIVR        = "TF_VAR_ivr_id"
	envStage        = "STAGE"
	envTFStage      = "TF_VAR_stage"
	envAccount      = "ACCOUNT"
	envInstanceID   = "INSTANCE_ID"
	envBucket       = "FLOWSYNC_BUCKET"
	envDocumentsDir = "FLOWSYNC_DOCUMENTS_DIR"
	envOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logFormat  string
	logLevel   string

	region        string
	environment   string
	capability    string
	ivr           string
	accountID     string
	instanceID    string
	bucket        string
	documentsDir  string
	stage         string
	failFast      bool
	skipUnchanged bool
	traceExporter string
	metricsFile   string
}

// loadConfig assembles the run config: the YAML file first, then
// environment variables, then flags.
func loadConfig(opts *globalOptions) (*flowsync.Config, error) {
	cfg := &flowsync.Config{}
	if path := firstNonEmpty(opts.configPath, os.Getenv(envConfigFile)); path != "" {
		var err error
		if cfg, err = flowsync.LoadConfigFile(path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	applyFlags(cfg, opts)
	return cfg, nil
}

func applyEnv(cfg *flowsync.Config) {
	setIf(&cfg.Region, os.Getenv(envAWSRegion))
	setIf(&cfg.Environment, os.Getenv(envEnvironment))
	setIf(&cfg.Capability, firstNonEmpty(os.Getenv(envCapability), os.Getenv(envTFCapability)))
	setIf(&cfg.IVR, firstNonEmpty(os.Getenv(envIVR), os.Getenv(envTFIVR)))
	setIf(&cfg.Stage, firstNonEmpty(os.Getenv(envStage), os.Getenv(envTFStage)))
	setIf(&cfg.AccountID, os.Getenv(envAccount))
	setIf(&cfg.InstanceID, os.Getenv(envInstanceID))
	setIf(&cfg.Bucket, os.Getenv(envBucket))
	setIf(&cfg.DocumentsDir, os.Getenv(envDocumentsDir))
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = os.Getenv(envOTLPEndpoint)
	}
}

func applyFlags(cfg *flowsync.Config, opts *globalOptions) {
	setIf(&cfg.Region, opts.region)
	setIf(&cfg.Environment, opts.environment)
	setIf(&cfg.Capability, opts.capability)
	setIf(&cfg.IVR, opts.ivr)
	setIf(&cfg.AccountID, opts.accountID)
	setIf(&cfg.InstanceID, opts.instanceID)
	setIf(&cfg.Bucket, opts.bucket)
	setIf(&cfg.DocumentsDir, opts.documentsDir)
	setIf(&cfg.Stage, opts.stage)
	setIf(&cfg.Tracing.Exporter, opts.traceExporter)
	setIf(&cfg.Metrics.File, opts.metricsFile)
	if opts.failFast {
		cfg.FailFast = true
	}
	if opts.skipUnchanged {
		cfg.SkipUnchanged = true
	}
}

func setIf(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
