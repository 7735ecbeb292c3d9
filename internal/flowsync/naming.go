package flowsync

import (
	"fmt"
	"regexp"
	"strings"
)

// Resource type labels used in plans, errors and metrics.
const (
	ResTypeFlow   = "contact_flow"
	ResTypeModule = "flow_module"
)

// Naming conventions for archived resources.
const (
	archivePrefix            = "z_"
	orphanFlowDescription    = "Orphaned Flow"
	orphanModuleDescription  = "Orphaned Flow Module"
	defaultCreateDescription = "Deployed via Automation"
	stateArchived            = "ARCHIVED"
	stateActive              = "ACTIVE"
)

// DefaultManagedMarker is the name suffix of flows and modules that
// automation is allowed to update.
const DefaultManagedMarker = "_AUTO"

// connectNamePattern limits names to what the CLI accepts for capability and
// ivr identifiers; they become S3 key and resource name prefixes.
const connectNamePattern = `^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`

var connectNameRe = regexp.MustCompile(connectNamePattern)

// validateIdentifier checks a capability or ivr identifier.
func validateIdentifier(value, field string) error {
	if !connectNameRe.MatchString(value) {
		return fmt.Errorf("%s %q is invalid: must match %s", field, value, connectNamePattern)
	}
	return nil
}

// archivedName returns the name an orphan is renamed to. Names already
// carrying the prefix are left alone so a rerun cannot stack prefixes.
func archivedName(name string) string {
	if strings.HasPrefix(name, archivePrefix) {
		return name
	}
	return archivePrefix + name
}

// resTypeOf returns the resource type label for r.
func resTypeOf(r Resource) string {
	if r.IsFlow() {
		return ResTypeFlow
	}
	return ResTypeModule
}

// defaultRegionShortNames maps regions to the abbreviations used in SSM
// paths and function name suffixes.
var defaultRegionShortNames = map[string]string{
	"us-east-1":      "use1",
	"us-east-2":      "use2",
	"us-west-1":      "usw1",
	"us-west-2":      "usw2",
	"ca-central-1":   "cac1",
	"eu-central-1":   "euc1",
	"eu-west-1":      "euw1",
	"eu-west-2":      "euw2",
	"ap-southeast-1": "apse1",
	"ap-southeast-2": "apse2",
	"ap-northeast-1": "apne1",
	"ap-northeast-2": "apne2",
	"af-south-1":     "afs1",
}

// instanceIDParameter is the SSM parameter holding the Connect instance id.
func instanceIDParameter(env, regionShort, ivr string) string {
	return fmt.Sprintf("/%s/%s/%s/amz-connect-instance-id", env, regionShort, ivr)
}
