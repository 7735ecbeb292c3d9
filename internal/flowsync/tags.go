package flowsync

// TagKeyProvisioned marks resources created by a pipeline run. Its value is
// the ivr identifier.
const TagKeyProvisioned = "pipeline_provisioned"

// buildResourceTags merges the provisioning tag, config-level tags and the
// document's own tags. Document tags win, then config tags.
func buildResourceTags(ivr string, configTags, docTags map[string]string) map[string]string {
	tags := make(map[string]string, len(configTags)+len(docTags)+1)
	tags[TagKeyProvisioned] = ivr
	for k, v := range configTags {
		tags[k] = v
	}
	for k, v := range docTags {
		tags[k] = v
	}
	return tags
}
