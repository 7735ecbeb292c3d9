package flowsync

import (
	"strings"
	"testing"
)

func TestArchivedName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"acme_flowB", "z_acme_flowB"},
		{"z_acme_flowB", "z_acme_flowB"},
	}
	for _, tt := range tests {
		if got := archivedName(tt.in); got != tt.want {
			t.Errorf("archivedName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"acme", "ivr-1", "A_b"} {
		if err := validateIdentifier(ok, "capability"); err != nil {
			t.Errorf("validateIdentifier(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "_acme", "a/b", "a b", strings.Repeat("a", 65)} {
		if err := validateIdentifier(bad, "capability"); err == nil {
			t.Errorf("validateIdentifier(%q) should fail", bad)
		}
	}
}

func TestInstanceIDParameter(t *testing.T) {
	if got := instanceIDParameter("dev", "use1", "ivr1"); got != "/dev/use1/ivr1/amz-connect-instance-id" {
		t.Errorf("got %q", got)
	}
}

func TestBuildResourceTags(t *testing.T) {
	tags := buildResourceTags("ivr1",
		map[string]string{"team": "cx", "env": "dev"},
		map[string]string{"env": "prod"},
	)
	if tags[TagKeyProvisioned] != "ivr1" || tags["team"] != "cx" || tags["env"] != "prod" {
		t.Errorf("tags = %v", tags)
	}
}

func TestSkeletonTemplates(t *testing.T) {
	tests := []struct {
		res  Resource
		want string
	}{
		{Resource{Name: "m"}, templateModule},
		{Resource{Name: "f", Type: "CONTACT_FLOW"}, templateDisconnect},
		{Resource{Name: "w", Type: "AGENT_WHISPER"}, templateWhisper},
		{Resource{Name: "h", Type: "CUSTOMER_HOLD"}, templateHold},
	}
	for _, tt := range tests {
		if got := skeletonTemplate(tt.res); got != tt.want {
			t.Errorf("skeletonTemplate(%s) = %s, want %s", tt.res.Type, got, tt.want)
		}
		content, err := skeletonContent(tt.res)
		if err != nil {
			t.Fatalf("skeletonContent(%s): %v", tt.want, err)
		}
		if _, err := parseFlow(content); err != nil {
			t.Errorf("%s is not valid flow JSON: %v", tt.want, err)
		}
		if strings.Contains(content, "\n") {
			t.Errorf("%s should be compacted", tt.want)
		}
	}
}
