package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

const portsRego = `package platform.ports

import rego.v1

deny contains violation if {
	input.schema == "Server"
	input.attrs.port < 1024
	violation := {
		"message": sprintf("port %d is privileged", [input.attrs.port]),
		"attr": "port",
	}
}

deny contains "server has no name" if {
	input.schema == "Server"
	not input.attrs.name
}
`

func server(t *testing.T, attrs ...value.KV) *value.Instance {
	t.Helper()
	inst := value.NewInstance("Server", diag.Meta("app.yaml", 3, 1))
	for _, kv := range attrs {
		if err := inst.Attrs.Set(kv.Key, kv.Value); err != nil {
			t.Fatalf("Failed to set %s: %v", kv.Key, err)
		}
	}
	return inst
}

func newTestEngine(t *testing.T, policies ...Policy) *Engine {
	t.Helper()
	eng := NewEngine(nil)
	for _, p := range policies {
		if err := eng.Add(context.Background(), p); err != nil {
			t.Fatalf("Failed to add policy %s: %v", p.Name, err)
		}
	}
	return eng
}

func TestNewEngine(t *testing.T) {
	eng := NewEngine(nil)
	if eng == nil {
		t.Fatal("Engine is nil")
	}

	if policies := eng.List(); len(policies) != 0 {
		t.Errorf("Expected no policies, got %d", len(policies))
	}
}

func TestEnableBuiltins(t *testing.T) {
	eng := NewEngine(nil)
	if err := eng.EnableBuiltins(context.Background()); err != nil {
		t.Fatalf("Failed to enable built-in policies: %v", err)
	}

	policies := eng.List()
	expected := []string{"no-plaintext-secrets", "image-tag", "attribute-naming"}
	if len(policies) != len(expected) {
		t.Fatalf("Expected %d policies, got %d", len(expected), len(policies))
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("Expected policy %d to be %s, got %s", i, name, policies[i].Name)
		}
	}
}

func TestConstrain_Ports(t *testing.T) {
	eng := newTestEngine(t, Policy{Name: "ports", Rego: portsRego, Enabled: true})

	tests := []struct {
		name     string
		instance *value.Instance
		messages []string
	}{
		{
			name:     "unprivileged port",
			instance: server(t, value.KV{Key: "name", Value: value.Str("web")}, value.KV{Key: "port", Value: value.Int(8080)}),
		},
		{
			name:     "privileged port",
			instance: server(t, value.KV{Key: "name", Value: value.Str("web")}, value.KV{Key: "port", Value: value.Int(80)}),
			messages: []string{"policy ports: port 80 is privileged"},
		},
		{
			name:     "string and object findings",
			instance: server(t, value.KV{Key: "port", Value: value.Int(22)}),
			messages: []string{"policy ports: server has no name", "policy ports: port 22 is privileged"},
		},
		{
			name:     "other schema",
			instance: value.NewInstance("Client", diag.ConfigMeta{}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := eng.Constrain(context.Background(), value.FromInstance(tt.instance))
			if len(errs) != len(tt.messages) {
				t.Fatalf("Expected %d violations, got %d: %v", len(tt.messages), len(errs), errs)
			}
			for i, msg := range tt.messages {
				if errs[i].Kind != diag.KindPolicyViolation {
					t.Errorf("Expected kind %s, got %s", diag.KindPolicyViolation, errs[i].Kind)
				}
				if errs[i].Message != msg {
					t.Errorf("Expected message %q, got %q", msg, errs[i].Message)
				}
				if errs[i].Schema != "Server" {
					t.Errorf("Expected schema Server, got %s", errs[i].Schema)
				}
				if errs[i].Meta.String() != "app.yaml:3:1" {
					t.Errorf("Expected meta app.yaml:3:1, got %s", errs[i].Meta)
				}
			}
		})
	}
}

func TestConstrain_AttrIsReported(t *testing.T) {
	eng := newTestEngine(t, Policy{Name: "ports", Rego: portsRego, Enabled: true})

	inst := server(t, value.KV{Key: "name", Value: value.Str("web")}, value.KV{Key: "port", Value: value.Int(443)})
	errs := eng.Constrain(context.Background(), value.FromInstance(inst))
	if len(errs) != 1 {
		t.Fatalf("Expected 1 violation, got %d", len(errs))
	}
	if errs[0].Attr != "port" {
		t.Errorf("Expected attr port, got %q", errs[0].Attr)
	}
}

func TestConstrain_NestedInstances(t *testing.T) {
	eng := newTestEngine(t, Policy{Name: "ports", Rego: portsRego, Enabled: true})

	inner := server(t, value.KV{Key: "name", Value: value.Str("db")}, value.KV{Key: "port", Value: value.Int(25)})
	inner.SubSchema = true
	outer := value.NewInstance("Cluster", diag.Meta("app.yaml", 1, 1))
	if err := outer.Attrs.Set("servers", value.ListOf(value.FromInstance(inner))); err != nil {
		t.Fatalf("Failed to set servers: %v", err)
	}

	errs := eng.Constrain(context.Background(), value.FromInstance(outer))
	if len(errs) != 1 {
		t.Fatalf("Expected 1 violation, got %d: %v", len(errs), errs)
	}
	if !strings.Contains(errs[0].Message, "port 25") {
		t.Errorf("Expected nested server violation, got %q", errs[0].Message)
	}
}

func TestConstrain_SeverityOverride(t *testing.T) {
	rego := `package platform.soft

import rego.v1

deny contains {"message": "soft", "severity": "warning"} if {
	input.schema == "Server"
}

deny contains {"message": "hard", "severity": "critical"} if {
	input.schema == "Server"
}
`
	eng := newTestEngine(t, Policy{Name: "soft", Rego: rego, Severity: SeverityInfo, Enabled: true})

	errs := eng.Constrain(context.Background(), value.FromInstance(server(t)))
	if len(errs) != 1 {
		t.Fatalf("Expected only the critical finding, got %d: %v", len(errs), errs)
	}
	if errs[0].Message != "policy soft: hard" {
		t.Errorf("Unexpected message %q", errs[0].Message)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t, Policy{Name: "ports", Rego: portsRego, Enabled: true})
	inst := value.FromInstance(server(t, value.KV{Key: "port", Value: value.Int(80)}))

	if err := eng.DisablePolicy("ports"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}
	if errs := eng.Constrain(context.Background(), inst); len(errs) != 0 {
		t.Errorf("Expected no violations from a disabled policy, got %v", errs)
	}

	if err := eng.EnablePolicy("ports"); err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}
	if errs := eng.Constrain(context.Background(), inst); len(errs) == 0 {
		t.Error("Expected violations after enabling the policy")
	}

	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestAdd_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		errText string
	}{
		{
			name:    "missing name",
			policy:  Policy{Rego: portsRego},
			errText: "invalid policy",
		},
		{
			name:    "syntax error",
			policy:  Policy{Name: "broken", Rego: "package broken\n\ndeny contains if {"},
			errText: "failed to parse policy",
		},
		{
			name:    "bad severity",
			policy:  Policy{Name: "sev", Rego: portsRego, Severity: "fatal"},
			errText: "invalid policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEngine(nil).Add(context.Background(), tt.policy)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Expected error containing %q, got %v", tt.errText, err)
			}
		})
	}
}

func TestAdd_ReplacesByName(t *testing.T) {
	eng := newTestEngine(t,
		Policy{Name: "ports", Rego: portsRego, Enabled: true},
		Policy{Name: "ports", Rego: strings.ReplaceAll(emptyRego, "%s", "platform.ports"), Enabled: true},
	)

	if n := len(eng.List()); n != 1 {
		t.Fatalf("Expected 1 policy, got %d", n)
	}
	inst := value.FromInstance(server(t, value.KV{Key: "port", Value: value.Int(80)}))
	if errs := eng.Constrain(context.Background(), inst); len(errs) != 0 {
		t.Errorf("Expected replaced policy to pass, got %v", errs)
	}
}

func TestSetData(t *testing.T) {
	rego := `package confeval.regions

import rego.v1

deny contains violation if {
	region := input.attrs.region
	not region in data.allowed.regions
	violation := {"message": sprintf("region %s is not allowed", [region]), "attr": "region"}
}
`
	eng := newTestEngine(t, Policy{Name: "regions", Rego: rego, Enabled: true})
	ctx := context.Background()

	if err := eng.SetData(ctx, "allowed", map[string]interface{}{
		"regions": []interface{}{"eu-west-1", "us-east-1"},
	}); err != nil {
		t.Fatalf("Failed to set data: %v", err)
	}

	ok := server(t, value.KV{Key: "region", Value: value.Str("eu-west-1")})
	if errs := eng.Constrain(ctx, value.FromInstance(ok)); len(errs) != 0 {
		t.Errorf("Expected allowed region to pass, got %v", errs)
	}

	bad := server(t, value.KV{Key: "region", Value: value.Str("ap-south-1")})
	errs := eng.Constrain(ctx, value.FromInstance(bad))
	if len(errs) != 1 || errs[0].Message != "policy regions: region ap-south-1 is not allowed" {
		t.Errorf("Unexpected violations: %v", errs)
	}

	if err := eng.SetData(ctx, "a/b", nil); err == nil {
		t.Error("Expected error for nested key")
	}
}

func TestBuiltinPolicies(t *testing.T) {
	eng := NewEngine(nil)
	if err := eng.EnableBuiltins(context.Background()); err != nil {
		t.Fatalf("Failed to enable built-in policies: %v", err)
	}

	tests := []struct {
		name     string
		attrs    []value.KV
		messages []string
	}{
		{
			name: "clean",
			attrs: []value.KV{
				{Key: "db_password", Value: value.Str("${DB_PASSWORD}")},
				{Key: "image", Value: value.Str("nginx:1.27")},
			},
		},
		{
			name: "plaintext secret",
			attrs: []value.KV{
				{Key: "apiKey", Value: value.Str("abc123")},
			},
			messages: []string{"policy no-plaintext-secrets: attribute 'apiKey' holds a plaintext secret"},
		},
		{
			name: "warnings only",
			attrs: []value.KV{
				{Key: "image", Value: value.Str("nginx:latest")},
				{Key: "MaxConns", Value: value.Int(3)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := eng.Constrain(context.Background(), value.FromInstance(server(t, tt.attrs...)))
			if len(errs) != len(tt.messages) {
				t.Fatalf("Expected %d violations, got %d: %v", len(tt.messages), len(errs), errs)
			}
			for i, msg := range tt.messages {
				if errs[i].Message != msg {
					t.Errorf("Expected message %q, got %q", msg, errs[i].Message)
				}
			}
		})
	}
}

func TestViolation_Error(t *testing.T) {
	v := Violation{
		Policy:   "ports",
		Schema:   "Server",
		Attr:     "port",
		Message:  "port 80 is privileged",
		Severity: SeverityError,
		Meta:     diag.Meta("app.yaml", 3, 1),
	}

	err := v.Error()
	if err.Kind != diag.KindPolicyViolation {
		t.Errorf("Expected kind %s, got %s", diag.KindPolicyViolation, err.Kind)
	}
	if err.Attr != "port" || err.Schema != "Server" {
		t.Errorf("Unexpected location fields: %+v", err)
	}
}

func TestSeverity_Blocking(t *testing.T) {
	tests := []struct {
		severity Severity
		want     bool
	}{
		{SeverityInfo, false},
		{SeverityWarning, false},
		{SeverityError, true},
		{SeverityCritical, true},
	}

	for _, tt := range tests {
		if got := tt.severity.Blocking(); got != tt.want {
			t.Errorf("%s.Blocking() = %v, want %v", tt.severity, got, tt.want)
		}
	}
}
