package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		plaintextSecretsPolicy(),
		imageTagPolicy(),
		attributeNamingPolicy(),
	}
}

// plaintextSecretsPolicy rejects secret-looking attributes holding literal
// strings. Values of the form ${VAR} are references and pass.
func plaintextSecretsPolicy() Policy {
	return Policy{
		Name:        "no-plaintext-secrets",
		Description: "Rejects plaintext values in password, secret, token and key attributes",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"security"},
		Rego: `package confeval.builtin.secrets

import rego.v1

secret_pattern := ` + "`(?i)(password|passwd|secret|token|api_?key)`" + `

deny contains violation if {
	some key, val in input.attrs
	regex.match(secret_pattern, key)
	is_string(val)
	val != ""
	not startswith(val, "${")
	violation := {
		"message": sprintf("attribute '%s' holds a plaintext secret", [key]),
		"attr": key,
	}
}
`,
	}
}

// imageTagPolicy warns about container images that float.
func imageTagPolicy() Policy {
	return Policy{
		Name:        "image-tag",
		Description: "Warns when an image attribute uses the latest tag or no tag at all",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"reproducibility"},
		Rego: `package confeval.builtin.images

import rego.v1

deny contains violation if {
	image := input.attrs.image
	is_string(image)
	endswith(image, ":latest")
	violation := {
		"message": sprintf("image '%s' uses the latest tag", [image]),
		"attr": "image",
	}
}

deny contains violation if {
	image := input.attrs.image
	is_string(image)
	not regex.match(` + "`[:@][^/]*$`" + `, image)
	violation := {
		"message": sprintf("image '%s' is not pinned to a tag or digest", [image]),
		"attr": "image",
	}
}
`,
	}
}

// attributeNamingPolicy warns about attribute names outside snake_case.
func attributeNamingPolicy() Policy {
	return Policy{
		Name:        "attribute-naming",
		Description: "Warns when attribute names are not snake_case",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package confeval.builtin.naming

import rego.v1

deny contains violation if {
	some key, _ in input.attrs
	not regex.match(` + "`^[a-z_][a-z0-9_]*$`" + `, key)
	violation := {
		"message": sprintf("attribute '%s' is not snake_case", [key]),
		"attr": key,
	}
}
`,
	}
}
