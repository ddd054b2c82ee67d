// Package policy checks evaluated instances against Open Policy Agent (OPA)
// policies written in Rego.
//
// A policy is a Rego module defining a partial set rule named deny. Each
// instance of an evaluation result, nested instances included, is offered to
// every enabled policy as input:
//
//	{
//	    "schema": "Server",
//	    "attrs": {"name": "web", "image": "nginx:latest"},
//	    "sub_schema": false,
//	    "file": "app.yaml",
//	    "line": 12
//	}
//
// Elements of deny are either strings or objects carrying a "message" and an
// optional "severity" and "attr":
//
//	package platform.ports
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.schema == "Server"
//	    input.attrs.port < 1024
//	    violation := {
//	        "message": sprintf("port %d is privileged", [input.attrs.port]),
//	        "attr": "port",
//	    }
//	}
//
// # Usage
//
//	engine := policy.NewEngine(logger)
//	if err := engine.Load(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//	program.Constrain(engine)
//
// The engine implements decl.Constraint, so violations surface as
// PolicyViolation diagnostics next to schema check failures.
//
// # Severity Levels
//
//   - info and warning findings are logged and do not fail evaluation
//   - error and critical findings become diagnostics
//
// A finding without a severity takes the policy's default. Policies loaded
// from .rego files default to error; .json definitions may set their own.
//
// # Built-in Policies
//
// EnableBuiltins adds:
//
//  1. no-plaintext-secrets - literal strings in password, secret and token attributes
//  2. image-tag - images on the latest tag or without a tag
//  3. attribute-naming - attribute names outside snake_case
//
// # External Data
//
// SetData publishes a document under data.<key>, for allow lists and other
// facts that live outside the declarations.
package policy
