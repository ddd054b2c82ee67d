/*
Package decl loads schema declarations and top-level instances from YAML and
evaluates them.

A declaration file lists schemas and the instances to build from them:

	schemas:
	  - name: Server
	    mixins: [Labeled]
	    attrs:
	      - name: port
	        type: int
	        default: "8080"
	    body:
	      - target: port
	        value: "443"
	        if: tls
	    checks:
	      - expr: port > 0 and port < 65536
	        message: port out of range

	instances:
	  - name: frontend
	    schema: Server
	    config:
	      tls: true
	      replicas: !override 3

Defaults, statement values, guards and checks are Starlark expressions
compiled by package expr. Config keys union by default; the tags !override,
!add and !subtract select another operator. Every declaration and config
entry keeps its file, line and column for diagnostics.

A CUE overlay adds config fragments for named instances and constraint
definitions for schemas:

	frontend: replicas: 5

	#Server: {
		port: >=1024
		...
	}

Load and LoadFile decode, validate and compile a file into a Program;
Program.Apply attaches an overlay; Program.Evaluate builds every instance in
one evaluation context.
*/
package decl
