// Package plan decodes declarative build plans.
//
// A plan names a base image and an ordered list of steps. Each step carries
// exactly one directive:
//
//	from: golang
//	vars:
//	  TARGET: /go/src
//	  REPO: github.com/box-builder/tarutil
//	steps:
//	  - copy: . ${TARGET}/${REPO}
//	  - workdir: ${TARGET}/${REPO}
//	  - run: go get github.com/LK4D4/vndr && vndr
//	    unless: vendor
//	  - entrypoint: [/usr/bin/env]
//	    cmd: [/bin/sh, -c, go test -v ./...]
//
// Variables are substituted at load time into path-like fields only. The
// decoded [Plan] is validated before it is returned, so the build package
// can assume every step is well-formed.
package plan
