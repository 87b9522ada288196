// Package protocol implements the in-container Lifecycle Protocol (spec.md
// §4.6): the startup and shutdown sequences every sandbox image must run so
// that it is compatible with the orchestrator's hot-sync / cold-mount
// contract. cmd/sandbox-agent is the binary that invokes this package from
// inside a running sandbox container.
package protocol

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// readinessMarkerName is the file name of the readiness marker written at
// the end of startup (§4.6 startup step 5). It lives under HotPath so it
// never outlives a container's hot-sync-up on shutdown. The orchestrator's
// readiness wait does not read this file; it waits for the engine to report
// the container running.
const readinessMarkerName = ".sandbox-ready"

// Env is the set of environment variables passed to every sandbox
// container (§6.3), read by the in-container agent on startup.
type Env struct {
	SandboxID            string `env:"SANDBOX_ID,required"`
	UserID               string `env:"USER_ID,required"`
	Bucket               string `env:"S3_BUCKET,required"`
	Region               string `env:"S3_REGION" envDefault:"us-east-1"`
	HotPath              string `env:"HOT_PATH,required"`
	ColdPath             string `env:"COLD_PATH,required"`
	ShutdownTimeoutSecs  int    `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"30"`
}

// LoadEnv reads and validates the agent's required environment (§4.6
// startup step 1: "Validate required environment variables ... abort if
// any missing or malformed").
func LoadEnv() (*Env, error) {
	e := &Env{}
	if err := env.Parse(e); err != nil {
		return nil, sandbox.Wrap(sandbox.KindValidation, "validate sandbox environment", err)
	}
	if e.SandboxID == "" || e.UserID == "" || e.Bucket == "" || e.HotPath == "" || e.ColdPath == "" {
		return nil, sandbox.New(sandbox.KindValidation, "one or more required sandbox environment variables is empty")
	}
	return e, nil
}

// ReadinessMarkerPath returns the absolute path of the readiness marker
// file for e, rooted in its hot tier.
func (e *Env) ReadinessMarkerPath() string {
	return fmt.Sprintf("%s/%s", e.HotPath, readinessMarkerName)
}

// HotPrefix is the object-store prefix this sandbox's hot tier mirrors,
// matching internal/objectstore.Gateway.HotPrefix's layout exactly.
func (e *Env) HotPrefix() string {
	return "users/" + e.UserID + "/hot/"
}

// ColdPrefix is the object-store prefix projected at ColdPath.
func (e *Env) ColdPrefix() string {
	return "users/" + e.UserID + "/cold/"
}
