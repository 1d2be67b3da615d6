// Package provider wraps the AWS CLI as a narrow control surface: describe,
// start, stop. Anything that speaks these three operations could replace it.
package provider

import (
	"context"
	"ec2switch/cmd"
	"ec2switch/log"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Observation is the provider's view of one instance at a point in time.
// State carries the provider's raw state string ("pending", "running",
// "stopping", "stopped", "shutting-down", "terminated").
type Observation struct {
	InstanceID    string
	Name          string
	State         string
	PublicAddress string
	LaunchedAt    time.Time
}

// Gateway is the provider control surface.
type Gateway interface {
	// Describe returns the current observation for each requested id.
	// Ids missing from the result were unknown to the provider.
	Describe(ctx context.Context, ids []string) (map[string]Observation, error)
	// Start asks the provider to start an instance. The returned error is
	// only about command acceptance; reaching the running state is observed
	// through Describe.
	Start(ctx context.Context, id string) error
	// Stop asks the provider to stop an instance, with the same
	// acknowledgement semantics as Start.
	Stop(ctx context.Context, id string) error
}

// GatewayError is a failed provider call. Transient failures (throttling,
// timeouts, the CLI itself failing to run) are not authoritative: callers
// keep their previous view of the world and retry later.
type GatewayError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *GatewayError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("provider %s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient gateway failure.
func IsTransient(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Transient
}

// AWS CLI error codes that mean the request itself was bad and retrying
// will not help.
var permanentErrorMarkers = []string{
	"InvalidInstanceID",
	"UnauthorizedOperation",
	"AccessDenied",
	"AuthFailure",
	"UnsupportedOperation",
	"IncorrectInstanceState",
}

var transientErrorMarkers = []string{
	"RequestLimitExceeded",
	"Throttling",
	"ServiceUnavailable",
	"RequestTimeout",
	"Unable to locate credentials",
}

// AWSCLIGateway implements Gateway by invoking the aws binary.
type AWSCLIGateway struct {
	awsBin  string
	cmdExec cmd.Executor
}

// NewAWSCLIGateway returns a gateway that shells out to awsBin.
func NewAWSCLIGateway(awsBin string) *AWSCLIGateway {
	return NewAWSCLIGatewayWithDeps(awsBin, cmd.MakeExecutor())
}

// NewAWSCLIGatewayWithDeps returns a gateway with an injected executor for
// testing.
func NewAWSCLIGatewayWithDeps(awsBin string, cmdExec cmd.Executor) *AWSCLIGateway {
	if awsBin == "" {
		awsBin = "aws"
	}
	return &AWSCLIGateway{awsBin: awsBin, cmdExec: cmdExec}
}

// describeQuery flattens each instance to [id, name-tag, state, public-ip,
// launch-time] so the output is stable regardless of the CLI's table width.
const describeQuery = "Reservations[*].Instances[*].[InstanceId, Tags[?Key=='Name'].Value | [0], State.Name, PublicIpAddress, LaunchTime]"

func (g *AWSCLIGateway) Describe(ctx context.Context, ids []string) (map[string]Observation, error) {
	args := []string{"ec2", "describe-instances", "--instance-ids"}
	args = append(args, ids...)
	args = append(args, "--query", describeQuery, "--output", "json")

	out, err := g.cmdExec.Output(exec.CommandContext(ctx, g.awsBin, args...))
	if err != nil {
		return nil, g.wrapError("describe", err)
	}

	observations, err := parseDescribeOutput(out)
	if err != nil {
		return nil, &GatewayError{Op: "describe", Transient: true, Err: err}
	}
	return observations, nil
}

func (g *AWSCLIGateway) Start(ctx context.Context, id string) error {
	c := exec.CommandContext(ctx, g.awsBin, "ec2", "start-instances", "--instance-ids", id)
	if err := g.cmdExec.Run(c); err != nil {
		return g.wrapError("start", err)
	}
	log.InfoLog.Printf("requested start of %s", id)
	return nil
}

func (g *AWSCLIGateway) Stop(ctx context.Context, id string) error {
	c := exec.CommandContext(ctx, g.awsBin, "ec2", "stop-instances", "--instance-ids", id)
	if err := g.cmdExec.Run(c); err != nil {
		return g.wrapError("stop", err)
	}
	log.InfoLog.Printf("requested stop of %s", id)
	return nil
}

// wrapError classifies a CLI failure. Stderr of a failed aws invocation
// carries the API error code.
func (g *AWSCLIGateway) wrapError(op string, err error) *GatewayError {
	msg := err.Error()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg += " " + string(exitErr.Stderr)
	}

	for _, marker := range permanentErrorMarkers {
		if strings.Contains(msg, marker) {
			return &GatewayError{Op: op, Transient: false, Err: err}
		}
	}
	for _, marker := range transientErrorMarkers {
		if strings.Contains(msg, marker) {
			return &GatewayError{Op: op, Transient: true, Err: err}
		}
	}
	// Everything else (binary missing, killed by context timeout, network
	// blips) is worth retrying.
	return &GatewayError{Op: op, Transient: true, Err: err}
}

// parseDescribeOutput decodes the nested reservations/instances arrays the
// describe query produces. Name and public ip may be JSON null.
func parseDescribeOutput(out []byte) (map[string]Observation, error) {
	var reservations [][][]*string
	if err := json.Unmarshal(out, &reservations); err != nil {
		return nil, fmt.Errorf("failed to parse describe output: %w", err)
	}

	observations := make(map[string]Observation)
	for _, reservation := range reservations {
		for _, fields := range reservation {
			if len(fields) < 5 || fields[0] == nil || fields[2] == nil {
				return nil, fmt.Errorf("unexpected describe row: %v", fields)
			}

			obs := Observation{
				InstanceID: *fields[0],
				State:      *fields[2],
			}
			if fields[1] != nil {
				obs.Name = *fields[1]
			}
			if fields[3] != nil {
				obs.PublicAddress = *fields[3]
			}
			if fields[4] != nil {
				t, err := time.Parse(time.RFC3339, *fields[4])
				if err != nil {
					log.WarningLog.Printf("unparseable launch time for %s: %q", obs.InstanceID, *fields[4])
				} else {
					obs.LaunchedAt = t
				}
			}

			observations[obs.InstanceID] = obs
		}
	}
	return observations, nil
}
