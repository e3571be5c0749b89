package cloud

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/gorewood/briefship/internal/output"
)

// RunShellScript is the SSM document that runs a list of shell lines.
const RunShellScript = "AWS-RunShellScript"

// maxCommentLen is the SSM limit on SendCommand comments.
const maxCommentLen = 100

// ec2API is the subset of the EC2 client used here.
type ec2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
}

// ssmAPI is the subset of the SSM client used here.
type ssmAPI interface {
	DescribeInstanceInformation(ctx context.Context, params *ssm.DescribeInstanceInformationInput, optFns ...func(*ssm.Options)) (*ssm.DescribeInstanceInformationOutput, error)
	SendCommand(ctx context.Context, params *ssm.SendCommandInput, optFns ...func(*ssm.Options)) (*ssm.SendCommandOutput, error)
	GetCommandInvocation(ctx context.Context, params *ssm.GetCommandInvocationInput, optFns ...func(*ssm.Options)) (*ssm.GetCommandInvocationOutput, error)
}

// Options selects the AWS account and region.
type Options struct {
	Region  string
	Profile string
}

// AWS implements Client with the AWS SDK.
type AWS struct {
	cfg aws.Config
	ec2 ec2API
	ssm ssmAPI
}

// New loads the shared AWS configuration (env, profile, IMDS) and builds
// EC2 and SSM clients from it.
func New(ctx context.Context, opts Options) (*AWS, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, output.NewSystemErrorWithCause("loading AWS configuration: "+err.Error(), err)
	}
	if cfg.Region == "" {
		return nil, output.NewUserError("AWS region is not set: add region to briefship.yaml or export AWS_REGION")
	}

	return &AWS{
		cfg: cfg,
		ec2: ec2.NewFromConfig(cfg),
		ssm: ssm.NewFromConfig(cfg),
	}, nil
}

// Region returns the resolved AWS region.
func (a *AWS) Region() string {
	return a.cfg.Region
}

// CheckCredentials resolves credentials without calling any service and
// returns the provider that supplied them.
func (a *AWS) CheckCredentials(ctx context.Context) (string, error) {
	creds, err := a.cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return "", output.NewSystemErrorWithCause("no AWS credentials: "+err.Error(), err)
	}
	return creds.Source, nil
}

// DescribeInstance returns the EC2 state and SSM agent status of id.
// An instance unknown to SSM has an empty PingStatus.
func (a *AWS) DescribeInstance(ctx context.Context, id string) (Instance, error) {
	out, err := a.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return Instance{}, output.NewSystemErrorWithCause("describe instance "+id+": "+err.Error(), err)
	}

	inst, ok := findInstance(out, id)
	if !ok {
		return Instance{}, output.NewUserError("instance " + id + " not found in " + a.cfg.Region)
	}

	info, err := a.ssm.DescribeInstanceInformation(ctx, &ssm.DescribeInstanceInformationInput{
		Filters: []ssmtypes.InstanceInformationStringFilter{
			{Key: aws.String("InstanceIds"), Values: []string{id}},
		},
	})
	if err != nil {
		return Instance{}, output.NewSystemErrorWithCause("describe SSM registration for "+id+": "+err.Error(), err)
	}
	if len(info.InstanceInformationList) > 0 {
		reg := info.InstanceInformationList[0]
		inst.PingStatus = string(reg.PingStatus)
		inst.AgentVersion = aws.ToString(reg.AgentVersion)
		inst.Platform = aws.ToString(reg.PlatformName)
		inst.LastPingAt = aws.ToTime(reg.LastPingDateTime)
	}
	return inst, nil
}

func findInstance(out *ec2.DescribeInstancesOutput, id string) (Instance, bool) {
	for _, res := range out.Reservations {
		for _, raw := range res.Instances {
			if aws.ToString(raw.InstanceId) != id {
				continue
			}
			inst := Instance{
				ID:         id,
				PublicIP:   aws.ToString(raw.PublicIpAddress),
				LaunchedAt: aws.ToTime(raw.LaunchTime),
			}
			if raw.State != nil {
				inst.State = string(raw.State.Name)
			}
			inst.Name = nameTag(raw.Tags)
			return inst, true
		}
	}
	return Instance{}, false
}

func nameTag(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

// StartInstance starts a stopped instance. When wait is positive it blocks
// until EC2 reports the instance running or wait elapses.
func (a *AWS) StartInstance(ctx context.Context, id string, wait time.Duration) error {
	_, err := a.ec2.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return output.NewSystemErrorWithCause("start instance "+id+": "+err.Error(), err)
	}
	if wait <= 0 {
		return nil
	}

	waiter := ec2.NewInstanceRunningWaiter(a.ec2)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, wait); err != nil {
		return output.NewSystemErrorWithCause("waiting for "+id+" to run: "+err.Error(), err)
	}
	return nil
}

// SendCommand runs cmd.Lines through AWS-RunShellScript and returns the
// command ID.
func (a *AWS) SendCommand(ctx context.Context, cmd Command) (string, error) {
	params := map[string][]string{"commands": cmd.Lines}
	if cmd.Timeout > 0 {
		params["executionTimeout"] = []string{strconv.Itoa(timeoutSeconds(cmd.Timeout))}
	}

	out, err := a.ssm.SendCommand(ctx, &ssm.SendCommandInput{
		DocumentName: aws.String(RunShellScript),
		InstanceIds:  []string{cmd.InstanceID},
		Parameters:   params,
		Comment:      aws.String(truncate(cmd.Comment, maxCommentLen)),
	})
	if err != nil {
		return "", output.NewSystemErrorWithCause("ssm send-command: "+err.Error(), err)
	}
	if out.Command == nil || aws.ToString(out.Command.CommandId) == "" {
		return "", output.NewSystemError("ssm send-command returned no command id")
	}
	return aws.ToString(out.Command.CommandId), nil
}

// GetInvocation fetches the status and output of commandID on instanceID.
// SSM needs a moment to register a fresh command; until it does the
// invocation is reported as Pending rather than as an error.
func (a *AWS) GetInvocation(ctx context.Context, commandID, instanceID string) (Invocation, error) {
	out, err := a.ssm.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
		CommandId:  aws.String(commandID),
		InstanceId: aws.String(instanceID),
	})
	if err != nil {
		var notYet *ssmtypes.InvocationDoesNotExist
		if errors.As(err, &notYet) {
			return Invocation{CommandID: commandID, InstanceID: instanceID, Status: StatusPending}, nil
		}
		return Invocation{}, output.NewSystemErrorWithCause(
			fmt.Sprintf("ssm get-command-invocation %s: %v", commandID, err), err)
	}

	return Invocation{
		CommandID:     commandID,
		InstanceID:    instanceID,
		Status:        Status(out.Status),
		StatusDetails: aws.ToString(out.StatusDetails),
		ResponseCode:  int(out.ResponseCode),
		Stdout:        aws.ToString(out.StandardOutputContent),
		Stderr:        aws.ToString(out.StandardErrorContent),
	}, nil
}

// timeoutSeconds rounds d up to whole seconds; SSM rejects anything below 1.
func timeoutSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}
