package security

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
)

// awsEnvVarsToUnset mirrors the teacher's stance on the SDK's implicit
// environment-variable credential lookup: the daemon supplies its own
// static credentials and must not pick up an operator's ambient AWS
// profile.
var awsEnvVarsToUnset = []string{
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"AWS_DEFAULT_REGION",
	"AWS_DEFAULT_PROFILE",
	"AWS_SDK_LOAD_CONFIG",
}

var unsetAWSEnvVarsOnce sync.Once

func unsetAWSEnvVars() {
	for _, env := range awsEnvVarsToUnset {
		os.Unsetenv(env)
	}
}

// SNSReporter forwards key-access denial events to an external IDS
// manager endpoint by publishing to an AWS SNS topic ARN. Reporter
// acquisition and every publish are best-effort: failures are logged
// and swallowed (spec.md §4.9 — denial must still fail the operation,
// but the report itself never does).
type SNSReporter struct {
	topicARN string
	region   string
	sess     client.ConfigProvider
}

// NewSNSReporter constructs a reporter bound to topicARN in region.
// Credentials are resolved the same way the teacher's getAWSSession
// does: static keys supplied by the caller, with the process's ambient
// AWS environment cleared first.
func NewSNSReporter(topicARN, region, accessKeyID, secretAccessKey string) (*SNSReporter, error) {
	unsetAWSEnvVarsOnce.Do(unsetAWSEnvVars)

	creds := credentials.NewStaticCredentials(accessKeyID, secretAccessKey, "")
	if _, err := creds.Get(); err != nil {
		return nil, err
	}
	cfg := aws.NewConfig().WithRegion(region).WithCredentials(creds)
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return &SNSReporter{topicARN: topicARN, region: region, sess: sess}, nil
}

func (r *SNSReporter) ReportKeyAccessDenied(ctx ContextData) {
	payload, err := json.Marshal(map[string]interface{}{
		"event":    "keyAccessDenied",
		"userID":   ctx.UserID,
		"slotUUID": ctx.SlotUUID,
	})
	if err != nil {
		log.Error("marshal keyAccessDenied event:", err)
		return
	}

	// Publish runs on its own goroutine so the caller never waits on
	// the network.
	go func() {
		svc := sns.New(r.sess)
		_, err := svc.Publish(&sns.PublishInput{
			Message:   aws.String(string(payload)),
			TargetArn: aws.String(r.topicARN),
		})
		if err != nil {
			log.Warning("publish keyAccessDenied event:", err)
		}
	}()
}
