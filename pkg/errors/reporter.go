package errors

import (
	"bytes"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/certifi/gocertifi"
	"github.com/getsentry/sentry-go"
	"moff.io/wallet-pairing/pkg/errors/reporter"
	"moff.io/wallet-pairing/pkg/log"
)

// Setting DEBUG disables every reporter.
const debugMode = "DEBUG"

var (
	reportersMu sync.RWMutex
	reporters   []Reporter
)

// Reporter receives errors created through the *AndReport helpers.
type Reporter interface {
	Report(error)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(error)

func (f ReporterFunc) Report(err error) {
	f(err)
}

// ReportConfig lists the reporter endpoints. Empty values are skipped.
type ReportConfig struct {
	SentryDSN       string
	LarkWebhook     string
	DingTalkWebhook string
	DingTalkSecret  string
	// Silent is the minimum interval between two reports of the same stack.
	Silent time.Duration
}

// Setup registers all reporters configured in cfg.
func Setup(cfg ReportConfig) error {
	if os.Getenv(debugMode) != "" {
		log.Info("env DEBUG set, error reports disabled.")
		return nil
	}
	if cfg.Silent <= 0 {
		cfg.Silent = time.Minute
	}
	if err := NewSentryReporter(cfg.SentryDSN); err != nil {
		return err
	}
	NewLarkReporter(cfg.LarkWebhook, cfg.Silent)
	NewDingTalkReporter(cfg.DingTalkWebhook, cfg.DingTalkSecret, cfg.Silent)
	return nil
}

// RegisterReporter adds r to the reporter list.
func RegisterReporter(r Reporter) {
	reportersMu.Lock()
	defer reportersMu.Unlock()
	reporters = append(reporters, r)
}

// ClearReporters drops every registered reporter.
func ClearReporters() {
	reportersMu.Lock()
	defer reportersMu.Unlock()
	reporters = nil
}

func report(err error) {
	if err == nil || os.Getenv(debugMode) != "" {
		return
	}
	reportersMu.RLock()
	defer reportersMu.RUnlock()
	for _, r := range reporters {
		r.Report(err)
	}
}

type sentryReporter struct{}

func (s *sentryReporter) Report(err error) {
	sentry.CaptureException(err)
}

// NewSentryReporter initializes the sentry client with the certifi CA bundle
// and registers it as a reporter.
func NewSentryReporter(sentryDSN string) error {
	if sentryDSN == "" {
		log.Debug("empty sentry DSN, skipping sentry reporter.")
		return nil
	}
	rootCAs, err := gocertifi.CACerts()
	if err != nil {
		return Wrap(err, "load sentry CA")
	}
	err = sentry.Init(sentry.ClientOptions{
		Dsn:     sentryDSN,
		CaCerts: rootCAs,
	})
	if err != nil {
		return Wrap(err, "init sentry")
	}
	RegisterReporter(&sentryReporter{})
	log.Info("sentry error reporter initialized.")
	return nil
}

type dingTalkRobotReporter struct {
	limiter *rateLimiter
	reporter.DingTalkRobot
}

// NewDingTalkReporter registers a dingtalk robot posting errors to webhook.
func NewDingTalkReporter(webhook, secret string, silent time.Duration) {
	if webhook == "" {
		log.Debug("empty dingtalk webhook, skipping dingtalk reporter.")
		return
	}
	robot := reporter.NewDingTalkRobot(webhook).WithSecret(secret)
	RegisterReporter(&dingTalkRobotReporter{limiter: newRateLimiter(silent), DingTalkRobot: robot})
	log.Info("dingtalk error reporter initialized.")
}

func (r *dingTalkRobotReporter) Report(err error) {
	if err == nil {
		return
	}
	stacks := callers().fullStack()
	limited, stats := r.limiter.StackBasedRateLimited(stacks[2])
	if limited {
		return
	}
	var content bytes.Buffer
	content.WriteString("last report: ")
	content.WriteString(formatReportTime(stats.lastReportTime))
	content.WriteString("\noccurred since last report: ")
	content.WriteString(strconv.Itoa(stats.occurCountSinceLastReport))
	content.WriteString("\nerror: ")
	content.WriteString(err.Error())
	content.WriteString("\nstacks:\n")
	for _, s := range stacks {
		content.WriteString("\t")
		content.WriteString(s)
		content.WriteString("\n")
	}
	if err := r.SendText(content.String(), nil, true); err != nil {
		log.Warnf("dingtalk report: %v", err)
	}
}
