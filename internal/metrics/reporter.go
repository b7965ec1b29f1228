// Package metrics publishes account and billing gauges to AWS CloudWatch:
// total profiles, plan intervals per lifecycle state, and subscriptions per
// plan. The gauges are point-in-time database aggregates collected on a
// fixed interval.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"accounting/internal/types"
)

// Metric and dimension names as they appear in CloudWatch.
const (
	MetricProfileCount  = "ProfileCount"
	MetricIntervalCount = "PlanIntervalCount"
	MetricSubscriptions = "PlanSubscriptions"

	DimIntervalState = "State"
	DimPlan          = "Plan"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// StatsSource provides the aggregate counts the reporter publishes.
type StatsSource interface {
	CountProfiles(ctx context.Context) (int64, error)
	CountIntervalsByState(ctx context.Context) (map[types.IntervalState]int64, error)
	CountSubscriptionsByPlan(ctx context.Context) (map[string]int64, error)
}

// Reporter collects aggregates from a StatsSource and publishes them as
// CloudWatch gauges.
type Reporter struct {
	client    CloudWatchClient
	stats     StatsSource
	namespace string
	logger    *slog.Logger
}

// NewReporter creates a Reporter publishing to the given CloudWatch
// namespace.
func NewReporter(client CloudWatchClient, stats StatsSource, namespace string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		client:    client,
		stats:     stats,
		namespace: namespace,
		logger:    logger,
	}
}

// ReportOnce collects all gauges and publishes them in one PutMetricData
// call. Collection errors abort the report; publishing is all-or-nothing.
func (r *Reporter) ReportOnce(ctx context.Context) error {
	profileCount, err := r.stats.CountProfiles(ctx)
	if err != nil {
		return err
	}
	intervalCounts, err := r.stats.CountIntervalsByState(ctx)
	if err != nil {
		return err
	}
	subscriptionCounts, err := r.stats.CountSubscriptionsByPlan(ctx)
	if err != nil {
		return err
	}

	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricProfileCount),
			Value:      aws.Float64(float64(profileCount)),
			Unit:       cwtypes.StandardUnitCount,
		},
	}

	// Emit a datum for every state, including zeroes, so dashboards do not
	// show gaps when a state empties out.
	for _, state := range []types.IntervalState{
		types.IntervalPristine, types.IntervalInUse, types.IntervalExpired,
	} {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(MetricIntervalCount),
			Value:      aws.Float64(float64(intervalCounts[state])),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimIntervalState), Value: aws.String(string(state))},
			},
		})
	}

	for planID, n := range subscriptionCounts {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(MetricSubscriptions),
			Value:      aws.Float64(float64(n)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimPlan), Value: aws.String(planID)},
			},
		})
	}

	_, err = r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: data,
	})
	if err != nil {
		return err
	}

	r.logger.Debug("metrics published",
		"namespace", r.namespace, "datum_count", len(data))
	return nil
}

// Run publishes on the given interval until the context is cancelled.
// Individual failures are logged and do not stop the loop; CloudWatch
// outages must not take the service down with them.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.ReportOnce(ctx); err != nil {
				r.logger.Error("failed to publish metrics", "error", err)
			}
		}
	}
}
