package workflow

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"
)

// ActivityErrorInterceptor names untyped activity failures after the
// activity that produced them, so a failed SyncImage shows up as
// "SyncImage" rather than a generic application error. Retry semantics are
// unchanged.
type ActivityErrorInterceptor struct {
	interceptor.WorkerInterceptorBase
}

func (i *ActivityErrorInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &activityErrorInbound{next: next}
}

type activityErrorInbound struct {
	interceptor.ActivityInboundInterceptorBase
	next interceptor.ActivityInboundInterceptor
}

func (a *activityErrorInbound) Init(outbound interceptor.ActivityOutboundInterceptor) error {
	return a.next.Init(outbound)
}

func (a *activityErrorInbound) ExecuteActivity(ctx context.Context, in *interceptor.ExecuteActivityInput) (interface{}, error) {
	result, err := a.next.ExecuteActivity(ctx, in)
	if err == nil {
		return result, nil
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return result, err
	}
	errType := "ActivityError"
	if activity.IsActivity(ctx) {
		errType = activity.GetInfo(ctx).ActivityType.Name
	}
	return result, temporal.NewApplicationError(err.Error(), errType, err)
}
