package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

type tableClient interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Tables names every table the service reads or writes.
type Tables struct {
	Tasks         string
	Shares        string
	Order         string
	Notifications string
	Audit         string
	Users         string
}

// Names lists the configured table names.
func (t Tables) Names() []string {
	return []string{t.Tasks, t.Shares, t.Order, t.Notifications, t.Audit, t.Users}
}

// Storage provides access to underlying persistence mechanisms. Row-level
// access rules live here so callers never see rows they may not touch.
type Storage struct {
	tasks         tableClient
	shares        tableClient
	order         tableClient
	notifications tableClient
	audit         tableClient
	users         tableClient
	notifyQueue   queueClient
	logger        *log.Logger
}

var retryStatusCodes = []int{408, 429, 500, 502, 503, 504}

// New creates a Storage instance from the given connection string. The
// notification queue is optional.
func New(connStr string, tables Tables, notificationQueue string, logger *log.Logger) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		tasks:         svc.NewClient(tables.Tasks),
		shares:        svc.NewClient(tables.Shares),
		order:         svc.NewClient(tables.Order),
		notifications: svc.NewClient(tables.Notifications),
		audit:         svc.NewClient(tables.Audit),
		users:         svc.NewClient(tables.Users),
		logger:        logger,
	}
	if notificationQueue != "" {
		queueClientOptions := azqueue.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{
					MaxRetries:    5,
					TryTimeout:    time.Minute * 5,
					RetryDelay:    time.Second * 1,
					MaxRetryDelay: time.Second * 60,
					StatusCodes:   retryStatusCodes,
				},
			},
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, notificationQueue, &queueClientOptions)
		if err != nil {
			return nil, err
		}
		s.notifyQueue = q
	}
	if s.logger == nil {
		s.logger = log.StandardLogger()
	}
	return s, nil
}

var lastTimestamp int64

// nextTimestamp returns strictly increasing nanosecond timestamps so rows
// written in the same instant still sort deterministically.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

// newestFirstKey builds a row key that sorts newer rows before older ones.
func newestFirstKey(ts int64, id string) string {
	return fmt.Sprintf("%019d_%s", math.MaxInt64-ts, id)
}

func odataString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func eq(field, value string) string {
	return field + " eq " + odataString(value)
}

func and(clauses ...string) string {
	return strings.Join(clauses, " and ")
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func isNotFound(err error) bool { return isStatus(err, http.StatusNotFound) }

func isConflict(err error) bool { return isStatus(err, http.StatusConflict) }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// listEntities drains a pager, stopping early once limit rows were decoded.
func listEntities[T any](ctx context.Context, c tableClient, filter string, limit int, decode func([]byte) (T, error)) ([]T, error) {
	opts := &aztables.ListEntitiesOptions{}
	if filter != "" {
		opts.Filter = &filter
	}
	if limit > 0 {
		top := int32(limit)
		opts.Top = &top
	}
	pager := c.NewListEntitiesPager(opts)
	out := []T{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			v, err := decode(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func mergeEntity(ctx context.Context, c tableClient, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = c.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if isNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}

func addEntity(ctx context.Context, c tableClient, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.AddEntity(ctx, payload, nil)
	return err
}
