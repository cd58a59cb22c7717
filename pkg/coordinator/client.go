package coordinator

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client dials a worker process's loopback coordinator listener.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a coordinator listener at addr (host:port).
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("coordinator: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ActiveJob mirrors worker.ActiveJob for callers that don't import
// pkg/worker (orvdmctl talks to a remote worker process only through
// this client).
type ActiveJob struct {
	Handle    string
	TaskName  string
	StartedAt time.Time
}

// ListActiveJobs returns the jobs the remote worker currently has in flight.
func (c *Client) ListActiveJobs(ctx context.Context) ([]ActiveJob, error) {
	resp, err := invokeListActiveJobs(ctx, c.conn, &structpb.Struct{})
	if err != nil {
		return nil, err
	}

	rawJobs := resp.GetFields()["jobs"].GetListValue().GetValues()
	jobs := make([]ActiveJob, 0, len(rawJobs))
	for _, v := range rawJobs {
		fields := v.GetStructValue().GetFields()
		startedAt, _ := time.Parse(time.RFC3339, fields["startedAt"].GetStringValue())
		jobs = append(jobs, ActiveJob{
			Handle:    fields["handle"].GetStringValue(),
			TaskName:  fields["task"].GetStringValue(),
			StartedAt: startedAt,
		})
	}
	return jobs, nil
}

// CancelJob asks the remote worker to cancel the job identified by
// handle. It reports whether a matching job was found.
func (c *Client) CancelJob(ctx context.Context, handle string) (bool, error) {
	req, err := structpb.NewStruct(map[string]any{"handle": handle})
	if err != nil {
		return false, err
	}
	resp, err := invokeCancelJob(ctx, c.conn, req)
	if err != nil {
		return false, err
	}
	return resp.GetFields()["cancelled"].GetBoolValue(), nil
}
