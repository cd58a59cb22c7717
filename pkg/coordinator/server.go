// Package coordinator implements the loopback gRPC admin service every
// orvdm worker process exposes (SPEC_FULL.md §12.5): ListActiveJobs
// enumerates jobs currently in flight, CancelJob lets a local
// administrative tool (orvdmctl) signal one to stop without needing
// its OS pid, as stopJob does for jobs on other hosts.
//
// Ground: cuemby-warren/pkg/api's gRPC Server (server.go) wraps a
// manager and exposes an RPC surface over a grpc.Server; this package
// follows the same NewServer/Serve/Stop shape, simplified to a
// loopback listener with no TLS since the admin surface is local-only.
package coordinator

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

// Jobs is the subset of *worker.Runtime the coordinator needs.
type Jobs interface {
	ActiveJobs() []worker.ActiveJob
	CancelJob(handle string) bool
}

// Server implements CoordinatorServer over a Jobs source.
type Server struct {
	jobs Jobs
	grpc *grpc.Server
	lis  net.Listener
}

// NewServer wraps jobs (normally a *worker.Runtime) in a CoordinatorServer.
func NewServer(jobs Jobs) *Server {
	s := &Server{jobs: jobs}
	s.grpc = grpc.NewServer()
	s.grpc.RegisterService(&ServiceDesc, s)
	return s
}

// Listen binds addr (expected to be a loopback address) and returns
// the actual address bound, resolving any ":0" ephemeral port before
// Serve is called. Callers that need to know the bound address (tests,
// the worker binary's startup log) call Listen before Serve.
func (s *Server) Listen(addr string) (string, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("coordinator: listen on %s: %w", addr, err)
	}
	s.lis = lis
	return lis.Addr().String(), nil
}

// Serve blocks serving RPCs on the listener from Listen (binding addr
// itself if Listen was not already called) until ctx is cancelled, at
// which point it gracefully stops.
func (s *Server) Serve(ctx context.Context, addr string) error {
	if s.lis == nil {
		if _, err := s.Listen(addr); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(s.lis) }()

	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// ListActiveJobs implements CoordinatorServer.
func (s *Server) ListActiveJobs(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	jobs := s.jobs.ActiveJobs()
	list := make([]any, 0, len(jobs))
	for _, j := range jobs {
		list = append(list, map[string]any{
			"handle":    j.Handle,
			"task":      j.TaskName,
			"startedAt": j.StartedAt.Format(time.RFC3339),
		})
	}
	return structpb.NewStruct(map[string]any{"jobs": list})
}

// CancelJob implements CoordinatorServer. The request must carry a
// "handle" string field; the response carries a "cancelled" bool.
func (s *Server) CancelJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	handle := req.GetFields()["handle"].GetStringValue()
	if handle == "" {
		return nil, fmt.Errorf("coordinator: CancelJob request missing handle")
	}
	cancelled := s.jobs.CancelJob(handle)
	return structpb.NewStruct(map[string]any{"cancelled": cancelled})
}
