package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

type fakeJobs struct {
	mu        sync.Mutex
	jobs      []worker.ActiveJob
	cancelled []string
}

func (f *fakeJobs) ActiveJobs() []worker.ActiveJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]worker.ActiveJob(nil), f.jobs...)
}

func (f *fakeJobs) CancelJob(handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.Handle == handle {
			f.cancelled = append(f.cancelled, handle)
			return true
		}
	}
	return false
}

func startTestServer(t *testing.T, jobs *fakeJobs) *Client {
	t.Helper()
	srv := NewServer(jobs)
	addr, err := srv.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, addr)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestListActiveJobsRoundTrips(t *testing.T) {
	jobs := &fakeJobs{jobs: []worker.ActiveJob{
		{Handle: "h1", TaskName: "runCollectionSystemTransfer", StartedAt: time.Now().Truncate(time.Second)},
	}}
	client := startTestServer(t, jobs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := client.ListActiveJobs(ctx)
	if err != nil {
		t.Fatalf("ListActiveJobs: %v", err)
	}
	if len(got) != 1 || got[0].Handle != "h1" || got[0].TaskName != "runCollectionSystemTransfer" {
		t.Fatalf("unexpected jobs: %+v", got)
	}
}

func TestCancelJobReportsNotFound(t *testing.T) {
	jobs := &fakeJobs{}
	client := startTestServer(t, jobs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := client.CancelJob(ctx, "missing")
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if ok {
		t.Fatal("expected CancelJob for an unknown handle to report false")
	}
}

func TestCancelJobCancelsKnownHandle(t *testing.T) {
	jobs := &fakeJobs{jobs: []worker.ActiveJob{{Handle: "h1", TaskName: "runCruiseDataTransfer", StartedAt: time.Now()}}}
	client := startTestServer(t, jobs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := client.CancelJob(ctx, "h1")
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if !ok {
		t.Fatal("expected CancelJob for a known handle to report true")
	}
}
