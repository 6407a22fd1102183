package grpcapi

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/fluxfaas/fluxfaas/internal/compiler"
	"github.com/fluxfaas/fluxfaas/internal/instance"
	"github.com/fluxfaas/fluxfaas/internal/pool"
	"github.com/fluxfaas/fluxfaas/internal/registry"
	"github.com/fluxfaas/fluxfaas/internal/sandbox"
	"github.com/fluxfaas/fluxfaas/internal/scheduler"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	ccfg := compiler.DefaultConfig()
	ccfg.ScratchDir = t.TempDir()
	c := compiler.New(ccfg, nil)
	sb := sandbox.New(sandbox.DefaultConfig(), nil)
	im := instance.New(instance.DefaultConfig(), c, sb)
	t.Cleanup(im.Close)

	sched := scheduler.New(registry.New(), pool.New(im))
	srv := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(errorHandlingInterceptor),
	)
	srv.RegisterService(&serviceDesc, NewServer(sched))

	lis := bufconn.Listen(1024 * 1024)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return NewClient(conn)
}

func TestRegisterInvokeListFunctionsRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	regResp, err := client.Register(ctx, &RegisterRequest{
		Name:       "echo",
		Source:     "def handler(event):\n    return event\n",
		ScriptKind: "python",
		TimeoutMs:  1000,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if regResp.Id == "" {
		t.Fatalf("expected a non-empty assigned id")
	}

	invResp, err := client.Invoke(ctx, &InvokeRequest{Name: "echo", Input: json.RawMessage(`{"n":1}`)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !invResp.ColdStart {
		t.Fatalf("expected cold start on first invoke")
	}

	listResp, err := client.ListFunctions(ctx, &ListFunctionsRequest{})
	if err != nil {
		t.Fatalf("ListFunctions: %v", err)
	}
	if len(listResp.Functions) != 1 || listResp.Functions[0].Name != "echo" {
		t.Fatalf("expected one function named echo, got %+v", listResp.Functions)
	}
}

func TestInvokeUnregisteredFunctionReturnsNotFound(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := client.Invoke(ctx, &InvokeRequest{Name: "missing"})
	if err == nil {
		t.Fatalf("expected an error for an unregistered function")
	}
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected codes.NotFound, got %v", status.Code(err))
	}
}

func TestHealthCheckReportsOk(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.HealthCheck(ctx, &HealthCheckRequest{})
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
}
