package manager

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"McpGateway/internal/config"
	"McpGateway/internal/models"
	"McpGateway/internal/registry"
)

// 测试用的协作者替身，全部实现 interfaces.go 中的接口

type fakeDiscovery struct {
	tools []models.ToolDescriptor
	err   error
	calls int32
}

func (f *fakeDiscovery) DiscoverTools(ctx context.Context, cfg models.ServerConfig) ([]models.ToolDescriptor, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	tools := make([]models.ToolDescriptor, len(f.tools))
	copy(tools, f.tools)
	return tools, nil
}

type fakeAuth struct {
	err    error
	expiry time.Time
	calls  int32
}

func (f *fakeAuth) Authenticate(ctx context.Context, cfg models.ServerConfig) (models.AuthToken, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return models.AuthToken{}, f.err
	}
	return models.AuthToken{Token: "tok-test", ExpiresAt: f.expiry}, nil
}

func (f *fakeAuth) Refresh(ctx context.Context, cfg models.ServerConfig, existing string) (models.AuthToken, error) {
	if f.err != nil {
		return models.AuthToken{}, f.err
	}
	return models.AuthToken{Token: "tok-refreshed", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type fakeInvoker struct {
	result *InvokeResult
	err    error
	delay  atomic.Int64 // 纳秒，超时测试会在调用间修改
	calls  int32
}

func (f *fakeInvoker) CallTool(ctx context.Context, cfg models.ServerConfig, toolSlug string, args map[string]interface{}) (*InvokeResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if delay := time.Duration(f.delay.Load()); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &InvokeResult{Payload: models.JSONB{"args": args}}, nil
}

type fakeVerifier struct {
	verified bool
	err      error
}

func (f *fakeVerifier) VerifyTool(ctx context.Context, cfg models.ServerConfig, toolSlug string) (bool, error) {
	return f.verified, f.err
}

type fakeProber struct {
	latency time.Duration
	err     error
}

func (f *fakeProber) Probe(ctx context.Context, cfg models.ServerConfig) (time.Duration, error) {
	return f.latency, f.err
}

type fakeOAuth struct {
	err   error
	calls int32
}

func (f *fakeOAuth) ExecuteOAuth(ctx context.Context, oauth models.OAuthConfig, catalogToolID string) (models.JSONB, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return models.JSONB{"detail": "ok", "provider": oauth.Provider}, nil
}

var errFake = errors.New("fake failure")

// testCollaborators 返回一组默认成功的替身
func testCollaborators() (Collaborators, *fakeDiscovery, *fakeAuth, *fakeInvoker) {
	discovery := &fakeDiscovery{
		tools: []models.ToolDescriptor{
			{Slug: "COMPOSIO_GMAIL_SEND_EMAIL", Category: "gmail", Provider: "composio"},
			{Slug: "COMPOSIO_SLACK_SEND_MESSAGE", Category: "slack", Provider: "composio"},
		},
	}
	authClient := &fakeAuth{}
	invoker := &fakeInvoker{}
	collab := Collaborators{
		Discovery: discovery,
		Auth:      authClient,
		Invoker:   invoker,
		Verifier:  &fakeVerifier{verified: true},
		Prober:    &fakeProber{latency: 3 * time.Millisecond},
		OAuth:     &fakeOAuth{},
	}
	return collab, discovery, authClient, invoker
}

// newTestGateway 组装一个使用替身协作者的网关
func newTestGateway() (*Gateway, *fakeDiscovery, *fakeAuth, *fakeInvoker) {
	collab, discovery, authClient, invoker := testCollaborators()
	cfg := config.DefaultConfig()
	gw := NewGateway(registry.NewServerRegistry(), collab, cfg)
	return gw, discovery, authClient, invoker
}

// newGatewayWith 使用调用方准备好的协作者组装网关
func newGatewayWith(collab Collaborators) *Gateway {
	return NewGateway(registry.NewServerRegistry(), collab, config.DefaultConfig())
}

// newTestGatewayWithConfig 使用自定义配置组装网关
func newTestGatewayWithConfig(cfg *config.Config) (*Gateway, *fakeDiscovery, *fakeAuth, *fakeInvoker) {
	collab, discovery, authClient, invoker := testCollaborators()
	gw := NewGateway(registry.NewServerRegistry(), collab, cfg)
	return gw, discovery, authClient, invoker
}
