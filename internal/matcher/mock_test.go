package matcher

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/source-matcher/pkg/formatter"
	"github.com/sells-group/source-matcher/pkg/ruleengine"
	"github.com/sells-group/source-matcher/pkg/tbainquiry"
	"github.com/sells-group/source-matcher/pkg/tbaupdate"
)

// --- Object cache mock ---

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Fetch(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockCache) Store(ctx context.Context, name string, blob []byte) (string, error) {
	args := m.Called(ctx, name, blob)
	return args.String(0), args.Error(1)
}

// --- TBA inquiry mock ---

type mockInquiry struct {
	mock.Mock
}

func (m *mockInquiry) Inquire(ctx context.Context, req *tbainquiry.Request) (*tbainquiry.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tbainquiry.Response), args.Error(1)
}

// --- Rule engine mock ---

type mockRules struct {
	mock.Mock
}

func (m *mockRules) Evaluate(ctx context.Context, req *ruleengine.Request) (*ruleengine.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ruleengine.Response), args.Error(1)
}

// --- TBA update mock ---

type mockUpdate struct {
	mock.Mock
}

func (m *mockUpdate) Update(ctx context.Context, req *tbaupdate.Request) (*tbaupdate.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tbaupdate.Response), args.Error(1)
}

// --- Excel formatter mock ---

type mockFormatter struct {
	mock.Mock
}

func (m *mockFormatter) Format(ctx context.Context, req *formatter.Request) (*formatter.BotOutput, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*formatter.BotOutput), args.Error(1)
}
