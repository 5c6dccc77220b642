package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bullion/compliance-service/internal/notification"
)

type Sender struct {
	mock.Mock
}

func (m *Sender) Send(ctx context.Context, msg notification.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// KindMatcher matches messages of the given template kind
func KindMatcher(kind notification.TemplateKind) interface{} {
	return mock.MatchedBy(func(msg notification.Message) bool {
		return msg.Kind == kind
	})
}
