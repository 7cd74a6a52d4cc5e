package mock

import (
	"testing"

	gomock "github.com/golang/mock/gomock"

	op "github.com/idpserver/idp/pkg/op"
)

// NewConfigurationRepository returns a repository that serves server for
// every tenant and clients by client_id. Unknown clients are op.ErrNotFound.
func NewConfigurationRepository(t *testing.T, server *op.ServerConfiguration, clients ...*op.ClientConfiguration) op.ConfigurationRepository {
	m := NewMockConfigurationRepository(gomock.NewController(t))
	m.EXPECT().ServerConfiguration(gomock.Any(), gomock.Any()).AnyTimes().Return(server, nil)
	byID := make(map[string]*op.ClientConfiguration, len(clients))
	for _, c := range clients {
		byID[c.ClientID] = c
	}
	m.EXPECT().ClientConfiguration(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(
		func(_ any, _ string, clientID string) (*op.ClientConfiguration, error) {
			c, ok := byID[clientID]
			if !ok {
				return nil, op.ErrNotFound
			}
			return c, nil
		})
	return m
}

// NewRequestObjectFetcher returns a fetcher that must not be called.
func NewRequestObjectFetcher(t *testing.T) *MockRequestObjectFetcher {
	return NewMockRequestObjectFetcher(gomock.NewController(t))
}
