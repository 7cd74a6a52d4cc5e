package mock

//go:generate go install github.com/golang/mock/mockgen@v1.6.0
//go:generate mockgen -package mock -destination ./configuration.mock.go github.com/idpserver/idp/pkg/op ConfigurationRepository
//go:generate mockgen -package mock -destination ./fetcher.mock.go github.com/idpserver/idp/pkg/op RequestObjectFetcher
//go:generate mockgen -package mock -destination ./issuer.mock.go github.com/idpserver/idp/pkg/op TokenIssuer
