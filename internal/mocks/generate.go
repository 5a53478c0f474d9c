// Package mocks provides mock implementations of the gateway's ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	backend := mocks.NewMockTokenBackend(ctrl)
//	backend.EXPECT().Refresh(gomock.Any(), "rt-1").Return(pair, nil)
package mocks

// Generate mock for TokenBackend interface from internal/ports package.
// This creates MockTokenBackend with methods: Login, Refresh, Logout
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=token_backend_mock.go github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports TokenBackend

// Generate mock for Upstream interface from internal/ports package.
// This creates MockUpstream with methods: Do
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=upstream_mock.go github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports Upstream
