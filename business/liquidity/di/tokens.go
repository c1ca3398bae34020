// Package di contains dependency injection tokens for the liquidity context.
package di

import (
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/app"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/di"
)

// DI tokens for the liquidity module.
const (
	MetricsService = "liquidity.MetricsService"
)

// GetMetricsService resolves the metrics service.
func GetMetricsService(sr di.ServiceRegistry) *app.Service {
	return di.GetToken[*app.Service](sr, MetricsService)
}
