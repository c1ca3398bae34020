// Package di contains dependency injection tokens for the anomaly context.
package di

import (
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly/app"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/di"
)

// DI tokens for the anomaly module.
const (
	Detector = "anomaly.Detector"
)

// GetDetector resolves the anomaly detector.
func GetDetector(sr di.ServiceRegistry) *app.Detector {
	return di.GetToken[*app.Detector](sr, Detector)
}
