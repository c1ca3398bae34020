// Package di contains dependency injection tokens for the book context.
package di

import (
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/app"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/infra/binance"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/di"
)

// DI tokens for the book module.
const (
	SnapshotFetcher = "book.SnapshotFetcher"
	BookService     = "book.BookService"
	Feed            = "book.Feed"
)

// GetSnapshotFetcher resolves the snapshot fetcher.
func GetSnapshotFetcher(sr di.ServiceRegistry) app.SnapshotFetcher {
	return di.GetToken[app.SnapshotFetcher](sr, SnapshotFetcher)
}

// GetBookService resolves the book service.
func GetBookService(sr di.ServiceRegistry) *app.Service {
	return di.GetToken[*app.Service](sr, BookService)
}

// GetFeed resolves the depth feed.
func GetFeed(sr di.ServiceRegistry) *binance.Feed {
	return di.GetToken[*binance.Feed](sr, Feed)
}
