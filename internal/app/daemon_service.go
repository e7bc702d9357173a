package app

import (
	"docregistry/go-backend/internal/notify"
	"docregistry/go-backend/internal/platform/metrics"

	"github.com/ethereum/go-ethereum/common"
)

type DaemonService interface {
	RegistryAPI
	// SubscribeDocuments replays stored-document events after cursor and
	// streams new ones. A zero hash matches every document.
	SubscribeDocuments(cursor int64, hash common.Hash) ([]notify.Event, <-chan notify.Event, func())
	Metrics() *metrics.Metrics
	Close() error
}
