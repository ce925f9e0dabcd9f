package events

import (
    "context"
)

// ListingUpdated is emitted after a listing and its state snapshot have been
// persisted by an ingestion run.
type ListingUpdated struct {
    CltrNo     string
    CltrHstrNo string
    Geocoded   bool
}

type Publisher interface {
    PublishListingUpdated(ctx context.Context, evt ListingUpdated)
    SubscribeListingUpdated() <-chan ListingUpdated
}

type inMemory struct{ ch chan ListingUpdated }

func NewInMemory(buffer int) Publisher {
    if buffer <= 0 { buffer = 256 }
    return &inMemory{ch: make(chan ListingUpdated, buffer)}
}

func (m *inMemory) PublishListingUpdated(_ context.Context, evt ListingUpdated) {
    select { case m.ch <- evt: default: }
}

func (m *inMemory) SubscribeListingUpdated() <-chan ListingUpdated { return m.ch }
