package driver

import "github.com/ertembiyik/rlm-engine/internal/model"

// Observer receives the metadata record emitted once per completion and
// the iteration records emitted once per turn. The on-disk JSON log
// writer and the terminal pretty-printer are external collaborators
// that implement this interface; neither ships with this package.
type Observer interface {
	ObserveMetadata(model.MetadataRecord)
	ObserveIteration(model.IterationRecord)
}

func notifyMetadata(obs Observer, rec model.MetadataRecord) {
	if obs != nil {
		obs.ObserveMetadata(rec)
	}
}

func notifyIteration(obs Observer, rec model.IterationRecord) {
	if obs != nil {
		obs.ObserveIteration(rec)
	}
}
