package archive

import (
	"context"

	log "github.com/sirupsen/logrus"
)

type Deleter interface {
	DeleteEvent(ctx context.Context, id string) error
}

type Selection interface {
	Deselect(ids ...string)
}

// Failure is a single id the backend refused or could not be reached for.
type Failure struct {
	Id  string
	Err error
}

type Result struct {
	Archived []string
	Failed   []Failure
}

// Reconciler removes events one by one and then refreshes the view so it shows
// whatever the backend actually holds.
type Reconciler struct {
	deleter   Deleter
	refresh   func()
	selection Selection
}

func NewReconciler(deleter Deleter, refresh func(), selection Selection) *Reconciler {
	return &Reconciler{
		deleter:   deleter,
		refresh:   refresh,
		selection: selection,
	}
}

// Archive deletes every id independently. A failure is logged and recorded, the
// remaining ids are still processed. The refresh hook always runs afterwards and all
// ids leave the selection.
func (r *Reconciler) Archive(ctx context.Context, ids []string) Result {
	var result Result
	for _, id := range ids {
		if err := r.deleter.DeleteEvent(ctx, id); err != nil {
			log.Errorf("failed to archive event %s: %v", id, err)
			result.Failed = append(result.Failed, Failure{Id: id, Err: err})
			continue
		}
		result.Archived = append(result.Archived, id)
	}
	log.Infof("archived %d of %d events", len(result.Archived), len(ids))

	if r.selection != nil {
		r.selection.Deselect(ids...)
	}
	if r.refresh != nil {
		r.refresh()
	}
	return result
}
