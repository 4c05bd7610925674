package template

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/formapi/formapi/pkg/model"
	"github.com/formapi/formapi/pkg/observability"
	"github.com/formapi/formapi/pkg/store"
)

// Importer runs a template through the porter phases in order. Phases are
// strictly sequential; items within a phase import concurrently.
type Importer struct {
	porters []Porter
	log     *observability.Logger
	metrics *observability.Metrics
}

// NewImporter creates an importer over the given porter chain. Metrics may
// be nil.
func NewImporter(porters []Porter, log *observability.Logger, metrics *observability.Metrics) *Importer {
	return &Importer{porters: porters, log: log, metrics: metrics}
}

// Import installs the template and returns the final reference maps. All
// maps are built from persisted state before any phase mutates anything,
// so a re-import resolves existing entities to updates, not duplicates.
func (im *Importer) Import(ctx context.Context, tmpl store.Document) (Maps, error) {
	im.log.Debug("starting import")

	maps := make(Maps, len(im.porters))
	group, groupCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for _, porter := range im.porters {
		porter := porter
		group.Go(func() error {
			m, err := porter.BuildMap(groupCtx)
			if err != nil {
				return fmt.Errorf("building %s map: %w", porter.Key(), err)
			}
			mu.Lock()
			maps[porter.Key()] = m
			mu.Unlock()
			im.log.WithFields(map[string]interface{}{
				"entity": porter.Key(),
				"count":  len(m),
			}).Debug("built reference map")
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, porter := range im.porters {
		if err := im.importPhase(ctx, porter, tmpl, maps); err != nil {
			return nil, err
		}
	}
	return maps, nil
}

func (im *Importer) importPhase(ctx context.Context, porter Porter, tmpl store.Document, maps Maps) error {
	started := time.Now()
	im.log.WithField("entity", porter.Key()).Debug("importing")

	items, err := phaseItems(tmpl, porter.Key())
	if err != nil {
		im.observePhase(porter.Key(), "error", started)
		return err
	}

	// Items share no derived context: one item's failure must leave its
	// siblings running to completion. Only the phase itself aborts later
	// phases.
	var mu sync.Mutex
	var group errgroup.Group
	for machineName, item := range items {
		machineName, item := machineName, item
		group.Go(func() error {
			return im.importItem(ctx, porter, machineName, item, maps, &mu)
		})
	}
	if err := group.Wait(); err != nil {
		im.observePhase(porter.Key(), "error", started)
		return err
	}

	porter.CleanUp(maps)
	im.observePhase(porter.Key(), "ok", started)
	im.log.WithField("entity", porter.Key()).Debug("import complete")
	return nil
}

func (im *Importer) importItem(ctx context.Context, porter Porter, machineName string, item store.Document, maps Maps, mu *sync.Mutex) error {
	log := im.log.WithFields(map[string]interface{}{
		"entity":      porter.Key(),
		"machineName": machineName,
	})

	doc, err := porter.Import(item, maps)
	if err != nil {
		return err
	}
	if doc == nil {
		// Unresolvable reference. The item is skipped, not the phase.
		log.Warn("skipping item with unresolved reference")
		im.observeItem(porter.Key(), "skipped")
		return nil
	}
	doc["machineName"] = machineName

	m := porter.Model()
	existing, err := m.FindOne(ctx, porter.Query(doc))
	if err != nil && !model.IsNotFound(err) {
		return err
	}

	switch {
	case existing == nil:
		created, err := m.Create(ctx, doc)
		if err != nil {
			return fmt.Errorf("creating %s '%s': %w", porter.Key(), machineName, err)
		}
		mu.Lock()
		maps[porter.Key()][machineName] = store.DocumentID(created)
		mu.Unlock()
		im.observeItem(porter.Key(), "created")
	case porter.CreateOnly():
		mu.Lock()
		maps[porter.Key()][machineName] = store.DocumentID(existing)
		mu.Unlock()
		im.observeItem(porter.Key(), "mapped")
	default:
		doc["_id"] = store.DocumentID(existing)
		updated, err := m.Update(ctx, doc)
		if err != nil {
			return fmt.Errorf("updating %s '%s': %w", porter.Key(), machineName, err)
		}
		mu.Lock()
		maps[porter.Key()][machineName] = store.DocumentID(updated)
		mu.Unlock()
		im.observeItem(porter.Key(), "updated")
	}
	return nil
}

// phaseItems pulls a porter's collection out of the template, enforcing
// the map shape. An absent collection is an empty phase, but a sequence or
// scalar fails the whole import.
func phaseItems(tmpl store.Document, key string) (map[string]store.Document, error) {
	raw, ok := tmpl[key]
	if !ok || raw == nil {
		return nil, nil
	}
	entries, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &StructureError{Key: key}
	}
	items := make(map[string]store.Document, len(entries))
	for machineName, entry := range entries {
		item, ok := entry.(map[string]interface{})
		if !ok {
			return nil, &StructureError{Key: key}
		}
		items[machineName] = item
	}
	return items, nil
}

func (im *Importer) observePhase(key, outcome string, started time.Time) {
	if im.metrics == nil {
		return
	}
	im.metrics.ImportPhasesTotal.WithLabelValues(key, outcome).Inc()
	im.metrics.ImportPhaseDuration.WithLabelValues(key).Observe(time.Since(started).Seconds())
}

func (im *Importer) observeItem(key, outcome string) {
	if im.metrics == nil {
		return
	}
	im.metrics.ImportItemsTotal.WithLabelValues(key, outcome).Inc()
}
